package geocode

import "fmt"

// FailureKind classifies a provider lookup failure.
type FailureKind string

const (
	// KindNotFound means the provider returned no match for the address.
	KindNotFound FailureKind = "not_found"
	// KindRateLimited means the provider rejected the call for quota reasons.
	KindRateLimited FailureKind = "rate_limited"
	// KindMalformed means the provider response could not be interpreted.
	KindMalformed FailureKind = "malformed"
	// KindProvider covers transport errors, timeouts and 5xx responses.
	KindProvider FailureKind = "provider_error"
)

// LookupError is a typed, human-readable geocoding failure. The worker treats
// every kind uniformly as retryable; the kind is kept for logs and metrics.
type LookupError struct {
	Kind    FailureKind
	Message string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("geocode %s: %s", e.Kind, e.Message)
}

// NewLookupError builds a LookupError with a formatted message.
func NewLookupError(kind FailureKind, format string, args ...interface{}) *LookupError {
	return &LookupError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
