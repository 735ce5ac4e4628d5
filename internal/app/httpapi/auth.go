package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// exempt paths skip authentication: probes and scrapers carry no tokens.
var exemptPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// WrapWithAuth guards the admin surface with static bearer tokens. An empty
// token list disables authentication entirely, which is only acceptable for
// local development; the caller logs a warning in that case.
func WrapWithAuth(next http.Handler, tokens []string) http.Handler {
	valid := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !tokenValid(token, valid) {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenValid(token string, valid []string) bool {
	for _, t := range valid {
		if subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1 {
			return true
		}
	}
	return false
}
