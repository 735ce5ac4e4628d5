package geocoding

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kedaikopi/delivery_layer/internal/app/domain/geocode"
	"github.com/kedaikopi/delivery_layer/pkg/logger"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// HTTPGeocoder resolves addresses against a Nominatim-style HTTP endpoint.
// Provider calls are rate limited client-side; most public geocoding services
// enforce a requests-per-second quota.
type HTTPGeocoder struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	limiter  *rate.Limiter
	log      *logger.Logger
}

var _ Geocoder = (*HTTPGeocoder)(nil)

// NewHTTPGeocoder constructs a geocoder client for the given endpoint.
// requestsPerSecond <= 0 disables the limiter.
func NewHTTPGeocoder(client *http.Client, endpoint, apiKey string, requestsPerSecond float64, log *logger.Logger) (*HTTPGeocoder, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("geocoder endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse geocoder endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("geocoder-http")
	}

	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &HTTPGeocoder{
		client:   client,
		endpoint: parsed,
		apiKey:   strings.TrimSpace(apiKey),
		limiter:  limiter,
		log:      log,
	}, nil
}

// Geocode performs one lookup. All non-success outcomes are returned as
// *geocode.LookupError so callers can classify them without special-casing
// the transport.
func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (geocode.Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return geocode.Point{}, geocode.NewLookupError(geocode.KindNotFound, "empty delivery address")
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return geocode.Point{}, geocode.NewLookupError(geocode.KindProvider, "rate limiter wait: %v", err)
		}
	}

	requestURL := *g.endpoint
	q := requestURL.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	requestURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return geocode.Point{}, geocode.NewLookupError(geocode.KindProvider, "build request: %v", err)
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return geocode.Point{}, geocode.NewLookupError(geocode.KindProvider, "provider request: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return geocode.Point{}, geocode.NewLookupError(geocode.KindRateLimited, "provider throttled the request")
	case resp.StatusCode != http.StatusOK:
		return geocode.Point{}, geocode.NewLookupError(geocode.KindProvider, "provider status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return geocode.Point{}, geocode.NewLookupError(geocode.KindProvider, "read provider response: %v", err)
	}

	first := gjson.GetBytes(body, "0")
	if !first.Exists() {
		return geocode.Point{}, geocode.NewLookupError(geocode.KindNotFound, "no match for %q", address)
	}

	lat := first.Get("lat")
	lng := first.Get("lon")
	if !lat.Exists() || !lng.Exists() {
		return geocode.Point{}, geocode.NewLookupError(geocode.KindMalformed, "provider result missing coordinates")
	}

	pt := geocode.Point{Lat: lat.Float(), Lng: lng.Float()}
	if pt.Lat < -90 || pt.Lat > 90 || pt.Lng < -180 || pt.Lng > 180 {
		return geocode.Point{}, geocode.NewLookupError(geocode.KindMalformed, "provider returned coordinates out of range")
	}
	return pt, nil
}
