package geocoding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kedaikopi/delivery_layer/internal/app/domain/geocode"
)

func newGeocoderAgainst(t *testing.T, handler http.HandlerFunc) *HTTPGeocoder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewHTTPGeocoder(srv.Client(), srv.URL, "test-key", 0, nil)
	if err != nil {
		t.Fatalf("new geocoder: %v", err)
	}
	return g
}

func lookupKind(t *testing.T, err error) geocode.FailureKind {
	t.Helper()
	var lerr *geocode.LookupError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *geocode.LookupError, got %v", err)
	}
	return lerr.Kind
}

func TestHTTPGeocoderSuccess(t *testing.T) {
	var gotQuery, gotAuth string
	g := newGeocoderAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"-7.9826","lon":"112.6308","display_name":"Malang"}]`))
	})

	pt, err := g.Geocode(context.Background(), "Jl. Kopi No.1, Malang")
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	if pt.Lat != -7.9826 || pt.Lng != 112.6308 {
		t.Fatalf("unexpected point: %+v", pt)
	}
	if gotQuery != "Jl. Kopi No.1, Malang" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestHTTPGeocoderNoMatch(t *testing.T) {
	g := newGeocoderAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := g.Geocode(context.Background(), "Jl. Tidak Ada 99")
	if kind := lookupKind(t, err); kind != geocode.KindNotFound {
		t.Fatalf("expected not_found, got %s", kind)
	}
}

func TestHTTPGeocoderEmptyAddress(t *testing.T) {
	g := newGeocoderAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("provider must not be called for an empty address")
	})

	_, err := g.Geocode(context.Background(), "   ")
	if kind := lookupKind(t, err); kind != geocode.KindNotFound {
		t.Fatalf("expected not_found, got %s", kind)
	}
}

func TestHTTPGeocoderThrottled(t *testing.T) {
	g := newGeocoderAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := g.Geocode(context.Background(), "Jl. Kopi No.1")
	if kind := lookupKind(t, err); kind != geocode.KindRateLimited {
		t.Fatalf("expected rate_limited, got %s", kind)
	}
}

func TestHTTPGeocoderProviderError(t *testing.T) {
	g := newGeocoderAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := g.Geocode(context.Background(), "Jl. Kopi No.1")
	if kind := lookupKind(t, err); kind != geocode.KindProvider {
		t.Fatalf("expected provider_error, got %s", kind)
	}
}

func TestHTTPGeocoderMalformedResult(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing coordinates", `[{"display_name":"somewhere"}]`},
		{"latitude out of range", `[{"lat":"91.5","lon":"0"}]`},
		{"longitude out of range", `[{"lat":"0","lon":"-190"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newGeocoderAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := g.Geocode(context.Background(), "Jl. Kopi No.1")
			if kind := lookupKind(t, err); kind != geocode.KindMalformed {
				t.Fatalf("expected malformed, got %s", kind)
			}
		})
	}
}

func TestHTTPGeocoderRequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPGeocoder(nil, "  ", "", 0, nil); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
