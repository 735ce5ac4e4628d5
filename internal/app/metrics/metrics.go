package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "delivery_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "delivery_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	geocodeLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_layer",
			Subsystem: "geocode",
			Name:      "lookups_total",
			Help:      "Total number of geocoding lookups by outcome.",
		},
		[]string{"outcome"},
	)

	geocodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "delivery_layer",
			Subsystem: "geocode",
			Name:      "lookup_duration_seconds",
			Help:      "Duration of geocoding provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"outcome"},
	)

	escalations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "delivery_layer",
			Subsystem: "geocode",
			Name:      "escalations_total",
			Help:      "Total number of escalation notification batches fired.",
		},
	)

	overrides = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "delivery_layer",
			Subsystem: "geocode",
			Name:      "manual_overrides_total",
			Help:      "Total number of operator coordinate overrides applied.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		geocodeLookups,
		geocodeDuration,
		escalations,
		overrides,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordLookup records the outcome and duration of one provider call.
func RecordLookup(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	geocodeLookups.WithLabelValues(outcome).Inc()
	geocodeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordEscalation counts one escalation notification batch.
func RecordEscalation() {
	escalations.Inc()
}

// RecordOverride counts one applied manual override.
func RecordOverride() {
	overrides.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "admin" {
		return "/" + parts[0]
	}
	if len(parts) <= 2 {
		return "/" + strings.Join(parts, "/")
	}
	if len(parts) >= 3 && parts[2] == "jobs" {
		return "/admin/" + parts[1] + "/jobs/:id"
	}
	return "/admin/" + parts[1] + "/" + parts[2]
}
