// Package metrics wires Prometheus for the tournament backend.
//
// Package-level metrics (HTTP, rate limiting, retries) are registered via
// promauto on the default registerer. Collectors owned by a component, such
// as the calendar cache counters, are registered on an explicit Registry.
// Handler serves both.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics recorded by the API middleware.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by route and method",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"route", "method"})
)

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(route, method string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Registry holds collectors owned by application components.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{reg: prometheus.NewRegistry()}
}

// Register adds a collector.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.reg.Register(c)
}

// MustRegister adds collectors and panics on conflicts.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.reg.MustRegister(cs...)
}

// Gatherer returns the combined gatherer of the default and owned metrics.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{prometheus.DefaultGatherer, r.reg}
}

// Handler serves the combined metrics in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Calendar Cache Metrics (pkg/cache, explicit registry):
//   - calendar_cache_hits_total (Counter): Fresh cache hits
//   - calendar_cache_misses_total (Counter): Cache misses (one per upstream fetch)
//   - calendar_cache_stale_hits_total (Counter): Stale entries served after provider failure
//   - calendar_api_calls_total (Counter): Calendar provider calls
//   - calendar_api_errors_total (Counter): Failed provider calls
//   - calendar_coalesced_requests_total (Counter): Requests that joined an in-flight fetch
//   - calendar_api_last_latency_milliseconds (Gauge): Latency of the last successful call
//   - calendar_api_last_error_timestamp_seconds (Gauge): Time of the last provider error
//
// HTTP Metrics (pkg/metrics):
//   - http_requests_total{route, method, status} (Counter)
//   - http_request_duration_seconds{route, method} (Histogram)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ratelimit_requests_total{backend, decision} (Counter): allowed/blocked decisions
//   - ratelimit_backend_errors_total (Counter): Redis failures (request allowed)
//
// Retry Metrics (pkg/retry):
//   - upstream_retries_total{target, error_class} (Counter)
//   - upstream_retry_backoff_seconds{target, error_class} (Histogram)
//   - upstream_retry_exhausted_total{target, error_class} (Counter)
//
// Example Prometheus Queries:
//
//   # Calendar cache hit rate
//   rate(calendar_cache_hits_total[5m]) /
//   (rate(calendar_cache_hits_total[5m]) + rate(calendar_cache_misses_total[5m]))
//
//   # Stale serving rate
//   rate(calendar_cache_stale_hits_total[5m])
//
//   # P95 request latency per route
//   histogram_quantile(0.95, sum by (le, route) (rate(http_request_duration_seconds_bucket[5m])))
