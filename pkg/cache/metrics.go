package cache

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the calendar cache counters. It is owned by a single client
// and safe for concurrent use.
type Metrics struct {
	cacheHits      atomic.Uint64
	cacheMisses    atomic.Uint64
	cacheStaleHits atomic.Uint64
	apiCalls       atomic.Uint64
	apiErrors      atomic.Uint64
	coalesced      atomic.Uint64

	lastAPILatencyMs atomic.Int64
	lastErrorAt      atomic.Int64 // unix nanoseconds, 0 if never

	hitsDesc      *prometheus.Desc
	missesDesc    *prometheus.Desc
	staleDesc     *prometheus.Desc
	callsDesc     *prometheus.Desc
	errorsDesc    *prometheus.Desc
	coalescedDesc *prometheus.Desc
	latencyDesc   *prometheus.Desc
	lastErrorDesc *prometheus.Desc
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	CacheHits        uint64    `json:"cache_hits"`
	CacheMisses      uint64    `json:"cache_misses"`
	CacheStaleHits   uint64    `json:"cache_stale_hits"`
	APICalls         uint64    `json:"api_calls"`
	APIErrors        uint64    `json:"api_errors"`
	Coalesced        uint64    `json:"coalesced"`
	LastAPILatencyMs int64     `json:"last_api_latency_ms"`
	LastErrorAt      time.Time `json:"last_error_at,omitempty"`
}

// NewMetrics creates a zeroed metrics set.
func NewMetrics() *Metrics {
	return &Metrics{
		hitsDesc: prometheus.NewDesc("calendar_cache_hits_total",
			"Total number of fresh calendar cache hits", nil, nil),
		missesDesc: prometheus.NewDesc("calendar_cache_misses_total",
			"Total number of calendar cache misses", nil, nil),
		staleDesc: prometheus.NewDesc("calendar_cache_stale_hits_total",
			"Total number of stale calendar entries served after upstream failure", nil, nil),
		callsDesc: prometheus.NewDesc("calendar_api_calls_total",
			"Total number of calendar provider calls", nil, nil),
		errorsDesc: prometheus.NewDesc("calendar_api_errors_total",
			"Total number of failed calendar provider calls", nil, nil),
		coalescedDesc: prometheus.NewDesc("calendar_coalesced_requests_total",
			"Total number of requests that joined an in-flight calendar fetch", nil, nil),
		latencyDesc: prometheus.NewDesc("calendar_api_last_latency_milliseconds",
			"Latency of the last successful calendar provider call", nil, nil),
		lastErrorDesc: prometheus.NewDesc("calendar_api_last_error_timestamp_seconds",
			"Unix time of the last calendar provider error", nil, nil),
	}
}

func (m *Metrics) RecordHit()       { m.cacheHits.Add(1) }
func (m *Metrics) RecordMiss()      { m.cacheMisses.Add(1) }
func (m *Metrics) RecordStaleHit()  { m.cacheStaleHits.Add(1) }
func (m *Metrics) RecordAPICall()   { m.apiCalls.Add(1) }
func (m *Metrics) RecordCoalesced() { m.coalesced.Add(1) }

// RecordAPILatency stores the latency of the last successful upstream call.
func (m *Metrics) RecordAPILatency(d time.Duration) {
	m.lastAPILatencyMs.Store(d.Milliseconds())
}

// RecordAPIError counts a failed upstream call at the given time.
func (m *Metrics) RecordAPIError(at time.Time) {
	m.apiErrors.Add(1)
	m.lastErrorAt.Store(at.UnixNano())
}

func (m *Metrics) CacheHits() uint64       { return m.cacheHits.Load() }
func (m *Metrics) CacheMisses() uint64     { return m.cacheMisses.Load() }
func (m *Metrics) CacheStaleHits() uint64  { return m.cacheStaleHits.Load() }
func (m *Metrics) APICalls() uint64        { return m.apiCalls.Load() }
func (m *Metrics) APIErrors() uint64       { return m.apiErrors.Load() }
func (m *Metrics) Coalesced() uint64       { return m.coalesced.Load() }
func (m *Metrics) LastAPILatencyMs() int64 { return m.lastAPILatencyMs.Load() }

// LastErrorAt returns the time of the last upstream error, or the zero time.
func (m *Metrics) LastErrorAt() time.Time {
	ns := m.lastErrorAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Snapshot returns the current values. Counters are read individually, so a
// snapshot taken during concurrent updates may mix adjacent states.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		CacheHits:        m.CacheHits(),
		CacheMisses:      m.CacheMisses(),
		CacheStaleHits:   m.CacheStaleHits(),
		APICalls:         m.APICalls(),
		APIErrors:        m.APIErrors(),
		Coalesced:        m.Coalesced(),
		LastAPILatencyMs: m.LastAPILatencyMs(),
		LastErrorAt:      m.LastErrorAt(),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.hitsDesc
	ch <- m.missesDesc
	ch <- m.staleDesc
	ch <- m.callsDesc
	ch <- m.errorsDesc
	ch <- m.coalescedDesc
	ch <- m.latencyDesc
	ch <- m.lastErrorDesc
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	s := m.Snapshot()

	ch <- prometheus.MustNewConstMetric(m.hitsDesc, prometheus.CounterValue, float64(s.CacheHits))
	ch <- prometheus.MustNewConstMetric(m.missesDesc, prometheus.CounterValue, float64(s.CacheMisses))
	ch <- prometheus.MustNewConstMetric(m.staleDesc, prometheus.CounterValue, float64(s.CacheStaleHits))
	ch <- prometheus.MustNewConstMetric(m.callsDesc, prometheus.CounterValue, float64(s.APICalls))
	ch <- prometheus.MustNewConstMetric(m.errorsDesc, prometheus.CounterValue, float64(s.APIErrors))
	ch <- prometheus.MustNewConstMetric(m.coalescedDesc, prometheus.CounterValue, float64(s.Coalesced))
	ch <- prometheus.MustNewConstMetric(m.latencyDesc, prometheus.GaugeValue, float64(s.LastAPILatencyMs))

	var lastError float64
	if !s.LastErrorAt.IsZero() {
		lastError = float64(s.LastErrorAt.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(m.lastErrorDesc, prometheus.GaugeValue, lastError)
}
