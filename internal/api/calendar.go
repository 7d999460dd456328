package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/knightclub/tournament-app/pkg/cache"
	"github.com/knightclub/tournament-app/pkg/calendar"
	"github.com/knightclub/tournament-app/pkg/client"
	"github.com/knightclub/tournament-app/pkg/logging"
	"github.com/knightclub/tournament-app/pkg/parser"
	"github.com/knightclub/tournament-app/pkg/retry"
)

// Calendar response headers.
const (
	HeaderCacheHits   = "X-Calendar-Cache-Hits"
	HeaderCacheMisses = "X-Calendar-Cache-Misses"
	HeaderCacheStale  = "X-Calendar-Cache-Stale"
	HeaderAPICalls    = "X-Calendar-API-Calls"
	HeaderAPIErrors   = "X-Calendar-API-Errors"
	HeaderLastLatency = "X-Calendar-Last-Latency"
	HeaderCacheStatus = "X-Calendar-Cache-Status"
	HeaderError       = "X-Calendar-Error"
	HeaderLastErrorAt = "X-Calendar-Last-Error-At"
)

const (
	cacheStatusError    = "error"
	errorClassUnhandled = "unavailable"
)

// handleCalendar serves upcoming tournaments parsed from the calendar.
//
// Query parameters: limit (1..MaxCalendarLimit, default DefaultCalendarLimit)
// and simulateError=true, which forces an upstream failure for this request.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"), DefaultCalendarLimit, MaxCalendarLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	simulate, _ := strconv.ParseBool(q.Get("simulateError"))
	if simulate {
		ctx = calendar.WithSimulatedError(ctx)
	}

	res, err := s.deps.Calendar.Fetch(ctx, limit)
	metrics := s.deps.Calendar.Metrics().Snapshot()
	h := w.Header()
	writeMetricsHeaders(h, metrics)

	if err != nil {
		h.Set(HeaderCacheStatus, cacheStatusError)
		h.Set(HeaderError, errorClass(err))
		h.Set("Cache-Control", "no-store")

		logger.Error().
			Err(err).
			Int("limit", limit).
			Bool("simulated", simulate).
			Msg("Calendar request failed")
		writeJSON(w, http.StatusInternalServerError, []parser.Tournament{})
		return
	}

	h.Set(HeaderCacheStatus, string(res.Status))
	if res.UpstreamErr != nil {
		h.Set(HeaderError, errorClass(res.UpstreamErr))
	}

	now := s.now()
	expiresAt := res.ExpiresAt
	if res.Status == client.StatusStale {
		expiresAt = now
	}
	cache.SetResponseHeaders(h, res.Key, res.FetchedAt, expiresAt, now)
	if res.Status != client.StatusStale && cache.NotModified(r, h.Get("ETag"), res.FetchedAt) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, parser.ParseCalendarEvents(res.Events))
}

func writeMetricsHeaders(h http.Header, m cache.MetricsSnapshot) {
	h.Set(HeaderCacheHits, strconv.FormatUint(m.CacheHits, 10))
	h.Set(HeaderCacheMisses, strconv.FormatUint(m.CacheMisses, 10))
	h.Set(HeaderCacheStale, strconv.FormatUint(m.CacheStaleHits, 10))
	h.Set(HeaderAPICalls, strconv.FormatUint(m.APICalls, 10))
	h.Set(HeaderAPIErrors, strconv.FormatUint(m.APIErrors, 10))
	h.Set(HeaderLastLatency, strconv.FormatInt(m.LastAPILatencyMs, 10))
	if !m.LastErrorAt.IsZero() {
		h.Set(HeaderLastErrorAt, m.LastErrorAt.UTC().Format(time.RFC3339))
	}
}

// errorClass names the failure without exposing upstream messages.
func errorClass(err error) string {
	var upstream *client.UpstreamError
	if errors.As(err, &upstream) && upstream.ErrorClass != "" {
		return string(upstream.ErrorClass)
	}
	switch {
	case errors.Is(err, calendar.ErrSimulated):
		return string(retry.ErrorClassSimulated)
	case errors.Is(err, client.ErrUpstreamUnavailable):
		return errorClassUnhandled
	}
	return string(retry.ErrorClassUnknown)
}
