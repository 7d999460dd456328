//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/knightclub/tournament-app/internal/api"
	"github.com/knightclub/tournament-app/internal/testutil"
	"github.com/knightclub/tournament-app/pkg/cache"
	"github.com/knightclub/tournament-app/pkg/calendar"
	"github.com/knightclub/tournament-app/pkg/client"
	"github.com/knightclub/tournament-app/pkg/parser"
	"github.com/knightclub/tournament-app/pkg/retry"
)

// setupGoogle creates a mock Google Calendar server and a provider reading
// calendarID from it.
func setupGoogle(t *testing.T, calendarID string) (*testutil.MockGoogleCalendar, *calendar.GoogleProvider) {
	t.Helper()

	mock := testutil.NewMockGoogleCalendar()
	t.Cleanup(mock.Close)

	provider, err := calendar.NewGoogleProvider(context.Background(), calendar.GoogleConfig{
		CalendarID: calendarID,
		APIKey:     "test-key",
		Endpoint:   mock.URL(),
	})
	if err != nil {
		t.Fatalf("Failed to create Google provider: %v", err)
	}
	return mock, provider
}

func upcoming(n int) []calendar.Event {
	return testutil.Events(time.Now().Add(24*time.Hour).Truncate(time.Second).UTC(), n)
}

// TestGoogleProvider_CacheHit verifies a second fetch within the TTL does
// not reach Google.
func TestGoogleProvider_CacheHit(t *testing.T) {
	mock, provider := setupGoogle(t, "club")
	mock.SetEvents("club", upcoming(3))

	c, err := client.New(provider, client.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	first, err := c.Fetch(ctx, 20)
	if err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}
	if first.Status != client.StatusMiss {
		t.Errorf("First fetch status = %s, want miss", first.Status)
	}
	if len(first.Events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(first.Events))
	}
	if first.Events[0].Title != "Weekly Blitz Arena #1" {
		t.Errorf("Unexpected first event %q", first.Events[0].Title)
	}
	if mock.LastMaxResults != 20 {
		t.Errorf("maxResults = %d, want 20", mock.LastMaxResults)
	}
	if mock.LastTimeMin == "" {
		t.Error("Expected timeMin to be sent")
	}

	second, err := c.Fetch(ctx, 20)
	if err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}
	if second.Status != client.StatusHit {
		t.Errorf("Second fetch status = %s, want hit", second.Status)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("Expected 1 upstream request, got %d", got)
	}

	m := c.Metrics().Snapshot()
	if m.APICalls != 1 || m.CacheMisses != 1 || m.CacheHits != 1 {
		t.Errorf("Unexpected metrics %+v", m)
	}
}

// TestGoogleProvider_Coalescing verifies concurrent callers share one request.
func TestGoogleProvider_Coalescing(t *testing.T) {
	mock, provider := setupGoogle(t, "club")
	resp := testutil.NewEventsResponse(upcoming(5))
	resp.Delay = 200 * time.Millisecond
	mock.SetResponse("club", resp)

	c, err := client.New(provider, client.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Fetch(context.Background(), 20)
			if err != nil {
				errs <- err
				return
			}
			if len(res.Events) != 5 {
				errs <- errors.New("unexpected event count")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent fetch failed: %v", err)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("Expected 1 upstream request for %d callers, got %d", callers, got)
	}
	if got := c.Metrics().APICalls(); got != 1 {
		t.Errorf("APICalls = %d, want 1", got)
	}
}

// TestGoogleProvider_StaleOnRateLimit verifies a 429 from Google after
// expiry serves the retained entry.
func TestGoogleProvider_StaleOnRateLimit(t *testing.T) {
	mock, provider := setupGoogle(t, "club")
	mock.SetEvents("club", upcoming(2))

	cfg := client.DefaultConfig()
	cfg.Cache = cache.Config{TTL: time.Minute, StaleRetention: time.Hour}
	c, err := client.New(provider, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	now := time.Now()
	c.GetCache().SetClock(func() time.Time { return now })

	if _, err := c.Fetch(context.Background(), 10); err != nil {
		t.Fatalf("Warm-up fetch failed: %v", err)
	}

	mock.SetResponse("club", testutil.NewRateLimitResponse())
	now = now.Add(2 * time.Minute)

	res, err := c.Fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("Expected stale result, got error: %v", err)
	}
	if res.Status != client.StatusStale {
		t.Errorf("Status = %s, want stale", res.Status)
	}
	if len(res.Events) != 2 {
		t.Errorf("Expected 2 stale events, got %d", len(res.Events))
	}

	var upstream *client.UpstreamError
	if !errors.As(res.UpstreamErr, &upstream) {
		t.Fatalf("Expected UpstreamError, got %T", res.UpstreamErr)
	}
	if upstream.ErrorClass != retry.ErrorClassRateLimit || upstream.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Unexpected upstream error %+v", upstream)
	}

	m := c.Metrics().Snapshot()
	if m.CacheStaleHits != 1 || m.APIErrors != 1 || m.APICalls != 2 {
		t.Errorf("Unexpected metrics %+v", m)
	}
}

// TestGoogleProvider_ServerErrorWithoutCache verifies the failure surfaces.
func TestGoogleProvider_ServerErrorWithoutCache(t *testing.T) {
	mock, provider := setupGoogle(t, "club")
	mock.SetResponse("club", testutil.NewServerErrorResponse())

	c, err := client.New(provider, client.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	events, err := c.FetchUpcomingEvents(context.Background(), 20)
	if !errors.Is(err, client.ErrUpstreamUnavailable) {
		t.Fatalf("Expected ErrUpstreamUnavailable, got %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("Expected empty non-nil events, got %v", events)
	}
	if c.Metrics().APIErrors() != 1 {
		t.Errorf("APIErrors = %d, want 1", c.Metrics().APIErrors())
	}
}

// TestMultiProvider_PartialFailure merges two calendars while a third fails.
func TestMultiProvider_PartialFailure(t *testing.T) {
	mock := testutil.NewMockGoogleCalendar()
	defer mock.Close()

	start := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	mock.SetEvents("blitz", []calendar.Event{
		{ID: "b1", Title: "Blitz Arena", Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour)},
	})
	mock.SetEvents("rapid", []calendar.Event{
		{ID: "r1", Title: "Rapid Cup", Start: start, End: start.Add(4 * time.Hour)},
	})
	mock.SetResponse("broken", testutil.NewServerErrorResponse())

	var providers []calendar.Provider
	for _, id := range []string{"blitz", "rapid", "broken"} {
		p, err := calendar.NewGoogleProvider(context.Background(), calendar.GoogleConfig{
			CalendarID: id,
			APIKey:     "test-key",
			Endpoint:   mock.URL(),
		})
		if err != nil {
			t.Fatalf("Failed to create provider %s: %v", id, err)
		}
		providers = append(providers, p)
	}

	multi := calendar.NewMultiProvider(calendar.DefaultMultiConfig(), providers...)
	events, err := multi.UpcomingEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("UpcomingEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].ID != "r1" || events[1].ID != "b1" {
		t.Errorf("Expected start order r1, b1; got %s, %s", events[0].ID, events[1].ID)
	}
}

// TestCalendarRoute_EndToEnd drives the HTTP route over the Google provider.
func TestCalendarRoute_EndToEnd(t *testing.T) {
	mock, provider := setupGoogle(t, "club")
	start := time.Now().Add(48 * time.Hour).Truncate(time.Second).UTC()
	mock.SetEvents("club", []calendar.Event{
		{ID: "t1", Title: "Friday Blitz Arena 3+2", Start: start, End: start.Add(2 * time.Hour),
			Description: "Format: Arena\nRated: yes"},
		{ID: "x", Title: "Club night", Start: start.Add(24 * time.Hour), End: start.Add(26 * time.Hour)},
		{ID: "t2", Title: "Spring Rapid Cup", Start: start.Add(72 * time.Hour), End: start.Add(80 * time.Hour),
			Description: "Format: Swiss\nRounds: 7\nTime control: 15+10"},
	})

	c, err := client.New(provider, client.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	h := api.New(api.Deps{Calendar: c}).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/tournaments/calendar?limit=20", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var tournaments []parser.Tournament
	if err := json.Unmarshal(w.Body.Bytes(), &tournaments); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(tournaments) != 2 {
		t.Fatalf("Expected 2 tournaments, got %d", len(tournaments))
	}
	if tournaments[0].ID != "t1" || tournaments[1].ID != "t2" {
		t.Errorf("Unexpected order: %s, %s", tournaments[0].ID, tournaments[1].ID)
	}
	if tournaments[0].TimeControl != "3+2" || !tournaments[0].Rated {
		t.Errorf("Unexpected blitz metadata %+v", tournaments[0])
	}
	if tournaments[1].Rounds != 7 || tournaments[1].Category != parser.CategoryRapid {
		t.Errorf("Unexpected rapid metadata %+v", tournaments[1])
	}

	// simulateError after warm-up serves the same body as stale.
	req = httptest.NewRequest(http.MethodGet, "/api/tournaments/calendar?limit=20&simulateError=true", nil)
	stale := httptest.NewRecorder()
	h.ServeHTTP(stale, req)

	if stale.Code != http.StatusOK {
		t.Fatalf("Expected stale 200, got %d", stale.Code)
	}
	if stale.Header().Get(api.HeaderCacheStatus) != "stale" {
		t.Errorf("Cache status = %q, want stale", stale.Header().Get(api.HeaderCacheStatus))
	}
	if stale.Body.String() != w.Body.String() {
		t.Error("Expected stale body to match the cached response")
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("Expected 1 upstream request, got %d", mock.GetRequestCount())
	}
}
