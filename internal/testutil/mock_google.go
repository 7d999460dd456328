package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/knightclub/tournament-app/pkg/calendar"
)

// MockGoogleResponse defines the behavior for a mock events.list response.
type MockGoogleResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockGoogleCalendar is a configurable Google Calendar v3 server for testing.
// It serves GET /calendars/{id}/events.
type MockGoogleCalendar struct {
	server    *httptest.Server
	mu        sync.RWMutex
	responses map[string]MockGoogleResponse

	// Tracking
	RequestCount   int
	LastMaxResults int
	LastTimeMin    string
}

// NewMockGoogleCalendar creates a new mock calendar server.
func NewMockGoogleCalendar() *MockGoogleCalendar {
	mock := &MockGoogleCalendar{
		responses: make(map[string]MockGoogleResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastMaxResults, _ = strconv.Atoi(r.URL.Query().Get("maxResults"))
		mock.LastTimeMin = r.URL.Query().Get("timeMin")
		resp, exists := mock.responses[r.URL.Path]
		mock.mu.Unlock()

		if !exists {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": {"code": 404, "message": "Not Found"}}`))
			return
		}

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// URL returns the mock server URL with a trailing slash, suitable for
// option.WithEndpoint.
func (m *MockGoogleCalendar) URL() string {
	return m.server.URL + "/"
}

// Close shuts down the mock server.
func (m *MockGoogleCalendar) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGoogleCalendar) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastMaxResults = 0
	m.LastTimeMin = ""
}

// SetResponse configures the events.list response for a calendar.
func (m *MockGoogleCalendar) SetResponse(calendarID string, resp MockGoogleResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[fmt.Sprintf("/calendars/%s/events", calendarID)] = resp
}

// SetEvents configures a 200 response listing events.
func (m *MockGoogleCalendar) SetEvents(calendarID string, events []calendar.Event) {
	m.SetResponse(calendarID, NewEventsResponse(events))
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGoogleCalendar) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// NewEventsResponse renders events as a calendar#events body.
func NewEventsResponse(events []calendar.Event) MockGoogleResponse {
	type eventTime struct {
		DateTime string `json:"dateTime,omitempty"`
		Date     string `json:"date,omitempty"`
	}
	type item struct {
		ID          string    `json:"id"`
		Status      string    `json:"status"`
		Summary     string    `json:"summary"`
		Description string    `json:"description,omitempty"`
		Location    string    `json:"location,omitempty"`
		Start       eventTime `json:"start"`
		End         eventTime `json:"end"`
	}

	items := make([]item, 0, len(events))
	for _, ev := range events {
		it := item{
			ID:          ev.ID,
			Status:      "confirmed",
			Summary:     ev.Title,
			Description: ev.Description,
			Location:    ev.Location,
		}
		if ev.AllDay {
			it.Start.Date = ev.Start.Format("2006-01-02")
			it.End.Date = ev.End.Format("2006-01-02")
		} else {
			it.Start.DateTime = ev.Start.Format(time.RFC3339)
			it.End.DateTime = ev.End.Format(time.RFC3339)
		}
		items = append(items, it)
	}

	body, _ := json.Marshal(map[string]any{
		"kind":  "calendar#events",
		"items": items,
	})
	return MockGoogleResponse{StatusCode: http.StatusOK, Body: string(body)}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockGoogleResponse {
	return MockGoogleResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": {"code": 429, "message": "Rate Limit Exceeded"}}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockGoogleResponse {
	return MockGoogleResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": {"code": 500, "message": "Backend Error"}}`,
	}
}
