// Package calendar provides access to upstream tournament calendars.
//
// A Provider returns upcoming events in start-time order. Events are plain
// values and are never mutated after a provider returns them; callers that
// hand them out again are expected to copy the slice.
package calendar

import (
	"context"
	"time"
)

// Event is a single upstream calendar entry.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Provider fetches upcoming events from an external calendar.
type Provider interface {
	// UpcomingEvents returns at most limit events starting now or later,
	// ordered by start time.
	UpcomingEvents(ctx context.Context, limit int) ([]Event, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, limit int) ([]Event, error)

// UpcomingEvents calls f(ctx, limit).
func (f ProviderFunc) UpcomingEvents(ctx context.Context, limit int) ([]Event, error) {
	return f(ctx, limit)
}

// CloneEvents returns a copy of events that shares no backing array with the input.
func CloneEvents(events []Event) []Event {
	if events == nil {
		return []Event{}
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}
