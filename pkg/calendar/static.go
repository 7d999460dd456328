package calendar

import (
	"context"
	"sort"
	"sync"
	"time"
)

// StaticProvider serves a fixed set of events. It backs local development when
// no Google credentials are configured.
type StaticProvider struct {
	mu     sync.RWMutex
	events []Event
	now    func() time.Time
}

// NewStaticProvider creates a provider over a copy of events.
func NewStaticProvider(events []Event) *StaticProvider {
	sorted := CloneEvents(events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})
	return &StaticProvider{events: sorted, now: time.Now}
}

// Replace swaps the served events.
func (p *StaticProvider) Replace(events []Event) {
	sorted := CloneEvents(events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	p.mu.Lock()
	p.events = sorted
	p.mu.Unlock()
}

// UpcomingEvents returns events whose end is not in the past.
func (p *StaticProvider) UpcomingEvents(ctx context.Context, limit int) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.now()
	out := make([]Event, 0, len(p.events))
	for _, ev := range p.events {
		end := ev.End
		if end.IsZero() {
			end = ev.Start
		}
		if end.Before(now) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SampleEvents returns a small fixture schedule relative to now.
func SampleEvents(now time.Time) []Event {
	day := now.Truncate(24 * time.Hour)
	return []Event{
		{
			ID:          "sample-blitz",
			Title:       "Friday Blitz Arena 3+2",
			Start:       day.Add(48*time.Hour + 18*time.Hour),
			End:         day.Add(48*time.Hour + 20*time.Hour),
			Location:    "Online",
			Description: "Format: Arena\nRated: yes",
		},
		{
			ID:       "sample-club-night",
			Title:    "Club night (casual)",
			Start:    day.Add(72*time.Hour + 19*time.Hour),
			End:      day.Add(72*time.Hour + 22*time.Hour),
			Location: "Club hall",
		},
		{
			ID:          "sample-rapid",
			Title:       "Spring Rapid Cup",
			Start:       day.Add(9*24*time.Hour + 10*time.Hour),
			End:         day.Add(9*24*time.Hour + 17*time.Hour),
			Location:    "Club hall",
			Description: "Format: Swiss\nRounds: 7\nTime control: 15+10\nRegister: https://example.org/rapid-cup",
		},
	}
}
