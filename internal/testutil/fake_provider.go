// Package testutil provides test doubles for the calendar stack.
package testutil

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knightclub/tournament-app/pkg/calendar"
)

// FakeProvider is a configurable calendar.Provider that counts calls.
type FakeProvider struct {
	mu     sync.RWMutex
	events []calendar.Event
	err    error
	delay  time.Duration
	gate   chan struct{}

	calls     atomic.Int64
	lastLimit atomic.Int64
}

// NewFakeProvider creates a provider that returns events.
func NewFakeProvider(events []calendar.Event) *FakeProvider {
	return &FakeProvider{events: calendar.CloneEvents(events)}
}

// SetEvents replaces the returned events.
func (f *FakeProvider) SetEvents(events []calendar.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = calendar.CloneEvents(events)
}

// SetError makes every following call fail with err (nil restores success).
func (f *FakeProvider) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetDelay delays every call by d, or until ctx is done.
func (f *FakeProvider) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Block makes calls wait until Release is called. Used to hold a flight open.
func (f *FakeProvider) Block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release unblocks calls held by Block.
func (f *FakeProvider) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Calls returns the number of UpcomingEvents calls.
func (f *FakeProvider) Calls() int {
	return int(f.calls.Load())
}

// LastLimit returns the limit passed to the most recent call.
func (f *FakeProvider) LastLimit() int {
	return int(f.lastLimit.Load())
}

// UpcomingEvents implements calendar.Provider.
func (f *FakeProvider) UpcomingEvents(ctx context.Context, limit int) ([]calendar.Event, error) {
	f.calls.Add(1)
	f.lastLimit.Store(int64(limit))

	f.mu.RLock()
	events := calendar.CloneEvents(f.events)
	err := f.err
	delay := f.delay
	gate := f.gate
	f.mu.RUnlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Events builds n one-hour events starting at start, one day apart.
func Events(start time.Time, n int) []calendar.Event {
	events := make([]calendar.Event, 0, n)
	for i := 0; i < n; i++ {
		begin := start.Add(time.Duration(i) * 24 * time.Hour)
		events = append(events, calendar.Event{
			ID:    "event-" + strconv.Itoa(i),
			Title: "Weekly Blitz Arena #" + strconv.Itoa(i+1),
			Start: begin,
			End:   begin.Add(time.Hour),
		})
	}
	return events
}

