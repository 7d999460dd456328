package cache

import (
	"time"

	"github.com/knightclub/tournament-app/pkg/calendar"
)

// Entry represents cached upcoming events for one fingerprint.
type Entry struct {
	// Key is the fingerprint string the entry is stored under
	Key string `json:"key"`

	// Events are the fetched events, in provider order
	Events []calendar.Event `json:"events"`

	// FetchedAt is when the events were fetched from upstream
	FetchedAt time.Time `json:"fetched_at"`

	// ExpiresAt is when the entry becomes stale
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the entry is past its expiry at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns how long ago the entry was fetched.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}
