package cache

import (
	"fmt"
	"strings"
	"time"
)

// Fingerprint identifies a cached upcoming-events request.
type Fingerprint struct {
	// Limit is the requested number of events.
	Limit int

	// Width is the time bucket width. Zero disables bucketing.
	Width time.Duration

	// Bucket is the index of the time bucket (unix time / Width).
	Bucket int64
}

// NewFingerprint builds the fingerprint for limit at now. When width is
// positive, requests in different width-sized windows get different keys.
func NewFingerprint(limit int, now time.Time, width time.Duration) Fingerprint {
	fp := Fingerprint{Limit: limit}
	if width > 0 {
		fp.Width = width
		fp.Bucket = now.UnixNano() / int64(width)
	}
	return fp
}

// String generates a deterministic cache key string.
// Format: calendar:upcoming:limit=20[:bucket=5795412]
func (k Fingerprint) String() string {
	parts := []string{"calendar", "upcoming", fmt.Sprintf("limit=%d", k.Limit)}
	if k.Width > 0 {
		parts = append(parts, fmt.Sprintf("bucket=%d", k.Bucket))
	}
	return strings.Join(parts, ":")
}

// Previous returns the fingerprint of the preceding time bucket. The second
// return value is false when bucketing is disabled.
func (k Fingerprint) Previous() (Fingerprint, bool) {
	if k.Width <= 0 {
		return Fingerprint{}, false
	}
	prev := k
	prev.Bucket--
	return prev, true
}
