// Package ratelimit implements per-client fixed-window request limiting for
// the HTTP API. Counters live in Redis so limits hold across replicas; a
// process-local limiter is used when Redis is not configured.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// KeyPrefix prefixes every Redis key written by RedisLimiter.
const KeyPrefix = "ratelimit"

// Defaults for the API limiter.
const (
	DefaultLimit  = 60
	DefaultWindow = time.Minute
)

// Limiter decides whether a request from scope may proceed.
type Limiter interface {
	Allow(ctx context.Context, scope string) (Decision, error)
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool `json:"allowed"`

	// Limit is the number of requests allowed per window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window ends.
	ResetAt time.Time `json:"reset_at"`
}

// RetryAfter returns how long a blocked client should wait, rounded up to
// whole seconds and at least one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return time.Duration(math.Ceil(wait.Seconds())) * time.Second
}

// WindowStart returns the start of the fixed window containing now.
func WindowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

// WindowKey returns the Redis key for scope in the window starting at start.
// Format: ratelimit:<scope>:<window index>
func WindowKey(scope string, start time.Time, window time.Duration) string {
	return fmt.Sprintf("%s:%s:%d", KeyPrefix, scope, start.UnixNano()/int64(window))
}
