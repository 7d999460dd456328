package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is a process-local token bucket per scope. It refills at
// limit per window with a burst of limit, which approximates the fixed
// window of RedisLimiter on a single replica.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	limit    int
	window   time.Duration
	now      func() time.Time

	lastSweep time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a limiter allowing limit requests per window.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &LocalLimiter{
		limiters: make(map[string]*localEntry),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow takes one token from scope's bucket.
func (l *LocalLimiter) Allow(ctx context.Context, scope string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	entry, ok := l.limiters[scope]
	if !ok {
		every := l.window / time.Duration(l.limit)
		entry = &localEntry{limiter: rate.NewLimiter(rate.Every(every), l.limit)}
		l.limiters[scope] = entry
	}
	entry.lastSeen = now

	decision := Decision{Limit: l.limit}
	decision.Allowed = entry.limiter.AllowN(now, 1)

	tokens := entry.limiter.TokensAt(now)
	decision.Remaining = int(tokens)
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}

	// Time until the next whole token is available.
	missing := 1 - tokens
	if missing < 0 {
		missing = 0
	}
	decision.ResetAt = now.Add(time.Duration(missing * float64(l.window) / float64(l.limit)))

	recordDecision("local", decision)
	return decision, nil
}

// Len returns the number of tracked scopes.
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// sweepLocked drops buckets idle for more than a window; they would be full again.
func (l *LocalLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for scope, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.window {
			delete(l.limiters, scope)
		}
	}
}
