package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiting.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_requests_total",
		Help: "Total rate limit decisions by backend and decision",
	}, []string{"backend", "decision"})

	backendErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_backend_errors_total",
		Help: "Total number of Redis failures during rate limit checks (request allowed)",
	})
)

func recordDecision(backend string, d Decision) {
	decision := "allowed"
	if !d.Allowed {
		decision = "blocked"
	}
	requestsTotal.WithLabelValues(backend, decision).Inc()
}

// RedisLimiter counts requests per scope and window in Redis.
type RedisLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewRedisLimiter creates a limiter allowing limit requests per window.
func NewRedisLimiter(redisClient *redis.Client, limit int, window time.Duration, logger zerolog.Logger) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// Allow increments the counter for scope in the current window. Redis
// failures are logged and counted and the request is allowed.
func (l *RedisLimiter) Allow(ctx context.Context, scope string) (Decision, error) {
	now := l.now()
	start := WindowStart(now, l.window)
	key := WindowKey(scope, start, l.window)

	decision := Decision{
		Limit:   l.limit,
		ResetAt: start.Add(l.window),
	}

	// INCR and EXPIRE in one round trip; the key outlives its window slightly
	// so late INCRs do not recreate it without a TTL.
	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		backendErrorsTotal.Inc()
		l.logger.Warn().
			Err(err).
			Str("scope", scope).
			Msg("Rate limit backend unavailable - allowing request")

		decision.Allowed = true
		decision.Remaining = l.limit
		recordDecision("redis", decision)
		return decision, nil
	}

	count := int(incr.Val())
	decision.Allowed = count <= l.limit
	decision.Remaining = l.limit - count
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}

	if !decision.Allowed {
		l.logger.Debug().
			Str("scope", scope).
			Int("count", count).
			Time("reset_at", decision.ResetAt).
			Msg("Rate limit exceeded - blocking request")
	}

	recordDecision("redis", decision)
	return decision, nil
}

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.redis.Ping(ctx).Err()
}
