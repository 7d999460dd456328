// Package client provides the calendar client: a cache-first reader of
// upcoming events with stale fallback, request coalescing and metrics.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/knightclub/tournament-app/pkg/cache"
	"github.com/knightclub/tournament-app/pkg/calendar"
)

// DefaultUpstreamTimeout bounds a single provider call.
const DefaultUpstreamTimeout = 10 * time.Second

// Status reports where a result came from.
type Status string

const (
	// StatusHit means the events came from a fresh cache entry.
	StatusHit Status = "hit"

	// StatusMiss means the events were fetched from the provider.
	StatusMiss Status = "miss"

	// StatusStale means the provider failed and an expired entry was served.
	StatusStale Status = "stale"
)

// Result is the outcome of a Fetch.
type Result struct {
	Events    []calendar.Event
	Status    Status
	Key       string
	FetchedAt time.Time
	ExpiresAt time.Time

	// UpstreamErr is the provider failure behind a stale result.
	UpstreamErr error
}

// Client is the calendar client.
type Client struct {
	provider calendar.Provider
	cache    *cache.Manager
	metrics  *cache.Metrics
	flights  singleflight.Group
	config   Config
	logger   zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Cache configures TTL, stale retention and the entry cap.
	Cache cache.Config

	// BucketWidth splits cache keys into time buckets (0 = disabled).
	BucketWidth time.Duration

	// UpstreamTimeout bounds a shared provider call. Caller cancellation
	// does not abort it.
	UpstreamTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Cache:           cache.DefaultConfig(),
		UpstreamTimeout: DefaultUpstreamTimeout,
	}
}

// New creates a calendar client. A nil metrics creates a fresh set.
func New(provider calendar.Provider, cfg Config, metrics *cache.Metrics) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("calendar provider is required")
	}
	if cfg.BucketWidth < 0 {
		return nil, fmt.Errorf("bucket width must be >= 0 (got %s)", cfg.BucketWidth)
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if metrics == nil {
		metrics = cache.NewMetrics()
	}

	return &Client{
		provider: provider,
		cache:    cache.NewManager(cfg.Cache),
		metrics:  metrics,
		config:   cfg,
		logger:   log.With().Str("component", "calendar-client").Logger(),
	}, nil
}

// Metrics returns the client's counters.
func (c *Client) Metrics() *cache.Metrics {
	return c.metrics
}

// GetCache returns the cache manager (for testing).
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// FetchUpcomingEvents returns up to limit upcoming events. On failure the
// returned slice is empty, never nil.
func (c *Client) FetchUpcomingEvents(ctx context.Context, limit int) ([]calendar.Event, error) {
	res, err := c.Fetch(ctx, limit)
	if err != nil {
		return []calendar.Event{}, err
	}
	return res.Events, nil
}

// Fetch returns up to limit upcoming events along with their cache status.
//
// A fresh entry is served without contacting the provider. Otherwise the
// caller joins the single in-flight fetch for the key, or starts one. If the
// provider fails, the newest retained entry for the key (or the previous time
// bucket) is served as stale; without one, ErrUpstreamUnavailable is returned.
func (c *Client) Fetch(ctx context.Context, limit int) (Result, error) {
	if limit <= 0 {
		return Result{Events: []calendar.Event{}}, fmt.Errorf("%w (got %d)", ErrInvalidLimit, limit)
	}

	key := cache.NewFingerprint(limit, c.cache.Now(), c.config.BucketWidth)
	simulated := calendar.SimulatedError(ctx)

	if !simulated {
		if entry, err := c.cache.Get(key); err == nil {
			c.metrics.RecordHit()
			c.logger.Debug().
				Str("key", entry.Key).
				Int("limit", limit).
				Dur("ttl", entry.TTL(c.cache.Now())).
				Msg("Calendar cache hit")
			return resultFromEntry(entry, StatusHit, nil), nil
		}
	}

	// Simulated failures get their own flight so they never hand an error
	// to callers of a real fetch.
	flightKey := key.String()
	if simulated {
		flightKey += ":simulated"
	}

	leader := false
	ch := c.flights.DoChan(flightKey, func() (interface{}, error) {
		leader = true
		return c.refresh(ctx, key, limit, simulated)
	})

	select {
	case <-ctx.Done():
		return Result{Events: []calendar.Event{}}, ctx.Err()
	case res := <-ch:
		if !leader {
			c.metrics.RecordCoalesced()
		}
		if res.Err != nil {
			return Result{Events: []calendar.Event{}, Key: key.String()}, res.Err
		}

		out := res.Val.(Result)
		switch out.Status {
		case StatusStale:
			c.metrics.RecordStaleHit()
		case StatusHit:
			c.metrics.RecordHit()
		}
		// Each caller gets its own copy.
		out.Events = calendar.CloneEvents(out.Events)
		return out, nil
	}
}

// refresh runs inside the single flight for key.
func (c *Client) refresh(ctx context.Context, key cache.Fingerprint, limit int, simulated bool) (Result, error) {
	logger := c.logger.With().Str("key", key.String()).Int("limit", limit).Logger()

	// A flight that finished just before this one started may have filled the cache.
	if !simulated {
		if entry, err := c.cache.Get(key); err == nil {
			return resultFromEntry(entry, StatusHit, nil), nil
		}
	}

	c.metrics.RecordMiss()
	c.metrics.RecordAPICall()

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	events, err := c.callProvider(fetchCtx, limit, simulated)
	latency := time.Since(start)

	if err == nil {
		if len(events) > limit {
			events = events[:limit]
		}
		entry := c.cache.Set(key, events)
		c.metrics.RecordAPILatency(latency)

		logger.Debug().
			Int("events", len(entry.Events)).
			Dur("latency", latency).
			Msg("Calendar cache miss, fetched from provider")
		return resultFromEntry(entry, StatusMiss, nil), nil
	}

	upstreamErr := newUpstreamError(err)
	c.metrics.RecordAPIError(c.cache.Now())

	if entry, ok := c.staleEntry(key); ok {
		logger.Warn().
			Err(upstreamErr).
			Str("error_class", string(upstreamErr.ErrorClass)).
			Str("stale_key", entry.Key).
			Dur("age", entry.Age(c.cache.Now())).
			Msg("Calendar provider failed, serving stale events")
		return resultFromEntry(entry, StatusStale, upstreamErr), nil
	}

	logger.Error().
		Err(upstreamErr).
		Str("error_class", string(upstreamErr.ErrorClass)).
		Dur("latency", latency).
		Msg("Calendar provider failed and no cached events are available")
	return Result{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, upstreamErr)
}

func (c *Client) callProvider(ctx context.Context, limit int, simulated bool) ([]calendar.Event, error) {
	if simulated {
		return nil, calendar.ErrSimulated
	}
	events, err := c.provider.UpcomingEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return events, nil
}

// staleEntry looks up a retained entry for key, then for the previous bucket.
func (c *Client) staleEntry(key cache.Fingerprint) (*cache.Entry, bool) {
	if entry, err := c.cache.GetStale(key); err == nil {
		return entry, true
	} else if !errors.Is(err, cache.ErrNoStaleEntry) {
		return nil, false
	}

	if prev, ok := key.Previous(); ok {
		if entry, err := c.cache.GetStale(prev); err == nil {
			return entry, true
		}
	}
	return nil, false
}

func resultFromEntry(entry *cache.Entry, status Status, upstreamErr error) Result {
	return Result{
		Events:      entry.Events,
		Status:      status,
		Key:         entry.Key,
		FetchedAt:   entry.FetchedAt,
		ExpiresAt:   entry.ExpiresAt,
		UpstreamErr: upstreamErr,
	}
}
