package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MultiConfig holds fan-out configuration.
type MultiConfig struct {
	// MaxConcurrency is the maximum number of providers queried in parallel.
	MaxConcurrency int
	// Timeout per provider call.
	Timeout time.Duration
}

// DefaultMultiConfig returns safe defaults for a handful of club calendars.
func DefaultMultiConfig() MultiConfig {
	return MultiConfig{
		MaxConcurrency: 4,
		Timeout:        10 * time.Second,
	}
}

// providerResult is the outcome of querying a single provider.
type providerResult struct {
	index  int
	events []Event
	err    error
}

// MultiProvider merges upcoming events from several providers.
type MultiProvider struct {
	providers []Provider
	config    MultiConfig
}

// NewMultiProvider creates a provider over providers, queried in parallel.
func NewMultiProvider(config MultiConfig, providers ...Provider) *MultiProvider {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &MultiProvider{
		providers: providers,
		config:    config,
	}
}

// UpcomingEvents queries every provider with the same limit and returns the
// first limit events of the merged, start-ordered result. Events with equal
// start times keep provider order. Failing providers are skipped; an error is
// returned only when all of them fail.
func (m *MultiProvider) UpcomingEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || len(m.providers) == 0 {
		return []Event{}, nil
	}
	if len(m.providers) == 1 {
		return m.providers[0].UpcomingEvents(ctx, limit)
	}

	start := time.Now()
	queue := make(chan int, len(m.providers))
	for i := range m.providers {
		queue <- i
	}
	close(queue)

	results := make(chan providerResult, len(m.providers))

	workers := m.config.MaxConcurrency
	if workers > len(m.providers) {
		workers = len(m.providers)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go m.worker(ctx, limit, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	perProvider := make([][]Event, len(m.providers))
	var errs []error
	for res := range results {
		if res.err != nil {
			log.Warn().
				Err(res.err).
				Int("provider", res.index).
				Msg("Calendar provider failed")
			errs = append(errs, fmt.Errorf("provider %d: %w", res.index, res.err))
			continue
		}
		perProvider[res.index] = res.events
	}

	if len(errs) == len(m.providers) {
		return nil, errors.Join(errs...)
	}

	merged := make([]Event, 0, limit)
	for _, events := range perProvider {
		merged = append(merged, events...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Start.Before(merged[j].Start)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}

	log.Debug().
		Int("providers", len(m.providers)).
		Int("failed", len(errs)).
		Int("events", len(merged)).
		Dur("duration", time.Since(start)).
		Msg("Merged calendar providers")

	return merged, nil
}

// worker queries providers from the queue.
func (m *MultiProvider) worker(ctx context.Context, limit int, queue <-chan int, results chan<- providerResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for index := range queue {
		if err := ctx.Err(); err != nil {
			results <- providerResult{index: index, err: err}
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
		events, err := m.providers[index].UpcomingEvents(callCtx, limit)
		cancel()

		if err != nil {
			log.Debug().
				Err(err).
				Int("worker_id", workerID).
				Int("provider", index).
				Msg("Provider call failed")
		}
		results <- providerResult{index: index, events: events, err: err}
	}
}
