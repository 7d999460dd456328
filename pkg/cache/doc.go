// Package cache provides the in-memory cache behind the calendar client.
//
// The cache keeps one entry per request fingerprint with the following rules:
//
// - An entry is fresh until its ExpiresAt (default TTL 5 minutes)
// - An expired entry is kept as a stale fallback for StaleRetention
// - Entries older than ExpiresAt+StaleRetention are evicted on the next write
// - Entries are replaced wholesale and never mutated in place
// - Nothing is persisted; the cache starts empty after a restart
//
// # Basic Usage
//
//	manager := cache.NewManager(cache.DefaultConfig())
//	key := cache.NewFingerprint(20, time.Now(), 0)
//
//	entry, err := manager.Get(key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the calendar provider
//		entry = manager.Set(key, events)
//	}
//
//	// After an upstream failure, a retained stale entry may still be served.
//	stale, err := manager.GetStale(key)
//
// # Metrics
//
// Metrics is an explicitly owned set of counters. It implements
// prometheus.Collector and exports:
//
//   - calendar_cache_hits_total - Fresh cache hits
//   - calendar_cache_misses_total - Lookups that required an upstream call
//   - calendar_cache_stale_hits_total - Stale entries served after upstream failure
//   - calendar_api_calls_total - Upstream calls issued
//   - calendar_api_errors_total - Upstream calls that failed
//   - calendar_coalesced_requests_total - Callers that joined an in-flight fetch
//   - calendar_api_last_latency_milliseconds - Latency of the last successful call
//   - calendar_api_last_error_timestamp_seconds - Time of the last upstream error
package cache
