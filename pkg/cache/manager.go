package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/knightclub/tournament-app/pkg/calendar"
)

const (
	// DefaultTTL is how long fetched events are served without an upstream call.
	DefaultTTL = 5 * time.Minute

	// DefaultStaleRetention is how long expired entries are kept as fallback.
	DefaultStaleRetention = 1 * time.Hour
)

var (
	// ErrCacheMiss indicates the requested key was not found or is expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrNoStaleEntry indicates no entry, not even an expired one, is retained
	ErrNoStaleEntry = errors.New("no stale cache entry")
)

// Config holds cache manager configuration.
type Config struct {
	// TTL is the freshness window of new entries.
	TTL time.Duration

	// StaleRetention is how long expired entries remain available via GetStale.
	StaleRetention time.Duration

	// MaxEntries bounds the number of retained entries (0 = unbounded).
	MaxEntries int
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		TTL:            DefaultTTL,
		StaleRetention: DefaultStaleRetention,
		MaxEntries:     256,
	}
}

// Manager is an in-memory map from fingerprint to Entry.
// Stored entries are never mutated; Set replaces the whole entry under the
// write lock so readers observe either the old or the new entry.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	config  Config
	now     func() time.Time
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.StaleRetention < 0 {
		cfg.StaleRetention = 0
	}
	return &Manager{
		entries: make(map[string]*Entry),
		config:  cfg,
		now:     time.Now,
	}
}

// SetClock replaces the manager's time source (for testing).
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now()
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// Get retrieves a fresh entry by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (m *Manager) Get(key Fingerprint) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key.String()]
	if !ok || entry.IsExpired(m.now()) {
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// GetStale retrieves an entry regardless of expiry, as long as it is still
// within the stale retention window.
// Returns ErrNoStaleEntry if nothing is retained for key.
func (m *Manager) GetStale(key Fingerprint) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key.String()]
	if !ok || m.evictable(entry, m.now()) {
		return nil, ErrNoStaleEntry
	}
	return entry, nil
}

// Set stores events under key with the configured TTL and returns the new entry.
// Evictable entries are swept on every write.
func (m *Manager) Set(key Fingerprint, events []calendar.Event) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry := &Entry{
		Key:       key.String(),
		Events:    calendar.CloneEvents(events),
		FetchedAt: now,
		ExpiresAt: now.Add(m.config.TTL),
	}
	m.entries[entry.Key] = entry
	m.sweepLocked(now, entry.Key)

	return entry
}

// Delete removes an entry.
func (m *Manager) Delete(key Fingerprint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key.String())
}

// Len returns the number of retained entries, fresh or stale.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Purge removes evictable entries and returns how many were removed.
func (m *Manager) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.now(), "")
}

func (m *Manager) evictable(entry *Entry, now time.Time) bool {
	return !now.Before(entry.ExpiresAt.Add(m.config.StaleRetention))
}

// sweepLocked drops entries past stale retention, then the oldest entries
// other than keep while over MaxEntries. Caller must hold the write lock.
func (m *Manager) sweepLocked(now time.Time, keep string) int {
	removed := 0
	for key, entry := range m.entries {
		if m.evictable(entry, now) {
			delete(m.entries, key)
			removed++
		}
	}

	for m.config.MaxEntries > 0 && len(m.entries) > m.config.MaxEntries {
		var oldestKey string
		var oldest time.Time
		for key, entry := range m.entries {
			if key == keep {
				continue
			}
			if oldestKey == "" || entry.FetchedAt.Before(oldest) {
				oldestKey, oldest = key, entry.FetchedAt
			}
		}
		if oldestKey == "" {
			break
		}
		delete(m.entries, oldestKey)
		removed++
	}

	return removed
}
