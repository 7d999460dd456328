package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/knightclub/tournament-app/pkg/calendar"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupManager(t *testing.T, cfg Config) (*Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	manager := NewManager(cfg)
	manager.SetClock(clock.Now)
	return manager, clock
}

func testEvents(n int) []calendar.Event {
	events := make([]calendar.Event, n)
	for i := range events {
		events[i] = calendar.Event{ID: fmt.Sprintf("ev-%d", i), Title: fmt.Sprintf("Event %d", i)}
	}
	return events
}

func TestNewManager_Defaults(t *testing.T) {
	manager := NewManager(Config{})
	if manager.Config().TTL != DefaultTTL {
		t.Errorf("TTL = %v, want %v", manager.Config().TTL, DefaultTTL)
	}
	if manager.Len() != 0 {
		t.Errorf("Len() = %d, want 0", manager.Len())
	}
}

func TestManager_SetAndGet(t *testing.T) {
	manager, clock := setupManager(t, DefaultConfig())
	key := NewFingerprint(20, clock.Now(), 0)

	entry := manager.Set(key, testEvents(3))
	if entry.Key != key.String() {
		t.Errorf("Key = %q, want %q", entry.Key, key.String())
	}
	if !entry.ExpiresAt.Equal(clock.Now().Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %v, want now+%v", entry.ExpiresAt, DefaultTTL)
	}

	got, err := manager.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Events) != 3 {
		t.Errorf("len(Events) = %d, want 3", len(got.Events))
	}
}

func TestManager_Set_CopiesEvents(t *testing.T) {
	manager, clock := setupManager(t, DefaultConfig())
	key := NewFingerprint(1, clock.Now(), 0)

	events := testEvents(1)
	manager.Set(key, events)
	events[0].Title = "mutated"

	got, err := manager.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Events[0].Title != "Event 0" {
		t.Errorf("cached entry was mutated through caller slice: %q", got.Events[0].Title)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	manager, clock := setupManager(t, DefaultConfig())

	_, err := manager.Get(NewFingerprint(20, clock.Now(), 0))
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_ExpiredEntryIsStale(t *testing.T) {
	manager, clock := setupManager(t, Config{TTL: time.Minute, StaleRetention: time.Hour})
	key := NewFingerprint(20, clock.Now(), 0)
	manager.Set(key, testEvents(2))

	clock.Advance(2 * time.Minute)

	if _, err := manager.Get(key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}

	stale, err := manager.GetStale(key)
	if err != nil {
		t.Fatalf("GetStale failed: %v", err)
	}
	if len(stale.Events) != 2 {
		t.Errorf("len(stale.Events) = %d, want 2", len(stale.Events))
	}
}

func TestManager_StaleRetentionEviction(t *testing.T) {
	manager, clock := setupManager(t, Config{TTL: time.Minute, StaleRetention: 10 * time.Minute})
	old := NewFingerprint(20, clock.Now(), 0)
	manager.Set(old, testEvents(1))

	clock.Advance(11 * time.Minute)

	if _, err := manager.GetStale(old); !errors.Is(err, ErrNoStaleEntry) {
		t.Errorf("Expected ErrNoStaleEntry past retention, got %v", err)
	}

	// The next write sweeps the evictable entry.
	manager.Set(NewFingerprint(5, clock.Now(), 0), testEvents(1))
	if manager.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after sweep", manager.Len())
	}
}

func TestManager_Purge(t *testing.T) {
	manager, clock := setupManager(t, Config{TTL: time.Minute, StaleRetention: time.Minute})
	manager.Set(NewFingerprint(1, clock.Now(), 0), testEvents(1))
	manager.Set(NewFingerprint(2, clock.Now(), 0), testEvents(1))

	clock.Advance(3 * time.Minute)

	if removed := manager.Purge(); removed != 2 {
		t.Errorf("Purge() = %d, want 2", removed)
	}
}

func TestManager_MaxEntries(t *testing.T) {
	manager, clock := setupManager(t, Config{TTL: time.Minute, StaleRetention: time.Hour, MaxEntries: 2})

	first := NewFingerprint(1, clock.Now(), 0)
	manager.Set(first, testEvents(1))
	clock.Advance(time.Second)
	manager.Set(NewFingerprint(2, clock.Now(), 0), testEvents(1))
	clock.Advance(time.Second)
	latest := NewFingerprint(3, clock.Now(), 0)
	manager.Set(latest, testEvents(1))

	if manager.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", manager.Len())
	}
	if _, err := manager.GetStale(first); !errors.Is(err, ErrNoStaleEntry) {
		t.Errorf("oldest entry should have been evicted, got %v", err)
	}
	if _, err := manager.Get(latest); err != nil {
		t.Errorf("latest entry should be present, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	manager, clock := setupManager(t, DefaultConfig())
	key := NewFingerprint(20, clock.Now(), 0)
	manager.Set(key, testEvents(1))

	manager.Delete(key)

	if _, err := manager.GetStale(key); !errors.Is(err, ErrNoStaleEntry) {
		t.Errorf("Expected ErrNoStaleEntry after Delete, got %v", err)
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	manager, clock := setupManager(t, DefaultConfig())
	key := NewFingerprint(20, clock.Now(), 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			manager.Set(key, testEvents(n%5+1))
		}(i)
		go func() {
			defer wg.Done()
			if entry, err := manager.Get(key); err == nil && len(entry.Events) == 0 {
				t.Error("observed an entry without events")
			}
		}()
	}
	wg.Wait()
}
