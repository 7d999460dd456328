package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestLocalLimiter(limit int, window time.Duration) (*LocalLimiter, *time.Time) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(limit, window)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLocalLimiter_BlocksAfterLimit(t *testing.T) {
	l, now := newTestLocalLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "ip:1.2.3.4")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d blocked, want allowed", i+1)
		}
		if d.Remaining != 2-i {
			t.Errorf("request %d Remaining = %d, want %d", i+1, d.Remaining, 2-i)
		}
	}

	d, err := l.Allow(ctx, "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if d.Allowed {
		t.Fatal("4th request allowed, want blocked")
	}
	if want := now.Add(20 * time.Second); !d.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", d.ResetAt, want)
	}
}

func TestLocalLimiter_Refills(t *testing.T) {
	l, now := newTestLocalLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.Allow(ctx, "user:1")
	}
	if d, _ := l.Allow(ctx, "user:1"); d.Allowed {
		t.Fatal("request over limit allowed")
	}

	*now = now.Add(20 * time.Second)

	if d, _ := l.Allow(ctx, "user:1"); !d.Allowed {
		t.Error("request after refill blocked, want allowed")
	}
}

func TestLocalLimiter_ScopesAreIndependent(t *testing.T) {
	l, _ := newTestLocalLimiter(1, time.Minute)
	ctx := context.Background()

	if d, _ := l.Allow(ctx, "a"); !d.Allowed {
		t.Error("first request for a blocked")
	}
	if d, _ := l.Allow(ctx, "b"); !d.Allowed {
		t.Error("first request for b blocked")
	}
	if d, _ := l.Allow(ctx, "a"); d.Allowed {
		t.Error("second request for a allowed")
	}
}

func TestLocalLimiter_SweepsIdleScopes(t *testing.T) {
	l, now := newTestLocalLimiter(5, time.Minute)
	ctx := context.Background()

	l.Allow(ctx, "a")
	l.Allow(ctx, "b")
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}

	*now = now.Add(2 * time.Minute)
	l.Allow(ctx, "c")

	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after sweep", l.Len())
	}
}

func TestLocalLimiter_CancelledContext(t *testing.T) {
	l, _ := newTestLocalLimiter(5, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Allow(ctx, "a"); err == nil {
		t.Error("Allow() error = nil, want context error")
	}
}
