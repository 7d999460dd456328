package ratelimit

import (
	"testing"
	"time"
)

func TestDecision_RetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		resetAt  time.Time
		expected time.Duration
	}{
		{"whole seconds", now.Add(30 * time.Second), 30 * time.Second},
		{"rounds up fraction", now.Add(1500 * time.Millisecond), 2 * time.Second},
		{"already passed", now.Add(-time.Second), time.Second},
		{"exactly now", now, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decision{ResetAt: tt.resetAt}
			if got := d.RetryAfter(now); got != tt.expected {
				t.Errorf("RetryAfter() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 42, 0, time.UTC)
	want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := WindowStart(now, time.Minute); !got.Equal(want) {
		t.Errorf("WindowStart() = %v, want %v", got, want)
	}
}

func TestWindowKey(t *testing.T) {
	start := time.Unix(1_700_000_040, 0)

	got := WindowKey("ip:10.0.0.1", start, time.Minute)
	want := "ratelimit:ip:10.0.0.1:28333334"

	if got != want {
		t.Errorf("WindowKey() = %q, want %q", got, want)
	}
}
