package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fastPolicy keeps backoffs in the millisecond range.
func fastPolicy(ErrorClass) Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func classifyAs(class ErrorClass) func(error) ErrorClass {
	return func(error) ErrorClass { return class }
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestDefaultPolicy(t *testing.T) {
	tests := []struct {
		name             string
		errorClass       ErrorClass
		expectedInitial  time.Duration
		expectedMax      time.Duration
		expectedAttempts int
	}{
		{"server error config", ErrorClassServer, 1 * time.Second, 10 * time.Second, 3},
		{"rate limit config", ErrorClassRateLimit, 5 * time.Second, 60 * time.Second, 3},
		{"network error config", ErrorClassNetwork, 2 * time.Second, 30 * time.Second, 3},
		{"unknown error class uses default", "", 1 * time.Second, 30 * time.Second, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultPolicy(tt.errorClass)

			if config.InitialBackoff != tt.expectedInitial {
				t.Errorf("InitialBackoff = %v, want %v", config.InitialBackoff, tt.expectedInitial)
			}
			if config.MaxBackoff != tt.expectedMax {
				t.Errorf("MaxBackoff = %v, want %v", config.MaxBackoff, tt.expectedMax)
			}
			if config.MaxAttempts != tt.expectedAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, tt.expectedAttempts)
			}
		})
	}
}

func TestRetrier_SuccessFirstAttempt(t *testing.T) {
	r := New("test", fastPolicy)
	attempts := 0

	err := r.Do(context.Background(), func() error {
		attempts++
		return nil
	}, classifyAs(ErrorClassServer))

	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetrier_SuccessAfterRetry(t *testing.T) {
	r := New("test", fastPolicy)
	attempts := 0

	err := r.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errTest
		}
		return nil
	}, classifyAs(ErrorClassServer))

	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetrier_Exhausted(t *testing.T) {
	r := New("test", fastPolicy)
	attempts := 0

	err := r.Do(context.Background(), func() error {
		attempts++
		return errTest
	}, classifyAs(ErrorClassNetwork))

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Do() error = %v, want ErrRetryExhausted", err)
	}
	if !errors.Is(err, errTest) {
		t.Errorf("Do() error = %v, want wrapped errTest", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetrier_ClientErrorNotRetried(t *testing.T) {
	r := New("test", fastPolicy)
	attempts := 0

	err := r.Do(context.Background(), func() error {
		attempts++
		return errTest
	}, classifyAs(ErrorClassClient))

	if !errors.Is(err, errTest) {
		t.Errorf("Do() error = %v, want errTest", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("client errors must not report exhaustion")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetrier_ContextCancelledDuringBackoff(t *testing.T) {
	slow := func(ErrorClass) Config {
		return Config{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffMultiplier: 1}
	}
	r := New("test", slow)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Do(ctx, func() error { return errTest }, classifyAs(ErrorClassServer))

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Do() error = %v, want ErrContextCancelled", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Do() took %v, expected to stop at context deadline", elapsed)
	}
}

func TestNew_NilPolicyUsesDefault(t *testing.T) {
	r := New("test", nil)
	if got := r.policy(ErrorClassRateLimit); got.InitialBackoff != 5*time.Second {
		t.Errorf("policy(rate_limit).InitialBackoff = %v, want 5s", got.InitialBackoff)
	}
}
