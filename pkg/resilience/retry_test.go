package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	}
}

func TestConnectSucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Connect(context.Background(), "redis", fastRetry(4), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "client", nil
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got != "client" || calls != 3 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	cause := errors.New("connection refused")
	calls := 0
	err := Retry(context.Background(), "postgres", fastRetry(3), func() error {
		calls++
		return cause
	})
	if !errors.Is(err, cause) {
		t.Errorf("expected last error to be wrapped, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, "kafka", fastRetry(5), func() error {
		calls++
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestComputeDelayCapped(t *testing.T) {
	cfg := withDefaults(RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second})
	if d := computeDelay(10, cfg); d > 3*time.Second {
		t.Errorf("delay %s exceeds cap", d)
	}
}
