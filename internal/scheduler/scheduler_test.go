package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeOK},
		{apperrors.New(apperrors.ErrTransient, "deadlock victim"), OutcomeSkipped},
		{apperrors.New(apperrors.ErrBatchParse, "bad feed"), OutcomeSkipped},
		{apperrors.New(apperrors.ErrPreconditionFailed, "stale cache"), OutcomeSkipped},
		{apperrors.New(apperrors.ErrConnectivity, "kafka"), OutcomeFatal},
		{errors.New("unexpected"), OutcomeFatal},
	}
	for _, tt := range tests {
		if got := Decide(tt.err); got != tt.want {
			t.Errorf("Decide(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestSchedulerStopsOnFatal(t *testing.T) {
	var calls atomic.Int32
	task := func(ctx context.Context) error {
		switch calls.Add(1) {
		case 1:
			return nil
		case 2:
			return apperrors.New(apperrors.ErrTransient, "deadlock victim")
		default:
			return fmt.Errorf("publishing: %w", apperrors.ErrConnectivity)
		}
	}
	s := New("test", time.Millisecond, task, metrics.NewNop())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, apperrors.ErrConnectivity) {
			t.Fatalf("Run = %v, want connectivity error", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop on fatal error")
	}
	if calls.Load() != 3 {
		t.Errorf("task ran %d times, want 3", calls.Load())
	}
}

func TestSchedulerStopAndLiveness(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	live := &Liveness{now: func() time.Time { return base }}
	live.last.Store(base.Add(-time.Hour).UnixNano())

	var cycleIDs atomic.Int32
	ran := make(chan struct{}, 100)
	task := func(ctx context.Context) error {
		if logger.CycleID(ctx) != "" {
			cycleIDs.Add(1)
		}
		ran <- struct{}{}
		return nil
	}
	s := New("test", time.Millisecond, task, metrics.NewNop(), WithLiveness(live))
	s.Start(context.Background())

	<-ran
	<-ran
	s.Stop()

	if err := s.Wait(); err != nil {
		t.Errorf("Wait after Stop = %v, want nil", err)
	}
	if cycleIDs.Load() < 2 {
		t.Errorf("cycles without cycle id: %d tagged", cycleIDs.Load())
	}
	if live.Since() != 0 {
		t.Errorf("liveness not touched by the successful cycles: %s", live.Since())
	}
}

func TestLivenessCheck(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	live := &Liveness{now: func() time.Time { return now }}
	live.Touch()
	check := live.Check(time.Minute)

	if got := check(context.Background()); got.Status != health.StatusUp {
		t.Errorf("fresh liveness = %s", got.Status)
	}
	now = now.Add(2 * time.Minute)
	if got := check(context.Background()); got.Status != health.StatusDown {
		t.Errorf("stale liveness = %s", got.Status)
	}
}

func TestInitialDelayRespectsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	s := New("test", time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}, metrics.NewNop(), WithInitialDelay(time.Hour))
	s.Start(ctx)
	cancel()
	if err := s.Wait(); err != nil {
		t.Errorf("Wait = %v", err)
	}
	if calls.Load() != 0 {
		t.Error("task ran despite cancellation during the initial delay")
	}
}
