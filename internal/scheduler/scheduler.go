// Package scheduler drives a bridge's polling cycle at a fixed rate and
// applies the failure policy that decides whether a failed cycle is skipped
// or stops the process.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
	"github.com/google/uuid"
)

// Task is one polling cycle.
type Task func(ctx context.Context) error

// Outcome is what the scheduler does after a cycle.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFatal   Outcome = "fatal"
)

// Decide maps a cycle's error to an outcome. Connectivity failures and
// anything unclassified are fatal; the process is expected to be restarted
// by its supervisor.
func Decide(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	if apperrors.Fatal(err) {
		return OutcomeFatal
	}
	return OutcomeSkipped
}

// Scheduler runs a Task on a single goroutine. Cycles never overlap: a slow
// cycle delays the next tick instead.
type Scheduler struct {
	name         string
	interval     time.Duration
	initialDelay time.Duration
	task         Task
	liveness     *Liveness
	metrics      *metrics.Metrics
	logger       *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

type Option func(*Scheduler)

// WithInitialDelay postpones the first cycle. The default is to run at once.
func WithInitialDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.initialDelay = d }
}

// WithLiveness touches l after every successful cycle.
func WithLiveness(l *Liveness) Option {
	return func(s *Scheduler) { s.liveness = l }
}

func New(name string, interval time.Duration, task Task, m *metrics.Metrics, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:     name,
		interval: interval,
		task:     task,
		metrics:  m,
		logger:   slog.Default().With("component", "scheduler", "bridge", name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the cycle loop. It is a no-op if already started.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
	s.logger.Info("scheduler started", "interval", s.interval, "initial_delay", s.initialDelay)
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the loop ends and returns the fatal error that ended it,
// or nil after Stop or parent cancellation.
func (s *Scheduler) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return errors.New("scheduler not started")
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Run starts the scheduler and waits for it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	return s.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	if s.initialDelay > 0 {
		timer := time.NewTimer(s.initialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runOnce(ctx); err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.logger.Error("fatal error, stopping scheduler", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

// runOnce executes one cycle and returns the error only if it is fatal.
func (s *Scheduler) runOnce(ctx context.Context) error {
	cycleCtx := logger.WithCycleID(ctx, uuid.NewString())
	log := logger.FromContext(cycleCtx, s.logger)

	start := time.Now()
	err := s.task(cycleCtx)
	s.metrics.CycleDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())

	if err != nil && ctx.Err() != nil {
		// Shutdown raced the cycle; not a failure of the cycle itself.
		return nil
	}
	outcome := Decide(err)
	s.metrics.CycleOutcomesTotal.WithLabelValues(s.name, string(outcome)).Inc()
	switch outcome {
	case OutcomeOK:
		if s.liveness != nil {
			s.liveness.Touch()
		}
	case OutcomeSkipped:
		class := apperrors.Classify(err)
		if class == apperrors.ClassTransient {
			log.Warn("transient failure, skipping cycle", "error", err)
		} else {
			log.Error("cycle failed, waiting for next tick", "class", class.String(), "error", err)
		}
	case OutcomeFatal:
		return err
	}
	return nil
}
