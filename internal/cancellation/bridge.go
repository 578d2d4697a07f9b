package cancellation

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
)

// Source yields this cycle's cancellation candidates.
type Source interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

type Publisher interface {
	Publish(ctx context.Context, envs []envelope.Envelope) (int, error)
}

// Bridge polls a Source, reconciles the candidates and publishes one
// envelope per trip.
type Bridge struct {
	name      string
	source    Source
	tracker   *ChangeTracker
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewBridge(name string, source Source, pub Publisher, m *metrics.Metrics) *Bridge {
	return &Bridge{
		name:      name,
		source:    source,
		tracker:   NewChangeTracker(),
		publisher: pub,
		metrics:   m,
		logger:    slog.Default().With("component", "cancellation-bridge", "bridge", name),
	}
}

func (b *Bridge) RunCycle(ctx context.Context) error {
	candidates, err := b.source.Candidates(ctx)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx, b.logger)

	reduced := Reconcile(candidates, log)
	fresh, repeated := b.tracker.Observe(reduced)
	b.metrics.CancellationsTotal.WithLabelValues(b.name, "new").Add(float64(fresh))
	b.metrics.CancellationsTotal.WithLabelValues(b.name, "repeated").Add(float64(repeated))
	log.Info("cancellations reconciled",
		"candidates", len(candidates),
		"total", len(reduced),
		"new", fresh,
		"repeated", repeated,
	)

	envs := make([]envelope.Envelope, 0, len(reduced))
	for _, c := range reduced {
		env, err := c.Envelope()
		if err != nil {
			log.Error("framing cancellation failed", "trip_id", c.TripID, "error", err)
			continue
		}
		log.Debug("cancellation queued", "trip", c.Describe(), "status", c.Status)
		envs = append(envs, env)
	}

	_, err = b.publisher.Publish(ctx, envs)
	return err
}
