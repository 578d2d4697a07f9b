package metro

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
)

const bridgeName = "metro"

// Publisher emits metro-estimate envelopes.
type Publisher interface {
	Publish(ctx context.Context, envs []envelope.Envelope) (int, error)
}

// Service is the consumer side of the metro bridge: each relayed ATS
// message becomes at most one metro-estimate envelope.
type Service struct {
	estimator *Estimator
	publisher Publisher
	liveness  *scheduler.Liveness
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(e *Estimator, p Publisher, l *scheduler.Liveness, m *metrics.Metrics) *Service {
	return &Service{
		estimator: e,
		publisher: p,
		liveness:  l,
		metrics:   m,
		logger:    slog.Default().With("component", "metro-service"),
	}
}

// Handle is the consumer callback. Messages that cannot become an estimate
// are logged and committed. An error leaves the message uncommitted and is
// returned only when the journey cache or the broker is unreachable.
func (s *Service) Handle(ctx context.Context, msg kafka.Message) error {
	in, err := envelope.FromMessage(msg)
	if err != nil {
		s.logger.Warn("ignoring unframed message", "offset", msg.Offset, "error", err)
		return nil
	}
	if in.Schema() != envelope.SchemaMQTTRaw {
		s.logger.Warn("ignoring message with unexpected schema", "schema", in.Schema(), "offset", msg.Offset)
		return nil
	}

	est, ok, err := s.estimator.Estimate(ctx, in.Payload())
	if err != nil {
		return err
	}
	if !ok {
		s.metrics.EnrichmentMissesTotal.WithLabelValues(bridgeName).Inc()
		s.liveness.Touch()
		return nil
	}
	payload, err := json.Marshal(est)
	if err != nil {
		return err
	}
	env, err := envelope.New(in.Key(), in.EventTimeMs(), envelope.SchemaMetroEstimate, SchemaVersion,
		map[string]string{envelope.PropertyDvjID: est.DvjID}, payload)
	if err != nil {
		return err
	}
	if _, err := s.publisher.Publish(ctx, []envelope.Envelope{env}); err != nil {
		return err
	}
	s.liveness.Touch()
	return nil
}
