// Package publisher sends a cycle's envelopes to the messaging backbone.
// Individual send failures are logged and counted; only a broker that cannot
// be reached fails the cycle.
package publisher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
	segkafka "github.com/segmentio/kafka-go"
)

// Writer is the producer side of the broker client.
type Writer interface {
	Ping(ctx context.Context) error
	Write(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher emits envelopes for one bridge.
type Publisher struct {
	writer  Writer
	bridge  string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Publisher. bridge labels metrics and logs.
func New(writer Writer, bridge string, m *metrics.Metrics) *Publisher {
	return &Publisher{
		writer:  writer,
		bridge:  bridge,
		metrics: m,
		logger:  slog.Default().With("component", "publisher", "bridge", bridge),
	}
}

// Publish hands the whole ordered batch to the producer and blocks until
// every message has been acknowledged or has failed. It returns the number
// of envelopes delivered. The error is non-nil only when the broker is
// unreachable, either before the batch starts or while it is in flight.
func (p *Publisher) Publish(ctx context.Context, envs []envelope.Envelope) (int, error) {
	if len(envs) == 0 {
		return 0, nil
	}
	log := logger.FromContext(ctx, p.logger)
	if err := p.writer.Ping(ctx); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrConnectivity, err, "broker not connected")
	}

	msgs := make([]kafka.Message, len(envs))
	for i, env := range envs {
		msgs[i] = env.Message()
	}

	err := p.writer.Write(ctx, msgs...)
	if err == nil {
		p.metrics.EnvelopesPublishedTotal.WithLabelValues(p.bridge).Add(float64(len(envs)))
		log.Debug("batch published", "count", len(envs))
		return len(envs), nil
	}
	if errors.Is(err, context.Canceled) {
		return 0, err
	}

	var writeErrs segkafka.WriteErrors
	if !errors.As(err, &writeErrs) || len(writeErrs) != len(envs) {
		p.metrics.EnvelopesFailedTotal.WithLabelValues(p.bridge).Add(float64(len(envs)))
		if kafka.IsConnectivityError(err) {
			return 0, apperrors.Wrap(apperrors.ErrConnectivity, err, "flushing batch")
		}
		log.Error("batch send failed", "count", len(envs), "error", err)
		return 0, nil
	}

	var sent int
	var connErr error
	for i, sendErr := range writeErrs {
		if sendErr == nil {
			sent++
			continue
		}
		log.Error("envelope send failed",
			"key", envs[i].Key(),
			"schema", envs[i].Schema(),
			"error", sendErr,
		)
		if connErr == nil && kafka.IsConnectivityError(sendErr) {
			connErr = sendErr
		}
	}
	p.metrics.EnvelopesPublishedTotal.WithLabelValues(p.bridge).Add(float64(sent))
	p.metrics.EnvelopesFailedTotal.WithLabelValues(p.bridge).Add(float64(len(envs) - sent))
	if connErr != nil {
		return sent, apperrors.Wrap(apperrors.ErrConnectivity, connErr, "flushing batch")
	}
	return sent, nil
}
