package dedup

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
)

// Forwarder sends primes downstream without waiting for delivery.
type Forwarder interface {
	Write(ctx context.Context, msgs ...kafka.Message) error
}

// MessageSource delivers inbound messages to a handler until ctx ends.
type MessageSource interface {
	Start(ctx context.Context) error
}

// Service wires the inbound consumer, the Deduplicator, the outbound
// forwarder and the analytics loop.
type Service struct {
	dedup     *Deduplicator
	analytics *Analytics
	forwarder Forwarder
	logger    *slog.Logger
}

func NewService(d *Deduplicator, a *Analytics, fwd Forwarder) *Service {
	return &Service{
		dedup:     d,
		analytics: a,
		forwarder: fwd,
		logger:    slog.Default().With("component", "dedup-service"),
	}
}

// Handle is the consumer callback. It always returns nil so every message is
// committed once its hash decision is made, whatever happened to the
// forward.
func (s *Service) Handle(ctx context.Context, msg kafka.Message) error {
	if s.dedup.Check(msg) == Drop {
		return nil
	}
	out := kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: msg.Headers,
		Time:    msg.Time,
	}
	if err := s.forwarder.Write(ctx, out); err != nil {
		s.logger.Error("forwarding message failed",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
	return nil
}

// Run consumes from source and reports analytics until ctx ends or the
// source fails.
func (s *Service) Run(ctx context.Context, source MessageSource) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return source.Start(ctx) })
	g.Go(func() error { return s.analytics.Run(ctx) })
	return g.Wait()
}
