package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Message and Header re-export the kafka-go types so callers do not need a
// second import named kafka.
type (
	Message = kafka.Message
	Header  = kafka.Header
)

// Producer writes messages to a single Kafka topic.
type Producer struct {
	writer      *kafka.Writer
	brokers     []string
	dialTimeout time.Duration
	logger      *slog.Logger
}

// NewProducer creates a Producer whose Write blocks until the batch holding
// the messages is acknowledged. Concurrent Write calls share batches.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Lz4,
		Async:        false,
	}
	return newProducer(cfg, topic, w)
}

// NewAsyncProducer creates a Producer whose Write returns as soon as the
// messages are queued. Delivery failures are only logged.
func NewAsyncProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Lz4,
		Async:        true,
	}
	p := newProducer(cfg, topic, w)
	w.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			p.logger.Error("async delivery failed",
				"count", len(messages),
				"error", err,
			)
		}
	}
	return p
}

func newProducer(cfg config.KafkaConfig, topic string, w *kafka.Writer) *Producer {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Producer{
		writer:      w,
		brokers:     cfg.Brokers,
		dialTimeout: timeout,
		logger:      slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Write sends msgs to the producer's topic.
func (p *Producer) Write(ctx context.Context, msgs ...Message) error {
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing %d messages to kafka: %w", len(msgs), err)
	}
	return nil
}

// Ping reports whether at least one broker accepts a connection.
func (p *Producer) Ping(ctx context.Context) error {
	dialer := &kafka.Dialer{Timeout: p.dialTimeout}
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return fmt.Errorf("no reachable kafka broker: %w", lastErr)
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// IsConnectivityError reports whether err means the brokers could not be
// reached, as opposed to a rejection of individual messages.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if IsConnectivityError(e) {
				return true
			}
		}
		return false
	}
	// kafka.Error also satisfies net.Error, so broker error codes are
	// checked first.
	var kafkaErr kafka.Error
	if errors.As(err, &kafkaErr) {
		switch kafkaErr {
		case kafka.BrokerNotAvailable, kafka.LeaderNotAvailable, kafka.NetworkException, kafka.NotLeaderForPartition:
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, context.DeadlineExceeded)
}
