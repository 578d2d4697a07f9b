package publisher

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
	segkafka "github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	pingErr  error
	writeErr error
	pings    int
	written  []kafka.Message
}

func (f *fakeWriter) Ping(context.Context) error {
	f.pings++
	return f.pingErr
}

func (f *fakeWriter) Write(_ context.Context, msgs ...kafka.Message) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, msgs...)
	return nil
}

func envelopes(t *testing.T, n int) []envelope.Envelope {
	t.Helper()
	out := make([]envelope.Envelope, n)
	for i := range out {
		env, err := envelope.New(fmt.Sprintf("k%d", i), int64(1000+i), envelope.SchemaArrival, 1, nil, []byte("{}"))
		if err != nil {
			t.Fatal(err)
		}
		out[i] = env
	}
	return out
}

func TestPublishKeepsOrder(t *testing.T) {
	w := &fakeWriter{}
	p := New(w, "arrival", metrics.NewNop())
	sent, err := p.Publish(context.Background(), envelopes(t, 3))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if sent != 3 || len(w.written) != 3 {
		t.Fatalf("sent %d, written %d", sent, len(w.written))
	}
	for i, msg := range w.written {
		if want := fmt.Sprintf("k%d", i); string(msg.Key) != want {
			t.Errorf("message %d key = %q, want %q", i, msg.Key, want)
		}
	}
}

func TestEmptyBatchSkipsBroker(t *testing.T) {
	w := &fakeWriter{pingErr: errors.New("down")}
	p := New(w, "arrival", metrics.NewNop())
	if _, err := p.Publish(context.Background(), nil); err != nil {
		t.Errorf("empty batch must not fail: %v", err)
	}
	if w.pings != 0 {
		t.Errorf("pinged broker %d times for an empty batch", w.pings)
	}
}

func TestNotConnectedFailsFast(t *testing.T) {
	w := &fakeWriter{pingErr: syscall.ECONNREFUSED}
	p := New(w, "arrival", metrics.NewNop())
	_, err := p.Publish(context.Background(), envelopes(t, 2))
	if apperrors.Classify(err) != apperrors.ClassConnectivity {
		t.Fatalf("class = %s, want connectivity", apperrors.Classify(err))
	}
	if len(w.written) != 0 {
		t.Error("nothing may be sent when the broker is not connected")
	}
}

func TestPerEnvelopeFailuresAreLoggedOnly(t *testing.T) {
	w := &fakeWriter{writeErr: fmt.Errorf("writing: %w", segkafka.WriteErrors{nil, segkafka.MessageSizeTooLarge, nil})}
	p := New(w, "departure", metrics.NewNop())
	sent, err := p.Publish(context.Background(), envelopes(t, 3))
	if err != nil {
		t.Fatalf("rejections must not fail the batch: %v", err)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want 2", sent)
	}
}

func TestConnectivityAtFlushEscalates(t *testing.T) {
	w := &fakeWriter{writeErr: segkafka.WriteErrors{nil, segkafka.NetworkException}}
	p := New(w, "departure", metrics.NewNop())
	sent, err := p.Publish(context.Background(), envelopes(t, 2))
	if !apperrors.Fatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
}
