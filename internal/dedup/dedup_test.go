package dedup

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
)

func message(schema envelope.Schema, payload string) kafka.Message {
	return kafka.Message{
		Topic:   "inbound",
		Key:     []byte("k"),
		Value:   []byte(payload),
		Headers: []kafka.Header{{Key: envelope.HeaderSchema, Value: []byte(schema)}},
	}
}

func newTestDeduplicator(t *testing.T, capacity int) (*Deduplicator, *time.Time) {
	t.Helper()
	d, err := NewDeduplicator(capacity, false, metrics.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	clock := time.UnixMilli(1_700_000_000_000)
	d.now = func() time.Time { return clock }
	return d, &clock
}

func TestSecondCopyIsDropped(t *testing.T) {
	d, clock := newTestDeduplicator(t, 100)

	if got := d.Check(message(envelope.SchemaArrival, `{"a":1,"b":2}`)); got != Forward {
		t.Fatalf("first copy = %s, want prime", got)
	}
	*clock = clock.Add(250 * time.Millisecond)
	if got := d.Check(message(envelope.SchemaArrival, `{ "b": 2, "a": 1 }`)); got != Drop {
		t.Fatalf("reordered copy = %s, want duplicate", got)
	}

	c := d.Drain()
	if c.Primes != 1 || c.Duplicates != 1 || c.DelaySumMs != 250 {
		t.Errorf("counts = %+v, want 1 prime, 1 duplicate, 250ms", c)
	}
	if again := d.Drain(); again != (Counts{}) {
		t.Errorf("drain must reset counters, got %+v", again)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	d, _ := newTestDeduplicator(t, 2)
	d.Check(message(envelope.SchemaArrival, `{"n":1}`))
	d.Check(message(envelope.SchemaArrival, `{"n":2}`))
	d.Check(message(envelope.SchemaArrival, `{"n":3}`))

	if got := d.Check(message(envelope.SchemaArrival, `{"n":1}`)); got != Forward {
		t.Errorf("evicted hash must be forwarded again, got %s", got)
	}
	if got := d.Check(message(envelope.SchemaArrival, `{"n":3}`)); got != Drop {
		t.Errorf("recent hash must still be a duplicate, got %s", got)
	}
}

func TestNormalizeFeedIsDeterministic(t *testing.T) {
	partial := proto.MarshalOptions{AllowPartial: true}
	hdr, err := partial.Marshal(&gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0"), Timestamp: proto.Uint64(10)},
	})
	if err != nil {
		t.Fatal(err)
	}
	ent, err := partial.Marshal(&gtfs.FeedMessage{
		Entity: []*gtfs.FeedEntity{{Id: proto.String("rail_1")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Same content, fields written in a different order.
	canonical := append(append([]byte{}, hdr...), ent...)
	reordered := append(append([]byte{}, ent...), hdr...)
	if bytes.Equal(canonical, reordered) {
		t.Fatal("test encodings must differ")
	}

	a := Normalize(envelope.SchemaTripUpdate, canonical)
	b := Normalize(envelope.SchemaTripUpdate, reordered)
	if HashPayload(a) != HashPayload(b) {
		t.Errorf("equal feeds hash differently: %x vs %x", a, b)
	}
}

func TestNormalizeFallsBackToRaw(t *testing.T) {
	raw := []byte("not json {")
	if got := Normalize(envelope.SchemaCancellation, raw); string(got) != string(raw) {
		t.Errorf("unparseable payload = %q, want raw bytes", got)
	}
	if got := Normalize(envelope.SchemaArrival, []byte(`{"a":1} {"b":2}`)); string(got) != `{"a":1} {"b":2}` {
		t.Errorf("trailing document must fall back to raw, got %q", got)
	}
	if got := Normalize(envelope.SchemaArrival, []byte(`{"x":12345678901234567890}`)); string(got) != `{"x":12345678901234567890}` {
		t.Errorf("large numbers must survive normalization, got %q", got)
	}
}

func TestInvalidUTF8PayloadsStayDistinct(t *testing.T) {
	d, _ := newTestDeduplicator(t, 100)

	if got := d.Check(message(envelope.SchemaArrival, "{\"v\":\"\xff\"}")); got != Forward {
		t.Fatalf("first payload = %s, want prime", got)
	}
	if got := d.Check(message(envelope.SchemaArrival, "{\"v\":\"\xfe\"}")); got != Forward {
		t.Fatalf("second payload = %s, want prime", got)
	}
	if c := d.Drain(); c.Primes != 2 || c.Duplicates != 0 {
		t.Errorf("counts = %+v, want 2 primes", c)
	}
}

func TestHashIsSeeded(t *testing.T) {
	h := HashPayload([]byte("payload"))
	if h == (Hash{}) {
		t.Fatal("zero hash")
	}
	if h != HashPayload([]byte("payload")) {
		t.Error("hash must be stable across calls")
	}
	if len(h.String()) != 32 {
		t.Errorf("hex form = %q, want 32 characters", h.String())
	}
}

func TestEvaluate(t *testing.T) {
	cfg := config.AnalyticsConfig{DuplicateRatioThreshold: 0.5, AlertOnThreshold: true}
	tests := []struct {
		name      string
		counts    Counts
		cfg       config.AnalyticsConfig
		wantRatio float64
		wantAlert bool
	}{
		{"below threshold", Counts{Primes: 3, Duplicates: 1, DelaySumMs: 40}, cfg, 1.0 / 3, true},
		{"below threshold, alerts off", Counts{Primes: 3, Duplicates: 1}, config.AnalyticsConfig{DuplicateRatioThreshold: 0.5}, 1.0 / 3, false},
		{"above threshold", Counts{Primes: 3, Duplicates: 1}, config.AnalyticsConfig{DuplicateRatioThreshold: 0.2, AlertOnThreshold: true}, 1.0 / 3, false},
		{"more duplicates than primes", Counts{Primes: 2, Duplicates: 3}, config.AnalyticsConfig{}, 1.5, true},
		{"idle window", Counts{}, cfg, 0, false},
		{"duplicates only", Counts{Duplicates: 2}, cfg, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Evaluate(tt.counts, tt.cfg)
			if math.Abs(s.Ratio-tt.wantRatio) > 1e-9 {
				t.Errorf("ratio = %v, want %v", s.Ratio, tt.wantRatio)
			}
			if s.Alert != tt.wantAlert {
				t.Errorf("alert = %v, want %v", s.Alert, tt.wantAlert)
			}
		})
	}
	if s := Evaluate(Counts{Primes: 3, Duplicates: 1, DelaySumMs: 40}, cfg); s.MeanDelayMs != 40 {
		t.Errorf("mean delay = %v, want 40", s.MeanDelayMs)
	}
}

func TestReportResetsWindow(t *testing.T) {
	d, _ := newTestDeduplicator(t, 10)
	for _, p := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`, `{"n":1}`} {
		d.Check(message(envelope.SchemaArrival, p))
	}
	a := NewAnalytics(d, config.AnalyticsConfig{DuplicateRatioThreshold: 0.9, AlertOnThreshold: true}, metrics.NewNop())

	first := a.Report()
	if first.Primes != 3 || first.Duplicates != 1 || !first.Alert {
		t.Errorf("first window = %+v", first)
	}
	if second := a.Report(); second.Primes != 0 || second.Duplicates != 0 || second.Alert {
		t.Errorf("second window = %+v, want empty", second)
	}
}

type recordingForwarder struct {
	msgs []kafka.Message
	err  error
}

func (r *recordingForwarder) Write(_ context.Context, msgs ...kafka.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func TestHandleForwardsPrimesUnchanged(t *testing.T) {
	d, _ := newTestDeduplicator(t, 10)
	fwd := &recordingForwarder{}
	svc := NewService(d, NewAnalytics(d, config.AnalyticsConfig{}, metrics.NewNop()), fwd)
	ctx := context.Background()

	in := message(envelope.SchemaDeparture, `{"id":7}`)
	if err := svc.Handle(ctx, in); err != nil {
		t.Fatal(err)
	}
	if err := svc.Handle(ctx, in); err != nil {
		t.Fatal(err)
	}
	if len(fwd.msgs) != 1 {
		t.Fatalf("forwarded %d messages, want 1", len(fwd.msgs))
	}
	out := fwd.msgs[0]
	if out.Topic != "" {
		t.Errorf("forwarded message must not carry the inbound topic, got %q", out.Topic)
	}
	if string(out.Key) != "k" || string(out.Value) != `{"id":7}` || envelope.SchemaOf(out) != envelope.SchemaDeparture {
		t.Errorf("forwarded message changed: %+v", out)
	}
}

func TestHandleAcksWhenForwardFails(t *testing.T) {
	d, _ := newTestDeduplicator(t, 10)
	fwd := &recordingForwarder{err: errors.New("queue full")}
	svc := NewService(d, NewAnalytics(d, config.AnalyticsConfig{}, metrics.NewNop()), fwd)
	if err := svc.Handle(context.Background(), message(envelope.SchemaArrival, `{}`)); err != nil {
		t.Errorf("forward failure must not block the commit, got %v", err)
	}
}
