package cancellation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
)

func cand(trip string, status Status, ts int64) Candidate {
	return NewCandidate(trip, status, ts, Cancellation{RouteID: "1055", DirectionID: 1})
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name   string
		in     []Candidate
		wantTS []int64
		wantSt []Status
	}{
		{
			name:   "canceled wins over running",
			in:     []Candidate{cand("T", StatusCanceled, 5), cand("T", StatusRunning, 1), cand("T", StatusRunning, 9)},
			wantTS: []int64{5},
			wantSt: []Status{StatusCanceled},
		},
		{
			name:   "earliest running kept",
			in:     []Candidate{cand("T", StatusRunning, 9), cand("T", StatusRunning, 1), cand("T", StatusRunning, 5)},
			wantTS: []int64{1},
			wantSt: []Status{StatusRunning},
		},
		{
			name:   "first of several cancellations",
			in:     []Candidate{cand("T", StatusRunning, 1), cand("T", StatusCanceled, 7), cand("T", StatusCanceled, 3)},
			wantTS: []int64{7},
			wantSt: []Status{StatusCanceled},
		},
		{
			name:   "unknown status dropped",
			in:     []Candidate{{TripID: "T", Status: "SKIPPED", TimestampMs: 1}},
			wantTS: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.in, nil)
			if len(got) != len(tt.wantTS) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.wantTS))
			}
			for i := range got {
				if got[i].TimestampMs != tt.wantTS[i] || got[i].Status != tt.wantSt[i] {
					t.Errorf("record %d = %s@%d, want %s@%d", i, got[i].Status, got[i].TimestampMs, tt.wantSt[i], tt.wantTS[i])
				}
			}
		})
	}
}

func TestReconcileKeepsFirstAppearanceOrder(t *testing.T) {
	got := Reconcile([]Candidate{
		cand("B", StatusRunning, 2),
		cand("A", StatusCanceled, 1),
		cand("B", StatusCanceled, 3),
		cand("C", StatusRunning, 4),
	}, nil)
	var ids []string
	for _, c := range got {
		ids = append(ids, c.TripID)
	}
	if strings.Join(ids, ",") != "B,A,C" {
		t.Errorf("order = %v, want B,A,C", ids)
	}
}

func TestChangeTracker(t *testing.T) {
	tr := NewChangeTracker()
	if n, r := tr.Observe([]Candidate{cand("A", StatusCanceled, 1), cand("B", StatusCanceled, 1)}); n != 2 || r != 0 {
		t.Errorf("first = %d new %d repeated", n, r)
	}
	if n, r := tr.Observe([]Candidate{cand("B", StatusRunning, 2), cand("C", StatusCanceled, 2)}); n != 1 || r != 1 {
		t.Errorf("second = %d new %d repeated", n, r)
	}
	if n, r := tr.Observe([]Candidate{cand("A", StatusCanceled, 3)}); n != 1 || r != 0 {
		t.Errorf("third = %d new %d repeated, A was not in the previous set", n, r)
	}
}

func TestCandidateEnvelope(t *testing.T) {
	env, err := cand("12345", StatusCanceled, 1700).Envelope()
	if err != nil {
		t.Fatal(err)
	}
	if env.Key() != "12345" || env.EventTimeMs() != 1700 || env.Schema() != envelope.SchemaCancellation {
		t.Errorf("unexpected envelope %s/%d/%s", env.Key(), env.EventTimeMs(), env.Schema())
	}
	var p Cancellation
	if err := json.Unmarshal(env.Payload(), &p); err != nil {
		t.Fatal(err)
	}
	if p.TripID != "12345" || p.Status != StatusCanceled || p.SchemaVersion != schemaVersion {
		t.Errorf("payload = %+v", p)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		in      sql.NullString
		want    Status
		wantErr bool
	}{
		{sql.NullString{String: "active", Valid: true}, StatusCanceled, false},
		{sql.NullString{String: "DELETED", Valid: true}, StatusRunning, false},
		{sql.NullString{}, StatusCanceled, false},
		{sql.NullString{String: "pending", Valid: true}, "", true},
	}
	for _, tt := range tests {
		got, err := statusOf(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("statusOf(%+v) = %q, %v", tt.in, got, err)
		}
	}
}

func TestParseWindow(t *testing.T) {
	if w, err := ParseWindow("past"); err != nil || w != WindowPast {
		t.Errorf("past = %q, %v", w, err)
	}
	if _, err := ParseWindow("tomorrow"); !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
	if strings.Contains(ommQuery(WindowNow), "$3") {
		t.Error("NOW query must take two parameters")
	}
	if !strings.Contains(ommQuery(WindowPast), "$3") {
		t.Error("PAST query must take the lookback parameter")
	}
}

func TestScanReadsLocalModificationTime(t *testing.T) {
	loc := time.FixedZone("EET", 2*3600)
	s := NewOMMStore(nil, WindowNow, loc, time.Minute)
	modified := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	c, err := s.scan(func(dest ...any) error {
		*dest[0].(*int64) = 987
		*dest[1].(*string) = "2550"
		*dest[2].(*int) = 2
		*dest[3].(*string) = "20240301"
		*dest[4].(*string) = "10:15:00"
		*dest[5].(*sql.NullString) = sql.NullString{String: "deleted", Valid: true}
		*dest[6].(*sql.NullTime) = sql.NullTime{Time: modified, Valid: true}
		*dest[9].(*sql.NullString) = sql.NullString{String: "Driver shortage", Valid: true}
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if c.TripID != "987" || c.Status != StatusRunning {
		t.Errorf("candidate = %+v", c)
	}
	if want := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC).UnixMilli(); c.TimestampMs != want {
		t.Errorf("timestamp = %d, want %d", c.TimestampMs, want)
	}
	if c.Payload.Title != "Driver shortage" || c.Payload.StartDate != "20240301" || c.Payload.DirectionID != 2 {
		t.Errorf("payload = %+v", c.Payload)
	}
}

func TestScanRejectsMissingTimestamp(t *testing.T) {
	s := NewOMMStore(nil, WindowNow, time.UTC, time.Minute)
	_, err := s.scan(func(dest ...any) error {
		*dest[0].(*int64) = 1
		return nil
	})
	if !errors.Is(err, apperrors.ErrMalformedRow) {
		t.Errorf("err = %v, want ErrMalformedRow", err)
	}
}

type fakeSource struct {
	batches [][]Candidate
	err     error
}

func (f *fakeSource) Candidates(context.Context) ([]Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	return next, nil
}

type fakePublisher struct {
	published [][]envelope.Envelope
}

func (f *fakePublisher) Publish(_ context.Context, envs []envelope.Envelope) (int, error) {
	f.published = append(f.published, envs)
	return len(envs), nil
}

func TestBridgePublishesReducedSet(t *testing.T) {
	src := &fakeSource{batches: [][]Candidate{{
		cand("T", StatusCanceled, 5),
		cand("T", StatusRunning, 1),
		cand("U", StatusRunning, 9),
	}}}
	pub := &fakePublisher{}
	b := NewBridge("omm", src, pub, metrics.NewNop())

	if err := b.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(pub.published) != 1 || len(pub.published[0]) != 2 {
		t.Fatalf("published %v", pub.published)
	}
	if pub.published[0][0].Key() != "T" || pub.published[0][1].Key() != "U" {
		t.Errorf("keys = %s,%s", pub.published[0][0].Key(), pub.published[0][1].Key())
	}
}

func TestBridgePropagatesSourceError(t *testing.T) {
	cause := apperrors.New(apperrors.ErrConnectivity, "db down")
	b := NewBridge("omm", &fakeSource{err: cause}, &fakePublisher{}, metrics.NewNop())
	if err := b.RunCycle(context.Background()); !errors.Is(err, apperrors.ErrConnectivity) {
		t.Errorf("err = %v, want ErrConnectivity", err)
	}
}
