package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/redis"
)

type fakeSchedule struct {
	trips    []Trip
	stops    []Stop
	from, to string
}

func (f *fakeSchedule) Trips(_ context.Context, from, to string) ([]Trip, error) {
	f.from, f.to = from, to
	return f.trips, nil
}

func (f *fakeSchedule) Stops(context.Context) ([]Stop, error) { return f.stops, nil }

type fakeCache struct {
	batches [][]redis.Entry
	ttls    []time.Duration
	set     map[string]interface{}
	order   []string
	failOn  int
}

func (f *fakeCache) WriteBatch(_ context.Context, entries []redis.Entry, ttl time.Duration) (int, error) {
	if f.failOn > 0 && len(f.batches)+1 == f.failOn {
		return 0, errors.New("connection reset")
	}
	f.batches = append(f.batches, entries)
	f.ttls = append(f.ttls, ttl)
	for _, e := range entries {
		f.order = append(f.order, e.Key)
	}
	return len(entries), nil
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if f.set == nil {
		f.set = make(map[string]interface{})
	}
	f.set[key] = value
	f.order = append(f.order, key)
	return nil
}

func TestTripEntries(t *testing.T) {
	hashes, lookups := TripEntries([]Trip{{DvjID: 42, RouteName: "1055", Direction: 2, OperatingDay: "20240301", StartTime: "25:10:00"}})
	if len(hashes) != 1 || len(lookups) != 1 {
		t.Fatalf("got %d hashes and %d lookups", len(hashes), len(lookups))
	}
	if hashes[0].Key != "dvj:42" || hashes[0].Fields[enrichment.FieldDirection] != "2" {
		t.Errorf("hash entry = %+v", hashes[0])
	}
	if lookups[0].Key != "jore:1055-2-20240301-25:10:00" || lookups[0].Value != "42" {
		t.Errorf("lookup entry = %+v", lookups[0])
	}
	stops := StopEntries([]Stop{{Gid: 9001, Number: "1020451"}})
	if stops[0].Key != "jpp:9001" || stops[0].Value != "1020451" {
		t.Errorf("stop entry = %+v", stops[0])
	}
}

func TestMetroEntries(t *testing.T) {
	helsinki, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}
	trips := []Trip{
		{DvjID: 7001, RouteName: "31M1", Direction: 1, OperatingDay: "20240301", StartTime: "08:00:00", StartStopNumber: "2314601"},
		{DvjID: 7002, RouteName: "31M1", Direction: 2, OperatingDay: "20240301", StartTime: "24:30:00", StartStopNumber: "2314614"},
		{DvjID: 7003, RouteName: "1055", Direction: 1, OperatingDay: "20240301", StartTime: "08:00:00"},
		{DvjID: 7004, RouteName: "31M1", Direction: 1, OperatingDay: "2024-03-01", StartTime: "08:00:00", StartStopNumber: "2314601"},
	}

	got := MetroEntries(trips, helsinki, slog.Default())
	if len(got) != 2 {
		t.Fatalf("got %d metro entries, want 2", len(got))
	}
	if got[0].Key != "metro:2314601_2024-03-01T06:00:00.000Z" {
		t.Errorf("key = %q", got[0].Key)
	}
	if got[0].Fields[enrichment.FieldStartStopNumber] != "2314601" || got[0].Fields[enrichment.FieldDvjID] != "7001" {
		t.Errorf("fields = %v", got[0].Fields)
	}
	// 24:30 on the operating day is 00:30 the next calendar day.
	if got[1].Fields[enrichment.FieldStartDatetime] != "2024-03-01T22:30:00.000Z" {
		t.Errorf("after-midnight start = %q", got[1].Fields[enrichment.FieldStartDatetime])
	}
}

func TestRunCycleStampsAfterKeys(t *testing.T) {
	sched := &fakeSchedule{
		trips: make([]Trip, batchSize+1),
		stops: []Stop{{Gid: 1, Number: "1"}},
	}
	for i := range sched.trips {
		sched.trips[i] = Trip{DvjID: int64(i + 1), RouteName: "1", Direction: 1, OperatingDay: "20240301", StartTime: "08:00:00"}
	}
	cache := &fakeCache{}
	cfg := config.BootstrapConfig{TTLDays: 2, HistoryDays: 1, FutureDays: 3}
	job := NewJob(sched, cache, cfg, time.UTC, metrics.NewNop())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if sched.from != "2024-02-29" || sched.to != "2024-03-04" {
		t.Errorf("window = [%s, %s)", sched.from, sched.to)
	}
	// trips: 2 batches, reverse lookups: 2 batches, stops: 1 batch.
	if len(cache.batches) != 5 {
		t.Errorf("wrote %d batches, want 5", len(cache.batches))
	}
	for _, ttl := range cache.ttls {
		if ttl != 48*time.Hour {
			t.Errorf("ttl = %s, want 48h", ttl)
		}
	}
	if got := cache.set[enrichment.KeyLastUpdate]; got != "2024-03-01T12:00:00Z" {
		t.Errorf("control key = %v", got)
	}
	if last := cache.order[len(cache.order)-1]; last != enrichment.KeyLastUpdate {
		t.Errorf("last write = %q, control key must come last", last)
	}
}

func TestRunCycleDoesNotStampOnFailure(t *testing.T) {
	sched := &fakeSchedule{trips: []Trip{{DvjID: 1}}, stops: []Stop{{Gid: 1}}}
	cache := &fakeCache{failOn: 2}
	job := NewJob(sched, cache, config.BootstrapConfig{TTLDays: 1}, time.UTC, metrics.NewNop())

	err := job.RunCycle(context.Background())
	if !errors.Is(err, apperrors.ErrConnectivity) {
		t.Errorf("err = %v, want ErrConnectivity", err)
	}
	if _, ok := cache.set[enrichment.KeyLastUpdate]; ok {
		t.Error("control key written after a failed batch")
	}
}
