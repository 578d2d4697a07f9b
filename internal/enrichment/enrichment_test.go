package enrichment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/redis"
)

type fakeStore struct {
	strings map[string]string
	hashes  map[string]map[string]string
	err     error
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.strings[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	h, ok := f.hashes[key]
	if !ok {
		return map[string]string{}, nil
	}
	return h, nil
}

func TestTripLookup(t *testing.T) {
	store := &fakeStore{hashes: map[string]map[string]string{
		TripKey(42): {
			FieldRouteName:    "1055",
			FieldDirection:    "2",
			FieldStartTime:    "25:10:00",
			FieldOperatingDay: "20240301",
		},
		TripKey(43): {FieldRouteName: "1055"},
		TripKey(45): {FieldRouteName: "1055", FieldDirection: "north"},
	}}
	c := NewClient(store)
	ctx := context.Background()

	trip, found, err := c.Trip(ctx, 42)
	if err != nil || !found {
		t.Fatalf("Trip(42) = %v, %v", found, err)
	}
	if trip.DvjID != "42" || trip.Direction != 2 || trip.StartTime != "25:10:00" {
		t.Errorf("unexpected trip: %+v", trip)
	}

	partial, found, err := c.Trip(ctx, 43)
	if err != nil || !found {
		t.Fatalf("partial hash must still be found, got found=%v err=%v", found, err)
	}
	if partial.RouteName != "1055" || partial.Direction != 0 || partial.StartTime != "" {
		t.Errorf("unexpected partial trip: %+v", partial)
	}
	if _, found, err := c.Trip(ctx, 45); found || err != nil {
		t.Errorf("unparseable direction must be a miss, got found=%v err=%v", found, err)
	}
	if _, found, err := c.Trip(ctx, 44); found || err != nil {
		t.Errorf("absent hash must be a miss, got found=%v err=%v", found, err)
	}
}

func TestStringLookups(t *testing.T) {
	store := &fakeStore{strings: map[string]string{
		StopKey(7):                                  "1020105",
		JoreKey("1055", 1, "20240301", "25:10:00"): "99",
	}}
	c := NewClient(store)
	ctx := context.Background()

	if v, found, err := c.StopID(ctx, 7); err != nil || !found || v != "1020105" {
		t.Errorf("StopID(7) = %q, %v, %v", v, found, err)
	}
	if _, found, err := c.StopID(ctx, 8); found || err != nil {
		t.Errorf("StopID(8) should miss, got %v, %v", found, err)
	}
	if v, found, _ := c.DvjID(ctx, "1055", 1, "20240301", "25:10:00"); !found || v != "99" {
		t.Errorf("DvjID = %q, %v", v, found)
	}
}

func TestMetroJourneyLookup(t *testing.T) {
	key := MetroKey("2314601", "2024-03-01T06:00:00.000Z")
	if key != "metro:2314601_2024-03-01T06:00:00.000Z" {
		t.Fatalf("MetroKey = %q", key)
	}
	store := &fakeStore{hashes: map[string]map[string]string{
		key: {
			FieldDvjID:           "7001",
			FieldRouteName:       "31M1",
			FieldDirection:       "1",
			FieldStartTime:       "08:00:00",
			FieldOperatingDay:    "20240301",
			FieldStartStopNumber: "2314601",
			FieldStartDatetime:   "2024-03-01T06:00:00.000Z",
		},
	}}
	c := NewClient(store)

	j, found, err := c.MetroJourney(context.Background(), "2314601", "2024-03-01T06:00:00.000Z")
	if err != nil || !found {
		t.Fatalf("MetroJourney = %v, %v", found, err)
	}
	if j.DvjID != "7001" || j.Direction != 1 || j.StartStopNumber != "2314601" {
		t.Errorf("journey = %+v", j)
	}
	if _, found, err := c.MetroJourney(context.Background(), "2314601", "2024-03-01T07:00:00.000Z"); found || err != nil {
		t.Errorf("absent journey = %v, %v, want miss", found, err)
	}
}

func TestStoreFailureIsConnectivity(t *testing.T) {
	c := NewClient(&fakeStore{err: errors.New("dial tcp: connection refused")})
	_, _, err := c.StopID(context.Background(), 1)
	if apperrors.Classify(err) != apperrors.ClassConnectivity {
		t.Errorf("class = %s, want connectivity", apperrors.Classify(err))
	}
	_, _, err = c.Trip(context.Background(), 1)
	if apperrors.Classify(err) != apperrors.ClassConnectivity {
		t.Errorf("class = %s, want connectivity", apperrors.Classify(err))
	}
}

func TestGate(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	stamp := func(age time.Duration) map[string]string {
		return map[string]string{KeyLastUpdate: now.Add(-age).Format(time.RFC3339Nano)}
	}
	tests := []struct {
		name    string
		enabled bool
		strings map[string]string
		want    bool
	}{
		{"disabled", false, nil, true},
		{"control key absent", true, nil, false},
		{"fresh", true, stamp(10 * time.Minute), true},
		{"exactly at max age", true, stamp(60 * time.Minute), true},
		{"inside last minute of max age", true, stamp(60*time.Minute + 59*time.Second), true},
		{"one minute past max age", true, stamp(61 * time.Minute), false},
		{"garbage", true, map[string]string{KeyLastUpdate: "yesterday"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(NewClient(&fakeStore{strings: tt.strings}), config.CacheConfig{
				EnableTimestampCheck: tt.enabled,
				MaxAgeMinutes:        60,
			})
			g.now = func() time.Time { return now }
			ready, err := g.IsReady(context.Background())
			if err != nil {
				t.Fatalf("IsReady: %v", err)
			}
			if ready != tt.want {
				t.Errorf("IsReady = %v, want %v", ready, tt.want)
			}
		})
	}
}

func TestGateSurfacesConnectivity(t *testing.T) {
	g := NewGate(NewClient(&fakeStore{err: errors.New("i/o timeout")}), config.CacheConfig{EnableTimestampCheck: true, MaxAgeMinutes: 5})
	if _, err := g.IsReady(context.Background()); !apperrors.Fatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
}
