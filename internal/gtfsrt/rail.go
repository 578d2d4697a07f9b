package gtfsrt

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
)

const (
	railSchemaVersion = 1
	gtfsVersion       = "2.0"
)

type Publisher interface {
	Publish(ctx context.Context, envs []envelope.Envelope) (int, error)
}

// RailBridge republishes the trip updates of the rail feed one entity per
// message, after removing the fields the upstream converter fills
// unreliably.
type RailBridge struct {
	feed      FeedSource
	publisher Publisher
	liveness  *scheduler.Liveness
	now       func() time.Time
	logger    *slog.Logger
}

// NewRailBridge creates a RailBridge. liveness is touched only when a cycle
// actually sent something, so a feed that stays empty turns the health check red.
func NewRailBridge(feed FeedSource, pub Publisher, liveness *scheduler.Liveness) *RailBridge {
	return &RailBridge{
		feed:      feed,
		publisher: pub,
		liveness:  liveness,
		now:       time.Now,
		logger:    slog.Default().With("component", "rail-bridge"),
	}
}

func (b *RailBridge) RunCycle(ctx context.Context) error {
	feed, err := b.feed.Fetch(ctx)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx, b.logger)

	entities := TripUpdates(feed)
	log.Info("found rail trip updates", "count", len(entities))

	now := b.now()
	envs := make([]envelope.Envelope, 0, len(entities))
	for _, e := range entities {
		tu := SanitizeRailTripUpdate(e.GetTripUpdate())
		id := RailEntityID(tu)
		payload, err := proto.Marshal(DifferentialFeed(id, tu, now))
		if err != nil {
			log.Error("encoding trip update failed", "entity_id", id, "error", err)
			continue
		}
		env, err := envelope.New(id, now.UnixMilli(), envelope.SchemaTripUpdate, railSchemaVersion, nil, payload)
		if err != nil {
			log.Error("framing trip update failed", "entity_id", id, "error", err)
			continue
		}
		envs = append(envs, env)
	}

	sent, err := b.publisher.Publish(ctx, envs)
	if err != nil {
		return err
	}
	if sent > 0 && b.liveness != nil {
		b.liveness.Touch()
	}
	return nil
}

// SanitizeRailTripUpdate returns a copy of tu without the fields the rail
// feed cannot be trusted with: a trip-level delay alongside stop time
// updates, stop-level delays next to absolute times, and the trip id, which
// need not match the static schedule.
func SanitizeRailTripUpdate(tu *gtfs.TripUpdate) *gtfs.TripUpdate {
	out := proto.Clone(tu).(*gtfs.TripUpdate)
	if out.Delay != nil && len(out.StopTimeUpdate) > 0 {
		out.Delay = nil
	}
	for _, stu := range out.StopTimeUpdate {
		clearDelayWithTime(stu.Arrival)
		clearDelayWithTime(stu.Departure)
	}
	if out.Trip != nil {
		out.Trip.TripId = nil
	}
	return out
}

func clearDelayWithTime(ev *gtfs.TripUpdate_StopTimeEvent) {
	if ev != nil && ev.Delay != nil && ev.Time != nil {
		ev.Delay = nil
	}
}

// RailEntityID identifies a rail trip by route, start and GTFS direction.
func RailEntityID(tu *gtfs.TripUpdate) string {
	trip := tu.GetTrip()
	return "rail_" + strings.Join([]string{
		trip.GetRouteId(),
		trip.GetStartDate(),
		trip.GetStartTime(),
		strconv.FormatUint(uint64(trip.GetDirectionId()), 10),
	}, "-")
}

// DifferentialFeed wraps a single trip update in a DIFFERENTIAL feed message
// stamped at now.
func DifferentialFeed(entityID string, tu *gtfs.TripUpdate, now time.Time) *gtfs.FeedMessage {
	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsVersion),
			Incrementality:      gtfs.FeedHeader_DIFFERENTIAL.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: []*gtfs.FeedEntity{{
			Id:         proto.String(entityID),
			TripUpdate: tu,
		}},
	}
}
