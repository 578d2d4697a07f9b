package gtfsrt

import (
	"context"
	"log/slog"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/cancellation"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/joretime"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
)

// DvjResolver maps a scheduled departure to its dated vehicle journey id.
// It is satisfied by *enrichment.Client.
type DvjResolver interface {
	DvjID(ctx context.Context, routeName string, direction int, operatingDay, startTime string) (string, bool, error)
}

// CancellationSource turns the trip updates of a GTFS-RT feed into
// cancellation candidates. CANCELED trips become canceled, SCHEDULED ones
// running; other relationships are ignored.
type CancellationSource struct {
	feed            FeedSource
	resolver        DvjResolver
	serviceDayStart string
	logger          *slog.Logger
}

func NewCancellationSource(feed FeedSource, resolver DvjResolver, serviceDayStart string) *CancellationSource {
	return &CancellationSource{
		feed:            feed,
		resolver:        resolver,
		serviceDayStart: serviceDayStart,
		logger:          slog.Default().With("component", "trip-update-cancellations"),
	}
}

// Candidates implements cancellation.Source.
func (s *CancellationSource) Candidates(ctx context.Context) ([]cancellation.Candidate, error) {
	feed, err := s.feed.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx, s.logger)

	timestampMs := int64(feed.GetHeader().GetTimestamp()) * 1000
	entities := TripUpdates(feed)
	log.Info("handling feed", "entities", len(feed.GetEntity()), "trip_updates", len(entities), "timestamp_ms", timestampMs)

	var out []cancellation.Candidate
	for _, e := range entities {
		c, ok, err := s.candidate(ctx, log, e.GetTripUpdate().GetTrip(), timestampMs)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *CancellationSource) candidate(ctx context.Context, log *slog.Logger, trip *gtfs.TripDescriptor, timestampMs int64) (cancellation.Candidate, bool, error) {
	if trip == nil || trip.ScheduleRelationship == nil {
		log.Warn("trip update has no schedule relationship, ignoring")
		return cancellation.Candidate{}, false, nil
	}
	var status cancellation.Status
	switch trip.GetScheduleRelationship() {
	case gtfs.TripDescriptor_CANCELED:
		status = cancellation.StatusCanceled
	case gtfs.TripDescriptor_SCHEDULED:
		status = cancellation.StatusRunning
	default:
		log.Warn("unhandled schedule relationship", "relationship", trip.GetScheduleRelationship().String())
		return cancellation.Candidate{}, false, nil
	}

	// GTFS directions are 0 and 1, Jore directions 1 and 2.
	direction := int(trip.GetDirectionId()) + 1
	start, err := joretime.New(s.serviceDayStart, trip.GetStartDate(), trip.GetStartTime())
	if err != nil {
		log.Warn("unreadable trip start", "route", trip.GetRouteId(), "start_date", trip.GetStartDate(), "start_time", trip.GetStartTime(), "error", err)
		return cancellation.Candidate{}, false, nil
	}

	dvjID, found, err := s.resolver.DvjID(ctx, trip.GetRouteId(), direction, start.Date(), start.Time())
	if err != nil {
		return cancellation.Candidate{}, false, err
	}
	if !found {
		log.Error("no dvj id for trip, cannot produce cancellation",
			"route", trip.GetRouteId(), "direction", direction, "date", start.Date(), "time", start.Time())
		return cancellation.Candidate{}, false, nil
	}

	return cancellation.NewCandidate(dvjID, status, timestampMs, cancellation.Cancellation{
		RouteID:     trip.GetRouteId(),
		DirectionID: direction,
		StartDate:   start.Date(),
		StartTime:   start.Time(),
	}), true, nil
}
