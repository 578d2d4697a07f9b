package pubtrans

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
)

// Mapper joins rows with their enrichment record and frames them.
type Mapper struct {
	cache   *enrichment.Client
	handler TableHandler
	logger  *slog.Logger
}

func NewMapper(cache *enrichment.Client, handler TableHandler) *Mapper {
	return &Mapper{
		cache:   cache,
		handler: handler,
		logger:  slog.Default().With("component", "row-mapper", "table", handler.Table()),
	}
}

// Map builds the envelope for row. The bool is false when the row was
// dropped: missing enrichment or a payload that cannot be built. The error
// is reserved for a cache that cannot be reached.
func (m *Mapper) Map(ctx context.Context, row Row) (envelope.Envelope, bool, error) {
	log := logger.FromContext(ctx, m.logger).With(
		"dvj_id", row.IsOnDatedVehicleJourneyID,
		"sequence", row.JourneyPatternSequenceNumber,
	)

	trip, ok, err := m.enrich(ctx, row)
	if err != nil {
		return envelope.Envelope{}, false, err
	}
	if !ok {
		log.Warn("no enrichment record, dropping row")
		return envelope.Envelope{}, false, nil
	}

	payload, err := m.handler.BuildPayload(row, trip)
	if err != nil {
		log.Warn("building payload failed, dropping row", "error", err)
		return envelope.Envelope{}, false, nil
	}

	dvj := strconv.FormatInt(row.IsOnDatedVehicleJourneyID, 10)
	key := dvj + strconv.FormatInt(int64(row.JourneyPatternSequenceNumber), 10)
	env, err := envelope.New(key, row.LastModifiedUtcDateTimeMs,
		m.handler.Schema(), m.handler.SchemaVersion(),
		map[string]string{envelope.PropertyDvjID: dvj},
		payload,
	)
	if err != nil {
		log.Warn("building envelope failed, dropping row", "error", err)
		return envelope.Envelope{}, false, nil
	}
	return env, true, nil
}

func (m *Mapper) enrich(ctx context.Context, row Row) (TripInfo, bool, error) {
	if row.IsTargetedAtJourneyPatternPointGid == nil {
		return TripInfo{}, false, nil
	}
	stopID, found, err := m.cache.StopID(ctx, *row.IsTargetedAtJourneyPatternPointGid)
	if err != nil || !found {
		return TripInfo{}, false, err
	}
	trip, found, err := m.cache.Trip(ctx, row.IsOnDatedVehicleJourneyID)
	if err != nil || !found {
		return TripInfo{}, false, err
	}
	return newTripInfo(row.IsOnDatedVehicleJourneyID, stopID, trip), true, nil
}
