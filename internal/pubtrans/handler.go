package pubtrans

import (
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
)

const (
	TableArrival   = "ptroi_arrival"
	TableDeparture = "ptroi_departure"

	schemaVersion = 1
)

// TableHandler is what differs between the arrival and departure tables. The
// extraction, enrichment and publishing around it are shared.
type TableHandler interface {
	// Table is the source table name.
	Table() string
	// TimetabledColumn is the local-time column holding the scheduled time.
	TimetabledColumn() string
	// ExtraColumns are nullable bigint columns read into Row.Extras.
	ExtraColumns() []string
	// BuildPayload serializes one enriched row.
	BuildPayload(row Row, trip TripInfo) ([]byte, error)
	Schema() envelope.Schema
	SchemaVersion() int
}

// HandlerFor returns the handler for a configured table name.
func HandlerFor(table string) (TableHandler, error) {
	switch table {
	case TableArrival:
		return ArrivalHandler{}, nil
	case TableDeparture:
		return DepartureHandler{}, nil
	default:
		return nil, fmt.Errorf("no handler for table %q", table)
	}
}

// Common is the part of the payload shared by both tables. Optional fields
// are omitted when the source column is NULL.
type Common struct {
	ID                                   int64  `json:"id"`
	IsOnDatedVehicleJourneyID            int64  `json:"isOnDatedVehicleJourneyId"`
	IsOnMonitoredVehicleJourneyID        *int64 `json:"isOnMonitoredVehicleJourneyId,omitempty"`
	JourneyPatternSequenceNumber         int32  `json:"journeyPatternSequenceNumber"`
	IsTimetabledAtJourneyPatternPointGid int64  `json:"isTimetabledAtJourneyPatternPointGid"`
	VisitCountNumber                     int32  `json:"visitCountNumber"`
	IsTargetedAtJourneyPatternPointGid   *int64 `json:"isTargetedAtJourneyPatternPointGid,omitempty"`
	WasObservedAtJourneyPatternPointGid  *int64 `json:"wasObservedAtJourneyPatternPointGid,omitempty"`
	TimetabledUtcDateTimeMs              *int64 `json:"timetabledUtcDateTimeMs,omitempty"`
	TargetUtcDateTimeMs                  *int64 `json:"targetUtcDateTimeMs,omitempty"`
	EstimatedUtcDateTimeMs               *int64 `json:"estimatedUtcDateTimeMs,omitempty"`
	ObservedUtcDateTimeMs                *int64 `json:"observedUtcDateTimeMs,omitempty"`
	State                                int64  `json:"state"`
	Type                                 int32  `json:"type"`
	IsValidYesNo                         bool   `json:"isValidYesNo"`
	LastModifiedUtcDateTimeMs            int64  `json:"lastModifiedUtcDateTimeMs"`
}

// TripInfo is the enrichment joined onto a row.
type TripInfo struct {
	DvjID        int64  `json:"dvjId"`
	StopID       string `json:"stopId"`
	RouteID      string `json:"routeId,omitempty"`
	DirectionID  int    `json:"directionId,omitempty"`
	StartTime    string `json:"startTime,omitempty"`
	OperatingDay string `json:"operatingDay,omitempty"`
}

func newTripInfo(dvjID int64, stopID string, trip enrichment.TripContext) TripInfo {
	return TripInfo{
		DvjID:        dvjID,
		StopID:       stopID,
		RouteID:      trip.RouteName,
		DirectionID:  trip.Direction,
		StartTime:    trip.StartTime,
		OperatingDay: trip.OperatingDay,
	}
}

type ArrivalPayload struct {
	SchemaVersion int      `json:"schemaVersion"`
	Common        Common   `json:"common"`
	TripInfo      TripInfo `json:"tripInfo"`
}

type DeparturePayload struct {
	SchemaVersion             int      `json:"schemaVersion"`
	Common                    Common   `json:"common"`
	TripInfo                  TripInfo `json:"tripInfo"`
	HasDestinationDisplayID   *int64   `json:"hasDestinationDisplayId,omitempty"`
	HasDestinationStopAreaGid *int64   `json:"hasDestinationStopAreaGid,omitempty"`
	HasServiceRequirementID   *int64   `json:"hasServiceRequirementId,omitempty"`
}

type ArrivalHandler struct{}

func (ArrivalHandler) Table() string            { return TableArrival }
func (ArrivalHandler) TimetabledColumn() string { return "timetabled_latest_date_time" }
func (ArrivalHandler) ExtraColumns() []string   { return nil }
func (ArrivalHandler) Schema() envelope.Schema  { return envelope.SchemaArrival }
func (ArrivalHandler) SchemaVersion() int       { return schemaVersion }

func (ArrivalHandler) BuildPayload(row Row, trip TripInfo) ([]byte, error) {
	return json.Marshal(ArrivalPayload{
		SchemaVersion: schemaVersion,
		Common:        row.Common,
		TripInfo:      trip,
	})
}

const (
	colDestinationDisplay  = "has_destination_display_id"
	colDestinationStopArea = "has_destination_stop_area_gid"
	colServiceRequirement  = "has_service_requirement_id"
)

type DepartureHandler struct{}

func (DepartureHandler) Table() string            { return TableDeparture }
func (DepartureHandler) TimetabledColumn() string { return "timetabled_earliest_date_time" }
func (DepartureHandler) Schema() envelope.Schema  { return envelope.SchemaDeparture }
func (DepartureHandler) SchemaVersion() int       { return schemaVersion }

func (DepartureHandler) ExtraColumns() []string {
	return []string{colDestinationDisplay, colDestinationStopArea, colServiceRequirement}
}

func (DepartureHandler) BuildPayload(row Row, trip TripInfo) ([]byte, error) {
	return json.Marshal(DeparturePayload{
		SchemaVersion:             schemaVersion,
		Common:                    row.Common,
		TripInfo:                  trip,
		HasDestinationDisplayID:   row.Extras[colDestinationDisplay],
		HasDestinationStopAreaGid: row.Extras[colDestinationStopArea],
		HasServiceRequirementID:   row.Extras[colServiceRequirement],
	})
}
