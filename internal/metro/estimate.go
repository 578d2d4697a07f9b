package metro

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/enrichment"
)

// SchemaVersion of the metro-estimate payload.
const SchemaVersion = 1

var (
	trainTypes = map[string]bool{"M": true, "T": true}
	progresses = map[string]bool{"SCHEDULED": true, "INPROGRESS": true, "COMPLETED": true, "CANCELLED": true}
)

// atsEstimate is one journey as published by the metro ATS. Datetimes are
// wall-clock times in the ATS time zone with a literal Z suffix.
type atsEstimate struct {
	RouteName              string            `json:"routeName"`
	TrainType              string            `json:"trainType"`
	JourneySectionProgress string            `json:"journeySectionprogress"`
	BeginTime              string            `json:"beginTime"`
	EndTime                string            `json:"endTime"`
	RouteRows              []atsStopEstimate `json:"routeRows"`
}

type atsStopEstimate struct {
	RouterowID            int64  `json:"routerowId"`
	Station               string `json:"station"`
	Platform              string `json:"platform"`
	Source                string `json:"source"`
	RowProgress           string `json:"rowProgress"`
	ArrivalTimePlanned    string `json:"arrivalTimePlanned"`
	ArrivalTimeForecast   string `json:"arrivalTimeForecast"`
	ArrivalTimeMeasured   string `json:"arrivalTimeMeasured"`
	DepartureTimePlanned  string `json:"departureTimePlanned"`
	DepartureTimeForecast string `json:"departureTimeForecast"`
	DepartureTimeMeasured string `json:"departureTimeMeasured"`
}

// Estimate is the metro-estimate payload. All datetimes are UTC, formatted
// with enrichment.MetroTimeLayout; an unknown datetime is "".
type Estimate struct {
	SchemaVersion          int            `json:"schemaVersion"`
	OperatingDay           string         `json:"operatingDay"`
	StartStopNumber        string         `json:"startStopNumber"`
	StartStopShortName     string         `json:"startStopShortName"`
	StartTime              string         `json:"startTime"`
	StartDatetime          string         `json:"startDatetime"`
	DvjID                  string         `json:"dvjId"`
	RouteName              string         `json:"routeName"`
	Direction              int            `json:"direction"`
	TrainType              string         `json:"trainType"`
	JourneySectionProgress string         `json:"journeySectionprogress"`
	BeginTime              string         `json:"beginTime"`
	EndTime                string         `json:"endTime"`
	Rows                   []StopEstimate `json:"metroRows"`
}

// StopEstimate is the estimate for one station of the journey.
type StopEstimate struct {
	StopNumber            string `json:"stopNumber"`
	Station               string `json:"station"`
	Platform              string `json:"platform"`
	Source                string `json:"source"`
	RowProgress           string `json:"rowProgress,omitempty"`
	ArrivalTimePlanned    string `json:"arrivalTimePlanned"`
	ArrivalTimeForecast   string `json:"arrivalTimeForecast"`
	ArrivalTimeMeasured   string `json:"arrivalTimeMeasured"`
	DepartureTimePlanned  string `json:"departureTimePlanned"`
	DepartureTimeForecast string `json:"departureTimeForecast"`
	DepartureTimeMeasured string `json:"departureTimeMeasured"`
}

// JourneyLookup finds the scheduled journey behind an ATS estimate.
type JourneyLookup interface {
	MetroJourney(ctx context.Context, stopNumber, startDatetime string) (enrichment.MetroJourney, bool, error)
}

// Estimator maps ATS estimates onto scheduled journeys and stop numbers.
type Estimator struct {
	stops    *Stops
	journeys JourneyLookup
	ats      *time.Location
	logger   *slog.Logger
}

// NewEstimator reads ATS datetimes in the ats time zone.
func NewEstimator(stops *Stops, journeys JourneyLookup, ats *time.Location) *Estimator {
	return &Estimator{
		stops:    stops,
		journeys: journeys,
		ats:      ats,
		logger:   slog.Default().With("component", "metro-estimator"),
	}
}

// Estimate converts one ATS payload. It reports false, after logging the
// reason, when the payload cannot be tied to a journey or one of its
// stations has no stop number. The error is non-nil only when the journey
// cache could not be read.
func (e *Estimator) Estimate(ctx context.Context, payload []byte) (Estimate, bool, error) {
	var in atsEstimate
	if err := json.Unmarshal(payload, &in); err != nil {
		e.logger.Warn("unparseable metro estimate", "error", err)
		return Estimate{}, false, nil
	}
	log := e.logger.With("route", in.RouteName, "beginTime", in.BeginTime)

	ends := strings.Split(in.RouteName, "-")
	if len(ends) != 2 {
		log.Warn("metro route name is not START-END")
		return Estimate{}, false, nil
	}
	startShortName, endShortName := ends[0], ends[1]
	routeDirection, ok := e.stops.Direction(startShortName, endShortName)
	if !ok {
		log.Warn("no direction between metro stations", "start", startShortName, "end", endShortName)
		return Estimate{}, false, nil
	}
	startStop, ok := e.stops.StopNumber(startShortName, routeDirection)
	if !ok {
		log.Warn("no stop number for start station", "start", startShortName)
		return Estimate{}, false, nil
	}
	begin := e.toUTC(in.BeginTime)
	if begin == "" {
		log.Warn("metro estimate has no usable begin time")
		return Estimate{}, false, nil
	}
	if !trainTypes[in.TrainType] {
		log.Warn("unknown metro train type", "trainType", in.TrainType)
		return Estimate{}, false, nil
	}
	if !progresses[in.JourneySectionProgress] {
		log.Warn("unknown metro journey progress", "progress", in.JourneySectionProgress)
		return Estimate{}, false, nil
	}

	journey, found, err := e.journeys.MetroJourney(ctx, startStop, begin)
	if err != nil {
		return Estimate{}, false, err
	}
	if !found {
		log.Warn("no scheduled journey for metro estimate", "key", enrichment.MetroKey(startStop, begin))
		return Estimate{}, false, nil
	}
	if journey.Direction == 0 {
		log.Warn("metro journey has no direction", "dvjId", journey.DvjID)
		return Estimate{}, false, nil
	}

	out := Estimate{
		SchemaVersion:          SchemaVersion,
		OperatingDay:           journey.OperatingDay,
		StartStopNumber:        journey.StartStopNumber,
		StartStopShortName:     startShortName,
		StartTime:              journey.StartTime,
		StartDatetime:          journey.StartDatetime,
		DvjID:                  journey.DvjID,
		RouteName:              journey.RouteName,
		Direction:              journey.Direction,
		TrainType:              in.TrainType,
		JourneySectionProgress: in.JourneySectionProgress,
		BeginTime:              begin,
		EndTime:                e.toUTC(in.EndTime),
		Rows:                   make([]StopEstimate, 0, len(in.RouteRows)),
	}
	seen := make(map[string]bool, len(in.RouteRows))
	var repeated bool
	for _, row := range in.RouteRows {
		stop, ok := e.stops.StopNumber(row.Station, journey.Direction)
		if !ok {
			log.Warn("no stop number for metro station", "station", row.Station, "direction", journey.Direction)
			return Estimate{}, false, nil
		}
		repeated = repeated || seen[stop]
		seen[stop] = true
		se := StopEstimate{
			StopNumber:            stop,
			Station:               row.Station,
			Platform:              row.Platform,
			Source:                row.Source,
			ArrivalTimePlanned:    e.toUTC(row.ArrivalTimePlanned),
			ArrivalTimeForecast:   e.toUTC(row.ArrivalTimeForecast),
			ArrivalTimeMeasured:   e.toUTC(row.ArrivalTimeMeasured),
			DepartureTimePlanned:  e.toUTC(row.DepartureTimePlanned),
			DepartureTimeForecast: e.toUTC(row.DepartureTimeForecast),
			DepartureTimeMeasured: e.toUTC(row.DepartureTimeMeasured),
		}
		if progresses[row.RowProgress] {
			se.RowProgress = row.RowProgress
		}
		out.Rows = append(out.Rows, se)
	}
	if repeated {
		log.Warn("metro estimate has several rows for one stop", "direction", journey.Direction)
	}
	return out, true, nil
}

// toUTC re-reads an ATS wall-clock datetime as UTC. Empty, "null" and
// unparseable values become "".
func (e *Estimator) toUTC(s string) string {
	if s == "" || s == "null" {
		return ""
	}
	t, err := time.ParseInLocation(enrichment.MetroTimeLayout, s, e.ats)
	if err != nil {
		e.logger.Error("unparseable metro datetime", "value", s, "error", err)
		return ""
	}
	return t.UTC().Format(enrichment.MetroTimeLayout)
}
