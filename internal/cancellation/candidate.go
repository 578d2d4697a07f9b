// Package cancellation reduces conflicting trip cancellation records to one
// authoritative status per trip and publishes the result.
package cancellation

import (
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
)

const schemaVersion = 1

type Status string

const (
	StatusCanceled Status = "CANCELED"
	StatusRunning  Status = "RUNNING"
)

// Cancellation is the published payload.
type Cancellation struct {
	SchemaVersion          int    `json:"schemaVersion"`
	Status                 Status `json:"status"`
	TripID                 string `json:"tripId"`
	RouteID                string `json:"routeId"`
	DirectionID            int    `json:"directionId"`
	StartDate              string `json:"startDate"`
	StartTime              string `json:"startTime"`
	DeviationCasesType     string `json:"deviationCasesType,omitempty"`
	AffectedDeparturesType string `json:"affectedDeparturesType,omitempty"`
	Title                  string `json:"title,omitempty"`
	Description            string `json:"description,omitempty"`
	Category               string `json:"category,omitempty"`
	SubCategory            string `json:"subCategory,omitempty"`
}

// Candidate is one source record claiming a status for a trip. Several
// candidates may share a TripID within one cycle.
type Candidate struct {
	TripID      string
	Status      Status
	TimestampMs int64
	Payload     Cancellation
}

// NewCandidate fills the payload's trip id, status and version from the
// candidate fields.
func NewCandidate(tripID string, status Status, timestampMs int64, payload Cancellation) Candidate {
	payload.SchemaVersion = schemaVersion
	payload.TripID = tripID
	payload.Status = status
	return Candidate{
		TripID:      tripID,
		Status:      status,
		TimestampMs: timestampMs,
		Payload:     payload,
	}
}

// Envelope frames c keyed by its trip id.
func (c Candidate) Envelope() (envelope.Envelope, error) {
	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return envelope.Envelope{}, err
	}
	return envelope.New(c.TripID, c.TimestampMs, envelope.SchemaCancellation, schemaVersion,
		map[string]string{envelope.PropertyDvjID: c.TripID},
		payload,
	)
}

// Describe is the route/direction-time-date form used in logs.
func (c Candidate) Describe() string {
	p := c.Payload
	return fmt.Sprintf("%s/%d-%s-%s", p.RouteID, p.DirectionID, p.StartTime, p.StartDate)
}
