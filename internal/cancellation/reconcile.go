package cancellation

import (
	"cmp"
	"log/slog"
	"slices"
)

// Reconcile reduces candidates to at most one per trip, in order of each
// trip's first appearance. A CANCELED candidate always wins; with several,
// the first one seen is kept. Otherwise the RUNNING candidate with the
// lowest timestamp is kept.
func Reconcile(candidates []Candidate, log *slog.Logger) []Candidate {
	if log == nil {
		log = slog.Default()
	}
	var order []string
	byTrip := make(map[string][]Candidate)
	for _, c := range candidates {
		if _, seen := byTrip[c.TripID]; !seen {
			order = append(order, c.TripID)
		}
		byTrip[c.TripID] = append(byTrip[c.TripID], c)
	}

	out := make([]Candidate, 0, len(order))
	for _, tripID := range order {
		var canceled, running []Candidate
		for _, c := range byTrip[tripID] {
			switch c.Status {
			case StatusCanceled:
				canceled = append(canceled, c)
			case StatusRunning:
				running = append(running, c)
			}
		}

		switch {
		case len(canceled) > 0:
			if len(canceled) > 1 {
				log.Warn("more than one active cancellation for trip", "trip_id", tripID, "count", len(canceled))
			}
			out = append(out, canceled[0])
		case len(running) > 0:
			slices.SortStableFunc(running, func(a, b Candidate) int {
				return cmp.Compare(a.TimestampMs, b.TimestampMs)
			})
			out = append(out, running[0])
		default:
			log.Error("trip has no canceled or running candidate", "trip_id", tripID)
		}
	}
	return out
}

// ChangeTracker compares each reduced set with the previous one by trip id.
// The result is informational only.
type ChangeTracker struct {
	previous map[string]struct{}
}

func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{previous: make(map[string]struct{})}
}

// Observe counts how many of current were absent from (new) or present in
// (repeated) the previous call, then remembers current.
func (t *ChangeTracker) Observe(current []Candidate) (fresh, repeated int) {
	next := make(map[string]struct{}, len(current))
	for _, c := range current {
		if _, ok := t.previous[c.TripID]; ok {
			repeated++
		} else {
			fresh++
		}
		next[c.TripID] = struct{}{}
	}
	t.previous = next
	return fresh, repeated
}
