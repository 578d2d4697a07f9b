// Package metro turns metro ATS journey estimates into per-stop estimates
// keyed to the scheduled journey. Stations are named by short names in the
// ATS feed; the static stop table maps them to stop numbers per direction.
package metro

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/config"
)

// Directions as numbered in the schedule.
const (
	DirectionOutbound = 1
	DirectionInbound  = 2
)

// Stops is the metro stop table in line order. It is built once at startup
// and never modified, so it is safe to share between goroutines.
type Stops struct {
	position map[string]int
	numbers  map[string][2]string
}

// NewStops builds the table from configuration. Every station needs a unique
// short name and exactly one stop number per direction.
func NewStops(cfg []config.MetroStop) (*Stops, error) {
	if len(cfg) == 0 {
		return nil, fmt.Errorf("metro stop table is empty")
	}
	s := &Stops{
		position: make(map[string]int, len(cfg)),
		numbers:  make(map[string][2]string, len(cfg)),
	}
	for i, st := range cfg {
		if st.ShortName == "" {
			return nil, fmt.Errorf("metro stop %d has no short name", i)
		}
		if _, dup := s.position[st.ShortName]; dup {
			return nil, fmt.Errorf("metro stop %s listed twice", st.ShortName)
		}
		if len(st.StopNumbers) != 2 || st.StopNumbers[0] == "" || st.StopNumbers[1] == "" {
			return nil, fmt.Errorf("metro stop %s needs two stop numbers, got %v", st.ShortName, st.StopNumbers)
		}
		s.position[st.ShortName] = i
		s.numbers[st.ShortName] = [2]string{st.StopNumbers[0], st.StopNumbers[1]}
	}
	return s, nil
}

// Len returns the number of stations.
func (s *Stops) Len() int { return len(s.position) }

// Direction returns the direction of a journey from one station to another:
// outbound when it runs along the table order, inbound against it.
func (s *Stops) Direction(from, to string) (int, bool) {
	i, ok := s.position[from]
	if !ok {
		return 0, false
	}
	j, ok := s.position[to]
	if !ok || i == j {
		return 0, false
	}
	if i < j {
		return DirectionOutbound, true
	}
	return DirectionInbound, true
}

// StopNumber returns the stop number serving a station in direction.
func (s *Stops) StopNumber(shortName string, direction int) (string, bool) {
	if direction != DirectionOutbound && direction != DirectionInbound {
		return "", false
	}
	numbers, ok := s.numbers[shortName]
	if !ok {
		return "", false
	}
	return numbers[direction-1], true
}
