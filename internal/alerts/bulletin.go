// Package alerts publishes passenger information bulletins from the
// operations message management store as service alerts. A new alert
// carrying every active bulletin is published whenever the set of bulletins
// changes.
package alerts

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
)

type Category string

var categories = map[Category]bool{
	"OTHER_DRIVER_ERROR": true, "ITS_SYSTEM_ERROR": true, "TOO_MANY_PASSENGERS": true,
	"MISPARKED_VEHICLE": true, "STRIKE": true, "TEST": true, "VEHICLE_OFF_THE_ROAD": true,
	"TRAFFIC_ACCIDENT": true, "SWITCH_FAILURE": true, "SEIZURE": true, "WEATHER": true,
	"STATE_VISIT": true, "ROAD_MAINTENANCE": true, "ROAD_CLOSED": true, "TRACK_BLOCKED": true,
	"WEATHER_CONDITIONS": true, "ASSAULT": true, "TRACK_MAINTENANCE": true,
	"MEDICAL_INCIDENT": true, "EARLIER_DISRUPTION": true, "TECHNICAL_FAILURE": true,
	"TRAFFIC_JAM": true, "OTHER": true, "NO_TRAFFIC_DISRUPTION": true, "ACCIDENT": true,
	"PUBLIC_EVENT": true, "ROAD_TRENCH": true, "VEHICLE_BREAKDOWN": true,
	"POWER_FAILURE": true, "STAFF_DEFICIT": true, "DISTURBANCE": true, "VEHICLE_DEFICIT": true,
}

func ParseCategory(s string) (Category, error) {
	if !categories[Category(s)] {
		return "", apperrors.Newf(apperrors.ErrMalformedRow, "unknown bulletin category %q", s)
	}
	return Category(s), nil
}

type Impact string

// ImpactNull is the impact of a bulletin without passenger metadata.
const ImpactNull Impact = "NULL"

var impacts = map[Impact]bool{
	"CANCELLED": true, "DELAYED": true, "DEVIATING_SCHEDULE": true, "DISRUPTION_ROUTE": true,
	"IRREGULAR_DEPARTURES": true, "POSSIBLE_DEVIATIONS": true, "POSSIBLY_DELAYED": true,
	"REDUCED_TRANSPORT": true, "RETURNING_TO_NORMAL": true, "VENDING_MACHINE_OUT_OF_ORDER": true,
	ImpactNull: true, "OTHER": true, "NO_TRAFFIC_IMPACT": true, "UNKNOWN": true,
}

// ParseImpact maps a missing impact to ImpactNull.
func ParseImpact(s *string) (Impact, error) {
	if s == nil {
		return ImpactNull, nil
	}
	if !impacts[Impact(*s)] {
		return "", apperrors.Newf(apperrors.ErrMalformedRow, "unknown bulletin impact %q", *s)
	}
	return Impact(*s), nil
}

type Priority string

const (
	PriorityInfo    Priority = "INFO"
	PriorityWarning Priority = "WARNING"
	PrioritySevere  Priority = "SEVERE"
)

// PriorityOf maps the stored priority level 1..3.
func PriorityOf(level int) (Priority, bool) {
	switch level {
	case 1:
		return PriorityInfo, true
	case 2:
		return PriorityWarning, true
	case 3:
		return PrioritySevere, true
	default:
		return "", false
	}
}

// Translation is one language version of a bulletin text.
type Translation struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Languages in the order translations are listed.
var Languages = []string{"en", "fi", "sv"}

// Bulletin is one active passenger information bulletin. Times are local
// times in the store's time zone; ValidFrom and ValidTo may be unset.
type Bulletin struct {
	ID               int64
	Category         Category
	Impact           Impact
	Priority         Priority
	LastModified     time.Time
	ValidFrom        *time.Time
	ValidTo          *time.Time
	AffectsAllRoutes bool
	AffectsAllStops  bool
	AffectedLineGids []int64
	AffectedStopGids []int64
	Titles           []Translation
	Descriptions     []Translation
	URLs             []Translation
}

// Equal compares every field.
func (b Bulletin) Equal(o Bulletin) bool {
	return b.ID == o.ID &&
		b.Category == o.Category &&
		b.Impact == o.Impact &&
		b.Priority == o.Priority &&
		b.LastModified.Equal(o.LastModified) &&
		equalTime(b.ValidFrom, o.ValidFrom) &&
		equalTime(b.ValidTo, o.ValidTo) &&
		b.AffectsAllRoutes == o.AffectsAllRoutes &&
		b.AffectsAllStops == o.AffectsAllStops &&
		slices.Equal(b.AffectedLineGids, o.AffectedLineGids) &&
		slices.Equal(b.AffectedStopGids, o.AffectedStopGids) &&
		slices.Equal(b.Titles, o.Titles) &&
		slices.Equal(b.Descriptions, o.Descriptions) &&
		slices.Equal(b.URLs, o.URLs)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// SameBulletins reports whether two polls returned the same bulletins,
// regardless of order.
func SameBulletins(a, b []Bulletin) bool {
	if len(a) != len(b) {
		return false
	}
	byID := func(x, y Bulletin) int { return cmp.Compare(x.ID, y.ID) }
	a, b = slices.Clone(a), slices.Clone(b)
	slices.SortFunc(a, byID)
	slices.SortFunc(b, byID)
	return slices.EqualFunc(a, b, Bulletin.Equal)
}

// ValidDuring reports whether an entity existing from existsFrom up to
// existsUpto overlaps the bulletin's validity. Unset bounds never exclude.
func (b Bulletin) ValidDuring(existsFrom, existsUpto *time.Time) bool {
	if b.ValidTo != nil && existsFrom != nil && existsFrom.After(*b.ValidTo) {
		return false
	}
	if b.ValidFrom != nil && existsUpto != nil && existsUpto.Before(*b.ValidFrom) {
		return false
	}
	return true
}

// ParseGids reads a comma separated list of ids.
func ParseGids(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrMalformedRow, err, "parsing affected ids")
		}
		out = append(out, id)
	}
	return out, nil
}
