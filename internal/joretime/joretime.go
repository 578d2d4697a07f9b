// Package joretime converts calendar start times to service-day times, where
// departures after midnight but before the service day start belong to the
// previous operating day and carry hours of 24 or more.
package joretime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout = "20060102"
	daySeconds = 24 * 60 * 60
)

// DateTime is a start time expressed on its service day.
type DateTime struct {
	serviceDay time.Time
	seconds    int
}

// New places date (yyyyMMdd) and clock (HH:mm:ss) on the service day that
// begins at serviceDayStart. A clock earlier than serviceDayStart belongs to
// the previous service day. Clocks already past 24:00:00 are taken as
// service-day times of date.
func New(serviceDayStart, date, clock string) (DateTime, error) {
	start, err := ParseClock(serviceDayStart)
	if err != nil {
		return DateTime{}, fmt.Errorf("service day start: %w", err)
	}
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return DateTime{}, fmt.Errorf("parsing date %q: %w", date, err)
	}
	secs, err := ParseClock(clock)
	if err != nil {
		return DateTime{}, err
	}
	if secs < start {
		secs += daySeconds
		day = day.AddDate(0, 0, -1)
	}
	return DateTime{serviceDay: day, seconds: secs}, nil
}

// Date returns the operating day as yyyyMMdd.
func (d DateTime) Date() string { return d.serviceDay.Format(dateLayout) }

// Time returns the service-day clock as HH:mm:ss.
func (d DateTime) Time() string { return FormatClock(d.seconds) }

// Instant returns the start as an instant, reading the operating day in loc.
func (d DateTime) Instant(loc *time.Location) time.Time {
	y, m, day := d.serviceDay.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc).Add(time.Duration(d.seconds) * time.Second)
}

// ParseClock parses HH:mm:ss where HH may exceed 23.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || len(parts[0]) < 2 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid clock %q", s)
		}
		vals[i] = v
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return vals[0]*3600 + vals[1]*60 + vals[2], nil
}

// FormatClock renders seconds as HH:mm:ss without wrapping at 24 hours.
func FormatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
