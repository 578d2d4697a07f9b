// Package bootstrap fills the enrichment cache from the schedule database:
// trip context per dated vehicle journey, the reverse lookup from scheduled
// departure to journey, metro journeys by start stop and instant, and stop
// numbers per journey pattern point.
package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/joretime"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/redis"
)

const (
	batchSize  = 1000
	dateLayout = "2006-01-02"
)

const tripQuery = `SELECT dvj_id, route_name, direction, to_char(operating_day, 'YYYYMMDD'), start_time,
	coalesce(start_stop_number, '')
FROM bootstrap_dated_vehicle_journeys
WHERE operating_day >= $1::date AND operating_day < $2::date`

const stopQuery = `SELECT gid, number FROM bootstrap_journey_pattern_points`

type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Schedule reads the trips and stops to cache.
type Schedule interface {
	Trips(ctx context.Context, from, to string) ([]Trip, error)
	Stops(ctx context.Context) ([]Stop, error)
}

// Writer is the part of the Redis client the job writes through.
type Writer interface {
	WriteBatch(ctx context.Context, entries []redis.Entry, ttl time.Duration) (int, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Trip is one dated vehicle journey as read from the schedule.
type Trip struct {
	DvjID        int64
	RouteName    string
	Direction    int
	OperatingDay string
	StartTime    string
	// StartStopNumber is set for metro journeys only.
	StartStopNumber string
}

// Stop maps a journey pattern point to its stop number.
type Stop struct {
	Gid    int64
	Number string
}

type Job struct {
	schedule Schedule
	cache    Writer
	cfg      config.BootstrapConfig
	loc      *time.Location
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewJob(schedule Schedule, cache Writer, cfg config.BootstrapConfig, loc *time.Location, m *metrics.Metrics) *Job {
	return &Job{
		schedule: schedule,
		cache:    cache,
		cfg:      cfg,
		loc:      loc,
		now:      time.Now,
		metrics:  m,
		logger:   slog.Default().With("component", "cache-bootstrap"),
	}
}

// RunCycle loads the schedule window and writes every key, then stamps the
// control key the bridges' freshness gate reads. The stamp is written only
// after all keys succeeded.
func (j *Job) RunCycle(ctx context.Context) error {
	log := logger.FromContext(ctx, j.logger)
	start := j.now()
	today := start.In(j.loc)
	from := today.AddDate(0, 0, -j.cfg.HistoryDays).Format(dateLayout)
	to := today.AddDate(0, 0, j.cfg.FutureDays).Format(dateLayout)
	log.Info("loading schedule window", "from", from, "to", to)

	trips, err := j.schedule.Trips(ctx, from, to)
	if err != nil {
		return err
	}
	stops, err := j.schedule.Stops(ctx)
	if err != nil {
		return err
	}

	ttl := time.Duration(j.cfg.TTLDays) * 24 * time.Hour
	tripEntries, joreEntries := TripEntries(trips)
	metroEntries := MetroEntries(trips, j.loc, j.logger)
	for _, w := range []struct {
		kind    string
		entries []redis.Entry
	}{
		{"trip", tripEntries},
		{"reverse-lookup", joreEntries},
		{"metro", metroEntries},
		{"stop", StopEntries(stops)},
	} {
		n, err := j.write(ctx, w.entries, ttl)
		if err != nil {
			return err
		}
		j.metrics.CacheKeysWrittenTotal.WithLabelValues(w.kind).Add(float64(n))
		log.Info("cache keys written", "kind", w.kind, "count", n)
	}

	stamp := j.now().UTC().Format(time.RFC3339)
	if err := j.cache.Set(ctx, enrichment.KeyLastUpdate, stamp, 0); err != nil {
		return apperrors.Wrap(apperrors.ErrConnectivity, err, "writing "+enrichment.KeyLastUpdate)
	}
	log.Info("cache bootstrap complete", "trips", len(trips), "stops", len(stops), "elapsed", j.now().Sub(start))
	return nil
}

func (j *Job) write(ctx context.Context, entries []redis.Entry, ttl time.Duration) (int, error) {
	var total int
	for len(entries) > 0 {
		n := min(batchSize, len(entries))
		written, err := j.cache.WriteBatch(ctx, entries[:n], ttl)
		if err != nil {
			return total, apperrors.Wrap(apperrors.ErrConnectivity, err, "writing cache batch")
		}
		total += written
		entries = entries[n:]
	}
	return total, nil
}

// PostgresSchedule reads the schedule views.
type PostgresSchedule struct {
	db     Querier
	logger *slog.Logger
}

func NewPostgresSchedule(db Querier) *PostgresSchedule {
	return &PostgresSchedule{db: db, logger: slog.Default().With("component", "schedule-reader")}
}

// Trips returns the journeys operating on days in [from, to).
func (s *PostgresSchedule) Trips(ctx context.Context, from, to string) ([]Trip, error) {
	rows, err := s.db.QueryContext(ctx, tripQuery, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trip
	for rows.Next() {
		var t Trip
		if err := rows.Scan(&t.DvjID, &t.RouteName, &t.Direction, &t.OperatingDay, &t.StartTime, &t.StartStopNumber); err != nil {
			s.logger.Warn("skipping unreadable trip row", "error", err)
			continue
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "reading trips")
	}
	return out, nil
}

func (s *PostgresSchedule) Stops(ctx context.Context) ([]Stop, error) {
	rows, err := s.db.QueryContext(ctx, stopQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stop
	for rows.Next() {
		var st Stop
		if err := rows.Scan(&st.Gid, &st.Number); err != nil {
			s.logger.Warn("skipping unreadable stop row", "error", err)
			continue
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "reading stops")
	}
	return out, nil
}

// TripEntries builds the trip-context hash and reverse-lookup key of every
// trip.
func TripEntries(trips []Trip) (hashes, lookups []redis.Entry) {
	hashes = make([]redis.Entry, 0, len(trips))
	lookups = make([]redis.Entry, 0, len(trips))
	for _, t := range trips {
		id := strconv.FormatInt(t.DvjID, 10)
		hashes = append(hashes, redis.Entry{
			Key: enrichment.TripKey(t.DvjID),
			Fields: map[string]string{
				enrichment.FieldDvjID:        id,
				enrichment.FieldRouteName:    t.RouteName,
				enrichment.FieldDirection:    strconv.Itoa(t.Direction),
				enrichment.FieldStartTime:    t.StartTime,
				enrichment.FieldOperatingDay: t.OperatingDay,
			},
		})
		lookups = append(lookups, redis.Entry{
			Key:   enrichment.JoreKey(t.RouteName, t.Direction, t.OperatingDay, t.StartTime),
			Value: id,
		})
	}
	return hashes, lookups
}

// MetroEntries builds the metro journey hash of every trip that has a start
// stop. The start instant reads the operating day in loc; trips whose start
// cannot be placed are skipped.
func MetroEntries(trips []Trip, loc *time.Location, log *slog.Logger) []redis.Entry {
	var out []redis.Entry
	for _, t := range trips {
		if t.StartStopNumber == "" {
			continue
		}
		start, err := joretime.New("00:00:00", t.OperatingDay, t.StartTime)
		if err != nil {
			log.Warn("skipping metro journey", "dvjId", t.DvjID, "error", err)
			continue
		}
		startDatetime := start.Instant(loc).UTC().Format(enrichment.MetroTimeLayout)
		out = append(out, redis.Entry{
			Key: enrichment.MetroKey(t.StartStopNumber, startDatetime),
			Fields: map[string]string{
				enrichment.FieldDvjID:           strconv.FormatInt(t.DvjID, 10),
				enrichment.FieldRouteName:       t.RouteName,
				enrichment.FieldDirection:       strconv.Itoa(t.Direction),
				enrichment.FieldStartTime:       t.StartTime,
				enrichment.FieldOperatingDay:    t.OperatingDay,
				enrichment.FieldStartStopNumber: t.StartStopNumber,
				enrichment.FieldStartDatetime:   startDatetime,
			},
		})
	}
	return out
}

func StopEntries(stops []Stop) []redis.Entry {
	out := make([]redis.Entry, 0, len(stops))
	for _, s := range stops {
		out = append(out, redis.Entry{Key: enrichment.StopKey(s.Gid), Value: s.Number})
	}
	return out
}
