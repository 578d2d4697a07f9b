package cancellation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/postgres"
)

// Window selects which cancellations the OMM store returns.
type Window string

const (
	// WindowNow returns cancellations of departures from now on.
	WindowNow Window = "NOW"
	// WindowPast also returns cancellations modified during the last poll
	// interval, even when their departure has already passed.
	WindowPast Window = "PAST"
)

func ParseWindow(s string) (Window, error) {
	switch Window(strings.ToUpper(s)) {
	case WindowNow:
		return WindowNow, nil
	case WindowPast:
		return WindowPast, nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidConfig, "unknown cancellation window %q", s)
	}
}

const (
	localDateTime = "2006-01-02 15:04:05"
	localDate     = "2006-01-02"
)

const ommSelect = `SELECT dvj_id, route_name, direction, to_char(operating_day, 'YYYYMMDD'), start_time,
	affected_departures_status, affected_departures_last_modified,
	deviation_cases_type, affected_departures_type, title, description, category, sub_category
FROM omm_trip_cancellations
WHERE (departure_date_time >= $1::timestamp AND operating_day >= $2::date)`

func ommQuery(w Window) string {
	if w == WindowPast {
		return ommSelect + "\n\tOR affected_departures_last_modified >= $3::timestamp\nORDER BY affected_departures_last_modified"
	}
	return ommSelect + "\nORDER BY affected_departures_last_modified"
}

// Querier is satisfied by *postgres.Client and *sql.DB.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// OMMStore reads trip cancellations from the operations message management
// database. Its timestamps are local time in loc.
type OMMStore struct {
	db       Querier
	window   Window
	loc      *time.Location
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewOMMStore(db Querier, window Window, loc *time.Location, interval time.Duration) *OMMStore {
	return &OMMStore{
		db:       db,
		window:   window,
		loc:      loc,
		interval: interval,
		now:      time.Now,
		logger:   slog.Default().With("component", "omm-store", "window", string(window)),
	}
}

// Candidates implements Source.
func (s *OMMStore) Candidates(ctx context.Context) ([]Candidate, error) {
	now := s.now().In(s.loc)
	args := []any{now.Format(localDateTime), now.Format(localDate)}
	if s.window == WindowPast {
		args = append(args, now.Add(-s.interval).Format(localDateTime))
	}

	log := logger.FromContext(ctx, s.logger)
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, ommQuery(s.window), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := s.scan(rows.Scan)
		if err != nil {
			log.Error("skipping unreadable cancellation", "error", err)
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "reading cancellations")
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		log.Warn("slow cancellation query", "elapsed", elapsed)
	}
	return out, nil
}

func (s *OMMStore) scan(scan func(dest ...any) error) (Candidate, error) {
	var (
		dvjID                                     int64
		p                                         Cancellation
		status                                    sql.NullString
		modified                                  sql.NullTime
		devType, adType, title, desc, cat, subCat sql.NullString
	)
	err := scan(&dvjID, &p.RouteID, &p.DirectionID, &p.StartDate, &p.StartTime,
		&status, &modified, &devType, &adType, &title, &desc, &cat, &subCat)
	if err != nil {
		return Candidate{}, apperrors.Wrap(apperrors.ErrMalformedRow, err, "scanning cancellation")
	}

	st, err := statusOf(status)
	if err != nil {
		return Candidate{}, err
	}
	if !modified.Valid {
		return Candidate{}, apperrors.Newf(apperrors.ErrMalformedRow, "dvj %d has no modification time", dvjID)
	}
	t := modified.Time
	ts := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), s.loc)

	p.DeviationCasesType = devType.String
	p.AffectedDeparturesType = adType.String
	p.Title = title.String
	p.Description = desc.String
	p.Category = cat.String
	p.SubCategory = subCat.String
	return NewCandidate(fmt.Sprint(dvjID), st, ts.UnixMilli(), p), nil
}

// statusOf maps the affected-departures status: a deleted cancellation
// means the trip runs again, an active or missing one means it is canceled.
func statusOf(s sql.NullString) (Status, error) {
	if !s.Valid {
		return StatusCanceled, nil
	}
	switch strings.ToLower(s.String) {
	case "active":
		return StatusCanceled, nil
	case "deleted":
		return StatusRunning, nil
	default:
		return "", apperrors.Newf(apperrors.ErrMalformedRow, "unknown affected departures status %q", s.String)
	}
}
