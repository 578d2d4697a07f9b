package pubtrans

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

// sqlTimestamp is how the watermark is bound; the modification column is a
// UTC timestamp without time zone.
const sqlTimestamp = "2006-01-02 15:04:05.000"

// Row is one source row after scanning. Extras holds the handler's extra
// columns, nil when NULL.
type Row struct {
	Common
	Extras map[string]*int64
}

// Querier is satisfied by *postgres.Client and *sql.DB.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Extractor reads rows modified after the watermark from one table.
type Extractor struct {
	db      Querier
	handler TableHandler
	loc     *time.Location
	query   string
	logger  *slog.Logger
}

// NewExtractor creates an Extractor. loc is the zone of the table's local
// timestamp columns.
func NewExtractor(db Querier, handler TableHandler, loc *time.Location) *Extractor {
	return &Extractor{
		db:      db,
		handler: handler,
		loc:     loc,
		query:   buildQuery(handler),
		logger:  slog.Default().With("component", "extractor", "table", handler.Table()),
	}
}

func buildQuery(h TableHandler) string {
	cols := []string{
		"id",
		"is_on_dated_vehicle_journey_id",
		"is_on_monitored_vehicle_journey_id",
		"journey_pattern_sequence_number",
		"is_timetabled_at_journey_pattern_point_gid",
		"visit_count_number",
		"is_targeted_at_journey_pattern_point_gid",
		"was_observed_at_journey_pattern_point_gid",
		h.TimetabledColumn(),
		"target_date_time",
		"estimated_date_time",
		"observed_date_time",
		"state",
		"type",
		"is_valid_yes_no",
		"last_modified_utc_date_time",
	}
	cols = append(cols, h.ExtraColumns()...)
	// Compared at millisecond precision, the resolution of the watermark, so a
	// row with sub-millisecond digits is not read again on the next cycle.
	return fmt.Sprintf(`SELECT %s FROM %s
WHERE date_trunc('milliseconds', last_modified_utc_date_time) > $1::timestamp
ORDER BY last_modified_utc_date_time, is_on_dated_vehicle_journey_id, journey_pattern_sequence_number DESC`,
		strings.Join(cols, ", "), h.Table())
}

// Extract returns all rows modified strictly after sinceMs, ordered by
// modification time. Rows that fail to scan are skipped with a warning.
func (e *Extractor) Extract(ctx context.Context, sinceMs int64) ([]Row, error) {
	since := time.UnixMilli(sinceMs).UTC().Format(sqlTimestamp)
	rows, err := e.db.QueryContext(ctx, e.query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	log := logger.FromContext(ctx, e.logger)
	var out []Row
	for rows.Next() {
		row, err := e.scanRow(rows.Scan)
		if err != nil {
			log.Warn("skipping malformed row", "error", err)
			continue
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "reading rows")
	}
	return out, nil
}

func (e *Extractor) scanRow(scan func(dest ...any) error) (Row, error) {
	var (
		c                                       Common
		timetabled, target, estimated, observed *time.Time
		state                                   *int64
		typ                                     *int32
		valid                                   *bool
		modified                                time.Time
	)
	dest := []any{
		&c.ID,
		&c.IsOnDatedVehicleJourneyID,
		&c.IsOnMonitoredVehicleJourneyID,
		&c.JourneyPatternSequenceNumber,
		&c.IsTimetabledAtJourneyPatternPointGid,
		&c.VisitCountNumber,
		&c.IsTargetedAtJourneyPatternPointGid,
		&c.WasObservedAtJourneyPatternPointGid,
		&timetabled,
		&target,
		&estimated,
		&observed,
		&state,
		&typ,
		&valid,
		&modified,
	}
	extraCols := e.handler.ExtraColumns()
	extras := make([]*int64, len(extraCols))
	for i := range extras {
		dest = append(dest, &extras[i])
	}
	if err := scan(dest...); err != nil {
		return Row{}, apperrors.Wrap(apperrors.ErrMalformedRow, err, "scanning "+e.handler.Table())
	}

	c.TimetabledUtcDateTimeMs = localMillis(timetabled, e.loc)
	c.TargetUtcDateTimeMs = localMillis(target, e.loc)
	c.EstimatedUtcDateTimeMs = localMillis(estimated, e.loc)
	c.ObservedUtcDateTimeMs = localMillis(observed, e.loc)
	if state != nil {
		c.State = *state
	}
	if typ != nil {
		c.Type = *typ
	}
	if valid != nil {
		c.IsValidYesNo = *valid
	}
	c.LastModifiedUtcDateTimeMs = wallClockIn(modified, time.UTC).UnixMilli()

	row := Row{Common: c}
	if len(extraCols) > 0 {
		row.Extras = make(map[string]*int64, len(extraCols))
		for i, col := range extraCols {
			row.Extras[col] = extras[i]
		}
	}
	return row, nil
}

// localMillis reads a timestamp-without-time-zone value as wall-clock time
// in loc and returns it as UTC epoch milliseconds.
func localMillis(t *time.Time, loc *time.Location) *int64 {
	if t == nil {
		return nil
	}
	ms := wallClockIn(*t, loc).UnixMilli()
	return &ms
}

func wallClockIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
