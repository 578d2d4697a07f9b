package alerts

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/postgres"
)

const localDateTime = "2006-01-02 15:04:05"

const bulletinSelect = `SELECT b.bulletins_id, m.impact, b.category, b.last_modified, b.valid_from, b.valid_to,
	b.affects_all_routes, b.affects_all_stops, b.affected_route_ids, b.affected_stop_ids, m.priority,
	max(CASE WHEN l.language_code = 'en' THEN l.title END),
	max(CASE WHEN l.language_code = 'fi' THEN l.title END),
	max(CASE WHEN l.language_code = 'sv' THEN l.title END),
	max(CASE WHEN l.language_code = 'en' THEN l.description END),
	max(CASE WHEN l.language_code = 'fi' THEN l.description END),
	max(CASE WHEN l.language_code = 'sv' THEN l.description END),
	max(CASE WHEN l.language_code = 'en' THEN l.url END),
	max(CASE WHEN l.language_code = 'fi' THEN l.url END),
	max(CASE WHEN l.language_code = 'sv' THEN l.url END)
FROM omm_bulletins b
	LEFT JOIN omm_bulletin_localized_messages l ON l.bulletins_id = b.bulletins_id
	LEFT JOIN omm_passenger_bulletin_meta_data m ON m.bulletins_id = b.bulletins_id
WHERE b.type = 'PASSENGER_INFORMATION'`

const bulletinGroup = `
GROUP BY b.bulletins_id, m.impact, b.category, b.last_modified, b.valid_from, b.valid_to,
	b.affects_all_routes, b.affects_all_stops, b.affected_route_ids, b.affected_stop_ids, m.priority
ORDER BY b.bulletins_id`

func bulletinQuery(allModified bool) string {
	if allModified {
		return bulletinSelect + "\n\tAND (b.valid_to > $1::timestamp OR b.last_modified > $2::timestamp)" + bulletinGroup
	}
	return bulletinSelect + "\n\tAND b.valid_to > $1::timestamp" + bulletinGroup
}

const lineQuery = `SELECT gid, route_id, exists_from_date, exists_upto_date FROM omm_line_routes`

const stopPointQuery = `SELECT gid, number, exists_from_date, exists_upto_date FROM omm_stop_points`

// Querier is satisfied by *postgres.Client and *sql.DB.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Route is one route id a line had during its existence window.
type Route struct {
	RouteID    string
	ExistsFrom *time.Time
	ExistsUpto *time.Time
}

// StopPoint is one stop number a stop had during its existence window.
type StopPoint struct {
	StopID     string
	ExistsFrom *time.Time
	ExistsUpto *time.Time
}

// OMMStore reads bulletins, lines and stops from the operations message
// management database. Its timestamps are local time in loc.
type OMMStore struct {
	db          Querier
	loc         *time.Location
	interval    time.Duration
	allModified bool
	now         func() time.Time
	logger      *slog.Logger
}

// NewOMMStore returns bulletins valid now. With allModified it also returns
// bulletins modified during the last poll interval.
func NewOMMStore(db Querier, loc *time.Location, interval time.Duration, allModified bool) *OMMStore {
	return &OMMStore{
		db:          db,
		loc:         loc,
		interval:    interval,
		allModified: allModified,
		now:         time.Now,
		logger:      slog.Default().With("component", "omm-bulletin-store"),
	}
}

// Bulletins returns the active passenger information bulletins. Rows with
// unknown categories, impacts or priorities are logged and skipped.
func (s *OMMStore) Bulletins(ctx context.Context) ([]Bulletin, error) {
	now := s.now().In(s.loc)
	args := []any{now.Format(localDateTime)}
	if s.allModified {
		args = append(args, now.Add(-s.interval).Format(localDateTime))
	}

	log := logger.FromContext(ctx, s.logger)
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, bulletinQuery(s.allModified), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bulletin
	for rows.Next() {
		b, err := s.scanBulletin(rows.Scan)
		if err != nil {
			log.Error("skipping unreadable bulletin", "error", err)
			continue
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "reading bulletins")
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		log.Warn("slow bulletin query", "elapsed", elapsed)
	}
	return out, nil
}

func (s *OMMStore) scanBulletin(scan func(dest ...any) error) (Bulletin, error) {
	var (
		b                   Bulletin
		impact, category    sql.NullString
		modified, from, to  sql.NullTime
		allRoutes, allStops sql.NullInt64
		routeIDs, stopIDs   sql.NullString
		priority            sql.NullInt64
		texts               [9]sql.NullString
	)
	dest := []any{&b.ID, &impact, &category, &modified, &from, &to,
		&allRoutes, &allStops, &routeIDs, &stopIDs, &priority}
	for i := range texts {
		dest = append(dest, &texts[i])
	}
	if err := scan(dest...); err != nil {
		return Bulletin{}, apperrors.Wrap(apperrors.ErrMalformedRow, err, "scanning bulletin")
	}

	var err error
	if b.Category, err = ParseCategory(category.String); err != nil {
		return Bulletin{}, err
	}
	var imp *string
	if impact.Valid {
		imp = &impact.String
	}
	if b.Impact, err = ParseImpact(imp); err != nil {
		return Bulletin{}, err
	}
	p, ok := PriorityOf(int(priority.Int64))
	if !ok {
		return Bulletin{}, apperrors.Newf(apperrors.ErrMalformedRow, "bulletin %d has unknown priority %d", b.ID, priority.Int64)
	}
	b.Priority = p
	if !modified.Valid {
		return Bulletin{}, apperrors.Newf(apperrors.ErrMalformedRow, "bulletin %d has no modification time", b.ID)
	}
	b.LastModified = s.local(modified.Time)
	b.ValidFrom = s.localPtr(from)
	b.ValidTo = s.localPtr(to)
	b.AffectsAllRoutes = allRoutes.Int64 > 0
	b.AffectsAllStops = allStops.Int64 > 0
	if b.AffectedLineGids, err = ParseGids(routeIDs.String); err != nil {
		return Bulletin{}, err
	}
	if b.AffectedStopGids, err = ParseGids(stopIDs.String); err != nil {
		return Bulletin{}, err
	}
	b.Titles = translations(texts[0:3])
	b.Descriptions = translations(texts[3:6])
	b.URLs = translations(texts[6:9])
	return b, nil
}

// translations pairs columns ordered as Languages, dropping missing ones.
func translations(cols []sql.NullString) []Translation {
	var out []Translation
	for i, c := range cols {
		if c.Valid {
			out = append(out, Translation{Text: c.String, Language: Languages[i]})
		}
	}
	return out
}

// Lines returns the routes of every line by line gid.
func (s *OMMStore) Lines(ctx context.Context) (map[int64][]Route, error) {
	out := make(map[int64][]Route)
	err := s.readEntities(ctx, lineQuery, "lines", func(gid int64, id string, from, upto *time.Time) {
		out[gid] = append(out[gid], Route{RouteID: id, ExistsFrom: from, ExistsUpto: upto})
	})
	return out, err
}

// StopPoints returns the stop numbers of every stop by stop gid.
func (s *OMMStore) StopPoints(ctx context.Context) (map[int64][]StopPoint, error) {
	out := make(map[int64][]StopPoint)
	err := s.readEntities(ctx, stopPointQuery, "stop points", func(gid int64, id string, from, upto *time.Time) {
		out[gid] = append(out[gid], StopPoint{StopID: id, ExistsFrom: from, ExistsUpto: upto})
	})
	return out, err
}

func (s *OMMStore) readEntities(ctx context.Context, query, what string, add func(gid int64, id string, from, upto *time.Time)) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	log := logger.FromContext(ctx, s.logger)
	for rows.Next() {
		var (
			gid        int64
			id         string
			from, upto sql.NullTime
		)
		if err := rows.Scan(&gid, &id, &from, &upto); err != nil {
			log.Warn("skipping unreadable row", "table", what, "error", err)
			continue
		}
		add(gid, id, s.localPtr(from), s.localPtr(upto))
	}
	if err := rows.Err(); err != nil {
		return postgres.ClassifyError(err, "reading "+what)
	}
	return nil
}

// local re-reads a timestamp without time zone as wall-clock time in loc.
func (s *OMMStore) local(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), s.loc)
}

func (s *OMMStore) localPtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	lt := s.local(t.Time)
	return &lt
}
