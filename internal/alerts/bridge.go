package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
)

const schemaVersion = 1

// Source reads bulletins and the lines and stops they refer to.
type Source interface {
	Bulletins(ctx context.Context) ([]Bulletin, error)
	Lines(ctx context.Context) (map[int64][]Route, error)
	StopPoints(ctx context.Context) (map[int64][]StopPoint, error)
}

type Publisher interface {
	Publish(ctx context.Context, envs []envelope.Envelope) (int, error)
}

// ServiceAlert is the service-alert payload.
type ServiceAlert struct {
	SchemaVersion int           `json:"schemaVersion"`
	Bulletins     []AlertRecord `json:"bulletins"`
}

// AlertRecord is one bulletin as published. Times are UTC milliseconds.
type AlertRecord struct {
	BulletinID        string        `json:"bulletinId"`
	Category          Category      `json:"category"`
	Impact            Impact        `json:"impact"`
	Priority          Priority      `json:"priority"`
	LastModifiedUtcMs int64         `json:"lastModifiedUtcMs"`
	ValidFromUtcMs    *int64        `json:"validFromUtcMs,omitempty"`
	ValidToUtcMs      *int64        `json:"validToUtcMs,omitempty"`
	AffectsAllRoutes  bool          `json:"affectsAllRoutes"`
	AffectsAllStops   bool          `json:"affectsAllStops"`
	AffectedRoutes    []Entity      `json:"affectedRoutes"`
	AffectedStops     []Entity      `json:"affectedStops"`
	Titles            []Translation `json:"titles"`
	Descriptions      []Translation `json:"descriptions"`
	URLs              []Translation `json:"urls"`
}

type Entity struct {
	EntityID string `json:"entityId"`
}

// Bridge polls bulletins and publishes a service alert when they change.
// Lines are reloaded once per local day; stops on every change.
type Bridge struct {
	name      string
	source    Source
	publisher Publisher
	loc       *time.Location
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *slog.Logger

	previous  []Bulletin
	published bool
	lines     map[int64][]Route
	linesDay  string
}

func NewBridge(name string, source Source, pub Publisher, loc *time.Location, m *metrics.Metrics) *Bridge {
	return &Bridge{
		name:      name,
		source:    source,
		publisher: pub,
		loc:       loc,
		now:       time.Now,
		metrics:   m,
		logger:    slog.Default().With("component", "alert-bridge", "bridge", name),
	}
}

func (b *Bridge) RunCycle(ctx context.Context) error {
	log := logger.FromContext(ctx, b.logger)
	bulletins, err := b.source.Bulletins(ctx)
	if err != nil {
		return err
	}
	b.metrics.RowsExtractedTotal.WithLabelValues(b.name).Add(float64(len(bulletins)))

	now := b.now()
	if day := now.In(b.loc).Format("2006-01-02"); day != b.linesDay {
		lines, err := b.source.Lines(ctx)
		if err != nil {
			return err
		}
		b.lines, b.linesDay = lines, day
		log.Info("lines reloaded", "lines", len(lines))
	}

	if b.published && SameBulletins(bulletins, b.previous) {
		log.Info("no changes to service alerts", "bulletins", len(bulletins))
		return nil
	}
	stops, err := b.source.StopPoints(ctx)
	if err != nil {
		return err
	}

	alert := BuildAlert(bulletins, b.lines, stops, log)
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	env, err := envelope.New("", now.UnixMilli(), envelope.SchemaServiceAlert, schemaVersion, nil, payload)
	if err != nil {
		return err
	}
	sent, err := b.publisher.Publish(ctx, []envelope.Envelope{env})
	if err != nil {
		return err
	}
	if sent == 0 {
		log.Warn("service alert not delivered, retrying next cycle")
		return nil
	}
	b.previous, b.published = bulletins, true
	log.Info("service alert published", "bulletins", len(alert.Bulletins), "eventTimeMs", env.EventTimeMs())
	return nil
}

// BuildAlert resolves the affected routes and stops of every bulletin.
// Bulletins that affect nothing are left out.
func BuildAlert(bulletins []Bulletin, lines map[int64][]Route, stops map[int64][]StopPoint, log *slog.Logger) ServiceAlert {
	out := ServiceAlert{SchemaVersion: schemaVersion, Bulletins: make([]AlertRecord, 0, len(bulletins))}
	for _, bl := range bulletins {
		rec := AlertRecord{
			BulletinID:        strconv.FormatInt(bl.ID, 10),
			Category:          bl.Category,
			Impact:            bl.Impact,
			Priority:          bl.Priority,
			LastModifiedUtcMs: bl.LastModified.UnixMilli(),
			ValidFromUtcMs:    unixMilli(bl.ValidFrom),
			ValidToUtcMs:      unixMilli(bl.ValidTo),
			AffectsAllRoutes:  bl.AffectsAllRoutes,
			AffectsAllStops:   bl.AffectsAllStops,
			AffectedRoutes:    affectedRoutes(bl, lines, log),
			AffectedStops:     affectedStops(bl, stops, log),
			Titles:            bl.Titles,
			Descriptions:      bl.Descriptions,
			URLs:              bl.URLs,
		}
		if rec.ValidFromUtcMs == nil {
			log.Error("bulletin has no start time", "bulletin", bl.ID)
		}
		if rec.ValidToUtcMs == nil {
			log.Error("bulletin has no end time", "bulletin", bl.ID)
		}
		if len(rec.AffectedRoutes) == 0 && len(rec.AffectedStops) == 0 && !bl.AffectsAllRoutes && !bl.AffectsAllStops {
			log.Warn("bulletin affects no entities, discarding", "bulletin", bl.ID)
			continue
		}
		out.Bulletins = append(out.Bulletins, rec)
	}
	return out
}

func affectedRoutes(bl Bulletin, lines map[int64][]Route, log *slog.Logger) []Entity {
	out := []Entity{}
	seen := make(map[string]bool)
	for _, gid := range bl.AffectedLineGids {
		routes, ok := lines[gid]
		if !ok {
			log.Error("no line for affected line gid", "gid", gid, "bulletin", bl.ID)
			continue
		}
		for _, r := range routes {
			if !bl.ValidDuring(r.ExistsFrom, r.ExistsUpto) || seen[r.RouteID] {
				continue
			}
			seen[r.RouteID] = true
			out = append(out, Entity{EntityID: r.RouteID})
		}
	}
	return out
}

func affectedStops(bl Bulletin, stops map[int64][]StopPoint, log *slog.Logger) []Entity {
	out := []Entity{}
	seen := make(map[string]bool)
	for _, gid := range bl.AffectedStopGids {
		points, ok := stops[gid]
		if !ok {
			log.Warn("no stop for affected stop gid", "gid", gid, "bulletin", bl.ID)
			continue
		}
		for _, sp := range points {
			if !bl.ValidDuring(sp.ExistsFrom, sp.ExistsUpto) || seen[sp.StopID] {
				continue
			}
			seen[sp.StopID] = true
			out = append(out, Entity{EntityID: sp.StopID})
		}
	}
	return out
}

func unixMilli(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
