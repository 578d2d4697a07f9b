package enrichment

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/config"
)

// Gate blocks extraction cycles while the enrichment cache is stale, so a
// late or failed bulk load does not turn into a burst of per-row misses.
type Gate struct {
	client  *Client
	enabled bool
	maxAge  int
	now     func() time.Time
	logger  *slog.Logger
}

func NewGate(client *Client, cfg config.CacheConfig) *Gate {
	return &Gate{
		client:  client,
		enabled: cfg.EnableTimestampCheck,
		maxAge:  cfg.MaxAgeMinutes,
		now:     time.Now,
		logger:  slog.Default().With("component", "precondition-gate"),
	}
}

// IsReady reports whether the last bulk update is at most maxAge whole
// minutes old. A missing or unparseable control key is not ready. The error
// is reserved for failures to reach the cache.
func (g *Gate) IsReady(ctx context.Context) (bool, error) {
	if !g.enabled {
		return true, nil
	}
	raw, found, err := g.client.LastUpdate(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		g.logger.Error("cache control key missing", "key", KeyLastUpdate)
		return false, nil
	}
	updated, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		g.logger.Error("cache control key unparseable", "key", KeyLastUpdate, "value", raw, "error", err)
		return false, nil
	}
	elapsed := int(g.now().Sub(updated) / time.Minute)
	if elapsed > g.maxAge {
		g.logger.Error("cache is stale",
			"last_update", updated,
			"elapsed_minutes", elapsed,
			"max_age_minutes", g.maxAge,
		)
		return false, nil
	}
	return true, nil
}
