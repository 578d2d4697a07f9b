package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
)

// WindowStats summarizes one analytics window.
type WindowStats struct {
	Counts
	Ratio       float64
	MeanDelayMs float64
	Alert       bool
}

// Analytics reports the duplicate ratio of a Deduplicator on a fixed period.
// A ratio above 1 means more duplicates than originals, which points at a
// hashing problem; a ratio under the threshold means one of the redundant
// feeds has gone quiet.
type Analytics struct {
	dedup   *Deduplicator
	cfg     config.AnalyticsConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewAnalytics(d *Deduplicator, cfg config.AnalyticsConfig, m *metrics.Metrics) *Analytics {
	return &Analytics{
		dedup:   d,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "dedup-analytics"),
	}
}

// Run reports every poll interval until ctx is done.
func (a *Analytics) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.Report()
		}
	}
}

// Report drains the window counters, logs and exports them.
func (a *Analytics) Report() WindowStats {
	s := Evaluate(a.dedup.Drain(), a.cfg)

	a.metrics.DuplicateRatio.Set(s.Ratio)
	a.metrics.DuplicateDelay.Set(s.MeanDelayMs)

	attrs := []any{
		"primes", s.Primes,
		"duplicates", s.Duplicates,
		"ratio", s.Ratio,
		"mean_delay_ms", s.MeanDelayMs,
	}
	if s.Alert {
		a.logger.Error("duplicate ratio out of range", append(attrs, "threshold", a.cfg.DuplicateRatioThreshold)...)
	} else {
		a.logger.Info("dedup window", attrs...)
	}
	return s
}

// Evaluate computes the ratio, mean delay and alert state of one window.
// With no primes the ratio is reported as 0; duplicates without any prime
// still alert.
func Evaluate(c Counts, cfg config.AnalyticsConfig) WindowStats {
	s := WindowStats{Counts: c}
	if c.Duplicates > 0 {
		s.MeanDelayMs = float64(c.DelaySumMs) / float64(c.Duplicates)
	}
	if c.Primes == 0 {
		s.Alert = c.Duplicates > 0
		return s
	}
	s.Ratio = float64(c.Duplicates) / float64(c.Primes)
	s.Alert = s.Ratio > 1.0 || (cfg.AlertOnThreshold && s.Ratio < cfg.DuplicateRatioThreshold)
	return s
}
