// Package metrics defines the Prometheus collectors shared by the bridges
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. Vectors are labelled by bridge
// name so several bridges can share a dashboard.
type Metrics struct {
	RowsExtractedTotal      *prometheus.CounterVec
	EnrichmentMissesTotal   *prometheus.CounterVec
	EnvelopesPublishedTotal *prometheus.CounterVec
	EnvelopesFailedTotal    *prometheus.CounterVec
	Watermark               *prometheus.GaugeVec
	CycleDuration           *prometheus.HistogramVec
	CycleOutcomesTotal      *prometheus.CounterVec
	DedupMessagesTotal      *prometheus.CounterVec
	DedupCacheEntries       prometheus.Gauge
	DuplicateRatio          prometheus.Gauge
	DuplicateDelay          prometheus.Gauge
	CancellationsTotal      *prometheus.CounterVec
	CacheKeysWrittenTotal   *prometheus.CounterVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RowsExtractedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_rows_extracted_total",
				Help: "Source rows returned by incremental extraction.",
			},
			[]string{"bridge"},
		),
		EnrichmentMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_enrichment_misses_total",
				Help: "Rows dropped because no enrichment record was found.",
			},
			[]string{"bridge"},
		),
		EnvelopesPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_envelopes_published_total",
				Help: "Envelopes acknowledged by the broker.",
			},
			[]string{"bridge"},
		),
		EnvelopesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_envelopes_failed_total",
				Help: "Envelopes whose send failed.",
			},
			[]string{"bridge"},
		),
		Watermark: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bridge_watermark_ms",
				Help: "Last processed source modification time in epoch milliseconds.",
			},
			[]string{"bridge"},
		),
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_cycle_duration_seconds",
				Help:    "Duration of one scheduled cycle.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"bridge"},
		),
		CycleOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_cycle_outcomes_total",
				Help: "Cycles by outcome (ok, skipped, fatal).",
			},
			[]string{"bridge", "outcome"},
		),
		DedupMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_messages_total",
				Help: "Deduplicator decisions by result (prime, duplicate).",
			},
			[]string{"result"},
		),
		DedupCacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dedup_cache_entries",
				Help: "Content hashes held by the deduplicator cache.",
			},
		),
		DuplicateRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dedup_duplicate_ratio",
				Help: "Duplicates per prime over the last analytics window.",
			},
		),
		DuplicateDelay: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dedup_duplicate_delay_ms",
				Help: "Mean delay between a prime and its duplicate over the last window.",
			},
		),
		CancellationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_cancellations_total",
				Help: "Reconciled cancellation records by kind (new, repeated).",
			},
			[]string{"bridge", "kind"},
		),
		CacheKeysWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_bootstrap_keys_written_total",
				Help: "Enrichment cache keys written by the bootstrap job.",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.RowsExtractedTotal,
		m.EnrichmentMissesTotal,
		m.EnvelopesPublishedTotal,
		m.EnvelopesFailedTotal,
		m.Watermark,
		m.CycleDuration,
		m.CycleOutcomesTotal,
		m.DedupMessagesTotal,
		m.DedupCacheEntries,
		m.DuplicateRatio,
		m.DuplicateDelay,
		m.CancellationsTotal,
		m.CacheKeysWrittenTotal,
	)

	return m
}

// NewNop returns collectors registered nowhere, for tests and tools that do
// not expose a scrape endpoint.
func NewNop() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// HandlerFor returns the scrape handler for gatherer; pass
// prometheus.DefaultGatherer for collectors created by New.
func HandlerFor(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
