package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BundlesProcessed tracks per-bundle verdicts across cycles
	// Labels allow filtering by outcome (accepted/rejected)
	BundlesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "possync_bundles_processed_total",
		Help: "Total number of bundles processed by outcome",
	}, []string{"status"})

	// CycleDuration measures end-to-end sync cycle latency
	// Includes bundle building, the network round trip, and reconciliation
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "possync_cycle_duration_seconds",
		Help:    "Duration of a full sync cycle in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BundleBatchSize tracks how many bundles each non-empty cycle sends
	BundleBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "possync_bundle_batch_size",
		Help:    "Number of bundles sent per sync cycle",
		Buckets: []float64{1, 5, 10, 25, 50, 100},
	})

	// SyncBacklog is the number of dirty product_stocks rows still waiting
	// This is the primary indicator of how far behind the terminal is
	SyncBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "possync_backlog",
		Help: "Current number of unsynced product stock rows",
	})

	// ConnectivityStatus provides a binary 0/1 signal for reachability of
	// the remote authority (1 = online, 0 = offline)
	ConnectivityStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "possync_online",
		Help: "Whether the sync authority is currently reachable (1) or not (0)",
	})

	// ConversionErrors counts sale lines skipped due to corrupt packaging
	// metadata. Any increment means a data-integrity defect needs fixing
	ConversionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_conversion_errors_total",
		Help: "Total number of sale items skipped due to invalid packaging metadata",
	})
)
