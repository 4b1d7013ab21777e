// Package metrics exposes Prometheus gauges/counters/histograms for the
// ingest, search and cleanup pipelines, following the metric-set +
// MustRegister(init) + Timer pattern of cuemby-warren/pkg/metrics, retargeted
// from cluster/raft metrics to clipboard-pipeline metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	ItemsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scopy_items_total",
			Help: "Total number of clipboard items by content kind",
		},
		[]string{"kind"},
	)

	StoreSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scopy_store_size_bytes",
			Help: "Total size on disk of inline and externally stored item payloads",
		},
	)

	// Ingest metrics
	IngestRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scopy_ingest_requests_total",
			Help: "Total number of ingest requests by outcome",
		},
		[]string{"outcome"},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scopy_ingest_duration_seconds",
			Help:    "Time taken to ingest one captured item, from capture to persisted",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scopy_ingest_queue_depth",
			Help: "Number of captures waiting on the bounded ingest worker pool",
		},
	)

	DedupHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scopy_dedup_hits_total",
			Help: "Total number of ingests resolved as a duplicate of an existing item",
		},
	)

	// Search metrics
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scopy_search_requests_total",
			Help: "Total number of search requests by mode",
		},
		[]string{"mode"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scopy_search_duration_seconds",
			Help:    "Search request latency in seconds by mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	SearchCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scopy_search_cache_hits_total",
			Help: "Total number of search cache hits by cache name",
		},
		[]string{"cache"},
	)

	FuzzyIndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scopy_fuzzy_index_size",
			Help: "Number of live slots currently held in the in-memory fuzzy index",
		},
	)

	FuzzyIndexTombstones = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scopy_fuzzy_index_tombstones",
			Help: "Number of tombstoned slots awaiting reclaim in the fuzzy index",
		},
	)

	// Cleanup metrics
	CleanupRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scopy_cleanup_runs_total",
			Help: "Total number of cleanup scheduler runs started",
		},
	)

	CleanupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scopy_cleanup_duration_seconds",
			Help:    "Time taken for a cleanup run to evict items past the retention caps",
			Buckets: prometheus.DefBuckets,
		},
	)

	ItemsEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scopy_items_evicted_total",
			Help: "Total number of items evicted by cleanup, by reason",
		},
		[]string{"reason"},
	)

	OrphansReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scopy_orphans_reclaimed_total",
			Help: "Total number of orphaned blob files reclaimed by cleanup",
		},
	)
)

func init() {
	prometheus.MustRegister(ItemsTotal)
	prometheus.MustRegister(StoreSizeBytes)
	prometheus.MustRegister(IngestRequestsTotal)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(IngestQueueDepth)
	prometheus.MustRegister(DedupHitsTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchCacheHitsTotal)
	prometheus.MustRegister(FuzzyIndexSize)
	prometheus.MustRegister(FuzzyIndexTombstones)
	prometheus.MustRegister(CleanupRunsTotal)
	prometheus.MustRegister(CleanupDuration)
	prometheus.MustRegister(ItemsEvictedTotal)
	prometheus.MustRegister(OrphansReclaimedTotal)
}

// Handler returns the Prometheus HTTP handler for a diagnostics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation and reports it to a histogram on Observe.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
