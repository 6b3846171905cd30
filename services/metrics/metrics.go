// Package metrics exposes Prometheus instrumentation for ingest and
// forecast runs. Counters are safe to touch before Init; they just stay
// unregistered until serve mode exports them.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	windowsFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trendpulse_windows_fetched_total",
		Help: "Provider windows fetched successfully, by geo",
	}, []string{"geo"})

	windowRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trendpulse_window_retries_total",
		Help: "Window fetch attempts that had to be retried, by reason",
	}, []string{"reason"})

	windowsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trendpulse_windows_skipped_total",
		Help: "Windows abandoned after retries, by reason",
	}, []string{"reason"})

	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trendpulse_window_cache_hits_total",
		Help: "Window fetches served from the local cache",
	})

	rowsUpserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trendpulse_rows_upserted_total",
		Help: "Rows written by kind (interest or forecast)",
	}, []string{"kind"})

	slugOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trendpulse_slugs_processed_total",
		Help: "Per-slug outcomes across runs (completed or skipped)",
	}, []string{"kind", "outcome"})

	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trendpulse_run_duration_seconds",
		Help:    "Wall-clock run duration by kind",
		Buckets: []float64{1, 5, 15, 60, 180, 600, 1800, 3600},
	}, []string{"kind"})
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Must be called
// once before the /metrics endpoint is served.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			windowsFetched,
			windowRetries,
			windowsSkipped,
			cacheHits,
			rowsUpserted,
			slugOutcomes,
			runDuration,
		)
	})
}

func WindowFetched(geo string) { windowsFetched.WithLabelValues(geo).Inc() }

func WindowRetried(reason string) { windowRetries.WithLabelValues(reason).Inc() }

func WindowSkipped(reason string) { windowsSkipped.WithLabelValues(reason).Inc() }

func CacheHit() { cacheHits.Inc() }

func RowsUpserted(kind string, n int) { rowsUpserted.WithLabelValues(kind).Add(float64(n)) }

func SlugCompleted(kind string) { slugOutcomes.WithLabelValues(kind, "completed").Inc() }

func SlugSkipped(kind string) { slugOutcomes.WithLabelValues(kind, "skipped").Inc() }

func ObserveRunDuration(kind string, seconds float64) {
	runDuration.WithLabelValues(kind).Observe(seconds)
}
