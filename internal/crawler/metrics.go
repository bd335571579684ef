package crawler

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal     *prometheus.CounterVec
	crawlListingsTotal  *prometheus.CounterVec
	crawlRetriesTotal   prometheus.Counter
	revealTimeoutsTotal prometheus.Counter
	crawlDuration       prometheus.Histogram
	exportsTotal        *prometheus.CounterVec

	metricsOnce sync.Once
)

// InitMetrics registers the Prometheus collectors. Safe to call more than
// once.
func InitMetrics() {
	metricsOnce.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_pages_total",
				Help: "Search-results pages fetched, labeled by result.",
			},
			[]string{"result"},
		)

		crawlListingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_listings_total",
				Help: "Listings processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawl_fetch_retries_total",
				Help: "Fetch attempts beyond the first, across all pages.",
			},
		)

		revealTimeoutsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawl_reveal_timeouts_total",
				Help: "Phone reveal interactions that timed out.",
			},
		)

		crawlDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawl_run_duration_seconds",
				Help:    "Wall-clock duration of completed crawl runs.",
				Buckets: []float64{30, 60, 120, 300, 600, 1800, 3600},
			},
		)

		exportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "export_files_total",
				Help: "Backup export attempts, labeled by format and result.",
			},
			[]string{"format", "result"},
		)
	})
}

// MetricsHandler exposes the default registry for scraping.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records the outcome of a search-results page fetch.
func ObservePage(result string) {
	if crawlPagesTotal != nil {
		crawlPagesTotal.WithLabelValues(result).Inc()
	}
}

// ObserveListing records a processed listing outcome (inserted, updated,
// skipped).
func ObserveListing(outcome string) {
	if crawlListingsTotal != nil {
		crawlListingsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveRetry counts one extra fetch attempt.
func ObserveRetry() {
	if crawlRetriesTotal != nil {
		crawlRetriesTotal.Inc()
	}
}

// ObserveRevealTimeout counts a phone reveal that never populated.
func ObserveRevealTimeout() {
	if revealTimeoutsTotal != nil {
		revealTimeoutsTotal.Inc()
	}
}

// ObserveCrawlDuration records the elapsed time of a finished run.
func ObserveCrawlDuration(d time.Duration) {
	if crawlDuration != nil {
		crawlDuration.Observe(d.Seconds())
	}
}

// ObserveExport records a per-format export attempt.
func ObserveExport(format, result string) {
	if exportsTotal != nil {
		exportsTotal.WithLabelValues(format, result).Inc()
	}
}
