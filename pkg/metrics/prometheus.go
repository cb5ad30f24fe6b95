// Package metrics provides Prometheus metrics for the matchup-edge service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the matchup pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Dataset Metrics - nflverse schedule and play-by-play retrieval
	datasetFetches       *prometheus.CounterVec
	datasetFetchDuration *prometheus.HistogramVec
	datasetRowsLoaded    *prometheus.GaugeVec

	// Provider Metrics - external win-rate adapters
	providerRequests *prometheus.CounterVec
	providerSkips    *prometheus.CounterVec

	// Refresh Metrics - full pipeline runs
	refreshRuns     *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	boardBuilds     prometheus.Counter

	// Upload Metrics - user-supplied metric files
	uploadsProcessed *prometheus.CounterVec

	// Cache Metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "matchup",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Dataset Metrics - retrieval health for the nflverse sources
	m.datasetFetches = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "dataset_fetches_total",
			Help:      "Total number of dataset fetch attempts by source and outcome",
		},
		[]string{"source", "status"},
	)

	m.datasetFetchDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "dataset_fetch_duration_seconds",
			Help:      "Dataset fetch duration in seconds by source",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	m.datasetRowsLoaded = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "dataset_rows_loaded",
			Help:      "Row count of the most recently loaded dataset by source",
		},
		[]string{"source"},
	)

	// Provider Metrics - adapter request outcomes
	m.providerRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "provider_requests_total",
			Help:      "Total number of provider adapter requests by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	m.providerSkips = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "provider_skips_total",
			Help:      "Total number of providers skipped during enrichment by reason",
		},
		[]string{"provider", "reason"},
	)

	// Refresh Metrics - end-to-end pipeline runs
	m.refreshRuns = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "refresh_runs_total",
			Help:      "Total number of refresh runs by trigger and outcome",
		},
		[]string{"trigger", "status"},
	)

	m.refreshDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_duration_seconds",
		Help:      "Full refresh duration in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	m.boardBuilds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "board_builds_total",
		Help:      "Total number of pick boards computed",
	})

	// Upload Metrics - user-supplied metric files
	m.uploadsProcessed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "uploads_processed_total",
			Help:      "Total number of uploaded metric files by format and outcome",
		},
		[]string{"format", "status"},
	)

	// Cache Metrics
	m.cacheHits = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits by layer",
		},
		[]string{"layer"},
	)

	m.cacheMisses = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses by layer",
		},
		[]string{"layer"},
	)

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordDatasetFetch records a dataset fetch attempt by source and outcome.
func RecordDatasetFetch(source, status string) {
	globalManager.datasetFetches.WithLabelValues(source, status).Inc()
}

// RecordDatasetFetchDuration records how long a dataset fetch took.
func RecordDatasetFetchDuration(source string, seconds float64) {
	globalManager.datasetFetchDuration.WithLabelValues(source).Observe(seconds)
}

// UpdateDatasetRowsLoaded sets the row count of the most recent load for a source.
func UpdateDatasetRowsLoaded(source string, rows int) {
	globalManager.datasetRowsLoaded.WithLabelValues(source).Set(float64(rows))
}

// RecordProviderRequest records a provider adapter request outcome.
func RecordProviderRequest(provider, status string) {
	globalManager.providerRequests.WithLabelValues(provider, status).Inc()
}

// RecordProviderSkip records a provider skipped during enrichment.
func RecordProviderSkip(provider, reason string) {
	globalManager.providerSkips.WithLabelValues(provider, reason).Inc()
}

// RecordRefreshRun records a refresh run by trigger ("cron" or "manual") and outcome.
func RecordRefreshRun(trigger, status string) {
	globalManager.refreshRuns.WithLabelValues(trigger, status).Inc()
}

// RecordRefreshDuration records the duration of a full refresh in seconds.
func RecordRefreshDuration(seconds float64) {
	globalManager.refreshDuration.Observe(seconds)
}

// RecordBoardBuild increments the board build counter.
func RecordBoardBuild() {
	globalManager.boardBuilds.Inc()
}

// RecordUpload records a processed upload by format and outcome.
func RecordUpload(format, status string) {
	globalManager.uploadsProcessed.WithLabelValues(format, status).Inc()
}

// RecordCacheHit increments the cache hit counter for a layer.
func RecordCacheHit(layer string) {
	globalManager.cacheHits.WithLabelValues(layer).Inc()
}

// RecordCacheMiss increments the cache miss counter for a layer.
func RecordCacheMiss(layer string) {
	globalManager.cacheMisses.WithLabelValues(layer).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
