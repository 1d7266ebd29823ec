package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_indexer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_indexer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scan_indexer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Index build metrics
var (
	IndexBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_indexer_index_builds_total",
			Help: "Total number of index builds",
		},
		[]string{"server", "mode", "status"},
	)

	IndexBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_indexer_index_build_duration_seconds",
			Help:    "Index build duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"role", "mode"},
	)

	IndexBuildInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scan_indexer_index_build_in_progress",
			Help: "Whether a build is running for the server (1 = running)",
		},
		[]string{"server"},
	)

	IndexLastBuildTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scan_indexer_index_last_build_timestamp_seconds",
			Help: "Unix timestamp of the last published build",
		},
		[]string{"server", "mode"},
	)

	IndexEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scan_indexer_index_entries",
			Help: "Number of entries in the published index",
		},
		[]string{"server", "kind"}, // "folders", "recipes", "lots", "films", "visited"
	)

	TraversalDirectories = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_indexer_traversal_directories_total",
			Help: "Directories handled by traversal",
		},
		[]string{"server", "outcome"}, // "listed", "skipped", "failed"
	)
)

// Source metrics
var (
	SourceOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_indexer_source_operation_duration_seconds",
			Help:    "Duration of source list, glob and read calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		},
		[]string{"server", "kind", "op"},
	)

	SourceOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_indexer_source_operation_errors_total",
			Help: "Failed source calls",
		},
		[]string{"server", "kind", "op"},
	)

	SourceRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_indexer_source_retries_total",
			Help: "Retried source calls by result",
		},
		[]string{"server", "op", "result"}, // "success", "failure"
	)

	FTPPoolSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scan_indexer_ftp_pool_sessions",
			Help: "FTP sessions by state",
		},
		[]string{"server", "state"}, // "in_use", "idle"
	)

	FTPPoolEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scan_indexer_ftp_pool_events",
			Help: "Cumulative FTP pool events since start",
		},
		[]string{"server", "event"}, // "dials", "dial_failures", "exhausted", "stale_dropped"
	)
)

// Search metrics
var (
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_indexer_search_requests_total",
			Help: "Total number of searches",
		},
		[]string{"mode", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_indexer_search_duration_seconds",
			Help:    "Search duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"mode"},
	)

	SearchHits = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_indexer_search_hits",
			Help:    "Number of hits returned per search",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"mode"},
	)

	SearchWarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_indexer_search_warnings_total",
			Help: "Warnings attached to search results",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_indexer_db_queries_total",
			Help: "Total number of run history queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_indexer_db_query_duration_seconds",
			Help:    "Run history query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scan_indexer_db_connections_open",
			Help: "Number of open run history connections",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scan_indexer_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
