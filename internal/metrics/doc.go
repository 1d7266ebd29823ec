// Package metrics provides Prometheus instrumentation for the scan indexer.
//
// All metrics are prefixed with "scan_indexer_" and registered with the
// default registry through promauto.
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal: Counter of requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of requests being served
//
// ## Index Build Metrics
//   - IndexBuildsTotal: Counter of builds by server, mode, and status
//   - IndexBuildDuration: Histogram of build duration by role and mode
//   - IndexBuildInProgress: Gauge, 1 while a server is building
//   - IndexLastBuildTimestamp: Gauge of the last published build per mode
//   - IndexEntries: Gauge of published entries by kind (folders, recipes,
//     lots, films, visited)
//   - TraversalDirectories: Counter of directories by outcome (listed,
//     skipped, failed)
//
// ## Source Metrics
//   - SourceOperationDuration: Histogram of list/glob/read calls
//   - SourceOperationErrors: Counter of failed calls
//   - SourceRetries: Counter of retried calls by result
//   - FTPPoolSessions: Gauge of sessions by state (in_use, idle)
//   - FTPPoolEvents: Gauge of cumulative pool events (dials, dial_failures,
//     exhausted, stale_dropped)
//
// ## Search Metrics
//   - SearchRequestsTotal: Counter of searches by mode and status
//   - SearchDuration: Histogram of search duration by mode
//   - SearchHits: Histogram of hits returned by mode
//   - SearchWarningsTotal: Counter of warnings returned
//
// ## Database Metrics
//   - DBQueryTotal, DBQueryDuration, DBConnectionsOpen for the run history
//
// # Usage
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// Pool and database gauges are refreshed by a [Collector]:
//
//	collector := metrics.NewCollector(registry, db, 15*time.Second)
//	collector.Start()
//	defer collector.Stop()
//
// Example queries:
//
//	sum(rate(scan_indexer_index_builds_total{status="failed"}[1h])) by (server)
//	histogram_quantile(0.95, sum(rate(scan_indexer_source_operation_duration_seconds_bucket{kind="ftp"}[5m])) by (le, server))
package metrics
