package metrics

// InitializeMetrics pre-populates the label combinations known at startup so
// every metric is exported from the first scrape.
func InitializeMetrics(servers []ServerLabel) {
	for _, s := range servers {
		IndexBuildInProgress.WithLabelValues(s.Name)
		for _, mode := range []string{"bootstrap", "update"} {
			for _, status := range []string{"success", "partial", "failed", "cancelled"} {
				IndexBuildsTotal.WithLabelValues(s.Name, mode, status)
			}
			IndexBuildDuration.WithLabelValues(s.Role, mode)
		}
		for _, outcome := range []string{"listed", "skipped", "failed"} {
			TraversalDirectories.WithLabelValues(s.Name, outcome)
		}
		for _, op := range []string{"list", "glob", "read"} {
			SourceOperationDuration.WithLabelValues(s.Name, s.Kind, op)
			SourceOperationErrors.WithLabelValues(s.Name, s.Kind, op)
		}
	}

	for _, mode := range []string{"cache", "direct"} {
		SearchRequestsTotal.WithLabelValues(mode, "success")
		SearchRequestsTotal.WithLabelValues(mode, "error")
		SearchDuration.WithLabelValues(mode)
		SearchHits.WithLabelValues(mode)
	}

	for _, op := range []string{"record_run", "recent_runs"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}

// ServerLabel carries the label values of one configured server.
type ServerLabel struct {
	Name string
	Role string
	Kind string
}
