package metrics

import "scan-indexer/internal/source"

// sourceObserver implements source.Observer using the Prometheus metrics
// declared in this package.
type sourceObserver struct{}

// NewSourceObserver creates an observer that records source call metrics.
func NewSourceObserver() source.Observer {
	return &sourceObserver{}
}

func (o *sourceObserver) ObserveOperation(server, kind, op string, durationSeconds float64, err error) {
	SourceOperationDuration.WithLabelValues(server, kind, op).Observe(durationSeconds)
	if err != nil {
		SourceOperationErrors.WithLabelValues(server, kind, op).Inc()
	}
}

func (o *sourceObserver) ObserveRetry(server, op string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	SourceRetries.WithLabelValues(server, op, result).Inc()
}
