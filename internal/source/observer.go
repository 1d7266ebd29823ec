package source

// Observer records source operation metrics. The metrics package provides the
// implementation so that source does not import it.
type Observer interface {
	// ObserveOperation records duration and outcome of a list or read.
	// op is "list", "glob" or "read".
	ObserveOperation(server, kind, op string, durationSeconds float64, err error)
	// ObserveRetry records a retried operation and whether the retry succeeded.
	ObserveRetry(server, op string, success bool)
}

// defaultObserver is set once at startup. Nil means metrics are skipped.
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
