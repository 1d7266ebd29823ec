package workers

import (
	"os"
	"runtime"
	"strconv"
)

const (
	// DefaultScan is the traversal pool size for scan trees.
	DefaultScan = 16
	// DefaultFilm is the traversal pool size for film trees.
	DefaultFilm = 32

	envScan = "SCAN_WORKERS"
	envFilm = "FILM_WORKERS"
)

// FromEnv returns the positive integer in the named environment variable,
// or def when it is unset or invalid.
func FromEnv(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// Scan returns the worker count for scan tree traversal.
func Scan() int {
	return FromEnv(envScan, DefaultScan)
}

// Film returns the worker count for film tree traversal.
func Film() int {
	return FromEnv(envFilm, DefaultFilm)
}

// Count returns multiplier workers per available CPU, capped at limit
// (0 = no cap). It respects container CPU limits via GOMAXPROCS.
func Count(multiplier float64, limit int) int {
	available := runtime.GOMAXPROCS(0)

	n := int(float64(available) * multiplier)
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForIO returns worker count for I/O-bound fan-out (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// Cap limits n to limit when limit is positive. Used to keep FTP traversal
// from queueing far more workers than the session pool can serve.
func Cap(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	if n < 1 {
		return 1
	}
	return n
}
