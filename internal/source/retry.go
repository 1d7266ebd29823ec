package source

import (
	"context"
	"errors"
	"syscall"
	"time"

	"scan-indexer/internal/logging"
)

// RetryConfig configures the single in-call retry of a filesystem operation.
type RetryConfig struct {
	MaxRetries int
	Backoff    time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
}

// LocalRetryConfig retries only stale NFS handles.
func LocalRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 1,
		Backoff:    50 * time.Millisecond,
		Retryable:  isStaleError,
	}
}

// NetworkRetryConfig also retries the transient errors SMB/NFS mounts raise
// when the remote end hiccups.
func NetworkRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 1,
		Backoff:    200 * time.Millisecond,
		Retryable:  isTransientError,
	}
}

// isStaleError checks for ESTALE (stale file handle), errno 116 on Linux.
func isStaleError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}
	return false
}

func isTransientError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.ESTALE, syscall.EIO, syscall.ETIMEDOUT, syscall.EAGAIN,
		syscall.EHOSTDOWN, syscall.EHOSTUNREACH, syscall.ECONNRESET:
		return true
	}
	return false
}

// withRetry runs fn, repeating it at most MaxRetries times for retryable errors.
func withRetry[T any](ctx context.Context, server, op, target string, rc RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	for attempt := 0; attempt <= rc.MaxRetries; attempt++ {
		out, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s %s succeeded on retry %d for %s", server, op, attempt, target)
				if o := observe(); o != nil {
					o.ObserveRetry(server, op, true)
				}
			}
			return out, nil
		}
		lastErr = err

		if rc.Retryable == nil || !rc.Retryable(err) {
			var zero T
			return zero, err
		}
		if attempt < rc.MaxRetries {
			logging.Debug("%s %s transient error for %s, retrying in %v: %v", server, op, target, rc.Backoff, err)
			select {
			case <-time.After(rc.Backoff):
			case <-ctx.Done():
				var zero T
				return zero, ctx.Err()
			}
		}
	}

	if o := observe(); o != nil {
		o.ObserveRetry(server, op, false)
	}
	var zero T
	return zero, lastErr
}
