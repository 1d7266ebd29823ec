package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"scan-indexer/internal/logging"
)

// responseWriter captures the status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	SkipPaths       []string
	LogHealthChecks bool
}

// DefaultLoggingConfig logs everything except probe traffic.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{"/metrics"},
		LogHealthChecks: false,
	}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// sanitizeLogField removes control characters that could forge log lines
// or inject terminal escapes.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r == '\x00', r == '\x1b':
			continue
		case r < 0x20 && r != '\t':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Logger returns HTTP logging middleware using W3C Extended Log Format.
// Lines go through the leveled logger at INFO.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)
			logging.Info("%s", formatW3C(time.Now().UTC(), r, wrapped, time.Since(start)))
		})
	}
}

// formatW3C renders one access line:
// date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken sc(Content-Encoding) cs(User-Agent)
func formatW3C(now time.Time, r *http.Request, rw *responseWriter, d time.Duration) string {
	return fmt.Sprintf("%s %s %s %s %s %s %d %d %d %s %s",
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		dash(sanitizeLogField(getClientIP(r))),
		sanitizeLogField(r.Method),
		sanitizeLogField(r.URL.Path),
		dash(sanitizeLogField(r.URL.RawQuery)),
		rw.statusCode,
		rw.bytesWritten,
		d.Milliseconds(),
		dash(rw.Header().Get("Content-Encoding")),
		dash(escapeW3CField(sanitizeLogField(r.Header.Get("User-Agent")))),
	)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, skipPath := range config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return !config.LogHealthChecks && healthCheckPaths[path]
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// escapeW3CField quotes values containing spaces or quotes.
func escapeW3CField(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		s = strings.ReplaceAll(s, "\"", "\"\"")
		return "\"" + s + "\""
	}
	return s
}
