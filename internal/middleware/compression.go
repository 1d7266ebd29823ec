package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the smallest body, in bytes, that is compressed.
	MinSize int
	// Types lists the media types eligible for compression.
	Types []string
}

// DefaultCompressionConfig compresses JSON and plain text over 1KB. Search
// results and run histories are the large responses.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Types:   []string{"application/json", "text/plain"},
	}
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

// gzipResponseWriter buffers up to MinSize bytes, then decides once whether
// the rest of the body is compressed.
type gzipResponseWriter struct {
	http.ResponseWriter
	config     CompressionConfig
	gz         *gzip.Writer
	buffer     []byte
	statusCode int
	decided    bool
}

func newGzipResponseWriter(w http.ResponseWriter, config CompressionConfig) *gzipResponseWriter {
	return &gzipResponseWriter{
		ResponseWriter: w,
		config:         config,
		statusCode:     http.StatusOK,
	}
}

func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if !g.decided {
		g.statusCode = statusCode
	}
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	if g.decided {
		if g.gz != nil {
			return g.gz.Write(data)
		}
		return g.ResponseWriter.Write(data)
	}

	g.buffer = append(g.buffer, data...)
	if len(g.buffer) >= g.config.MinSize {
		if err := g.decide(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (g *gzipResponseWriter) compressible() bool {
	ct := g.Header().Get("Content-Type")
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	for _, t := range g.config.Types {
		if mediaType == t {
			return true
		}
	}
	return false
}

// decide writes the header and flushes the buffer, compressed or not.
func (g *gzipResponseWriter) decide() error {
	g.decided = true
	buf := g.buffer
	g.buffer = nil

	if len(buf) >= g.config.MinSize && g.compressible() && g.Header().Get("Content-Encoding") == "" {
		g.Header().Del("Content-Length")
		g.Header().Set("Content-Encoding", "gzip")
		g.Header().Add("Vary", "Accept-Encoding")
		g.gz = gzipWriterPool.Get().(*gzip.Writer)
		g.gz.Reset(g.ResponseWriter)
		g.ResponseWriter.WriteHeader(g.statusCode)
		_, err := g.gz.Write(buf)
		return err
	}

	g.ResponseWriter.WriteHeader(g.statusCode)
	if len(buf) == 0 {
		return nil
	}
	_, err := g.ResponseWriter.Write(buf)
	return err
}

// Close finishes the body and returns the gzip writer to the pool.
func (g *gzipResponseWriter) Close() error {
	if !g.decided {
		if err := g.decide(); err != nil {
			return err
		}
	}
	if g.gz == nil {
		return nil
	}
	err := g.gz.Close()
	gzipWriterPool.Put(g.gz)
	g.gz = nil
	return err
}

func (g *gzipResponseWriter) Flush() {
	if !g.decided {
		_ = g.decide()
	}
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Compression returns a middleware that gzips eligible responses for
// clients that accept it.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
				next.ServeHTTP(w, r)
				return
			}

			gzw := newGzipResponseWriter(w, config)
			defer func() { _ = gzw.Close() }()
			next.ServeHTTP(gzw, r)
		})
	}
}
