// Package middleware provides HTTP middleware for the indexer API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics keyed by route template
//   - gzip compression of large JSON responses
//   - CORS headers for browser clients
//   - Removal of the reverse proxy path prefix
package middleware
