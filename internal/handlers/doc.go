// Package handlers provides the HTTP API of the indexer.
//
// It includes handlers for:
//   - Server listing
//   - Index status, run history and bootstrap/update triggers
//   - Cache, direct and combined search
//   - Health checks, version and metrics
//
// Handlers are built once by [New] and hold only immutable dependencies, so
// they are safe for concurrent use.
package handlers
