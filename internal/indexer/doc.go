// Package indexer runs and schedules index builds.
//
// A Manager owns every configured server and allows at most one build per
// server at a time. Two build modes exist:
//   - Bootstrap: full walk; the published documents are replaced
//   - Update: walk that skips parsed recipe folders on film servers and
//     merges additively into the published documents
//
// An update of a server that was never bootstrapped runs a bootstrap. A walk
// whose root could not be listed publishes nothing, so a good index is never
// replaced by an empty one. A cancelled walk still publishes what it found.
//
// Every run is recorded in the run history when one is configured, and the
// Manager can re-run updates on a fixed interval.
package indexer
