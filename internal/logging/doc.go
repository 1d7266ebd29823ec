// Package logging provides the leveled logger used across the indexer.
//
// Levels, from most to least verbose:
//   - DEBUG: per-directory listing detail, pool activity
//   - INFO: run start/finish, progress batches
//   - WARN: listing failures, unavailable servers
//   - ERROR: failed runs and persistence errors
//
// The level comes from LOG_LEVEL (or DEBUG=true). EnableFile tees output to a
// dated log file so long index runs leave a record on disk.
package logging
