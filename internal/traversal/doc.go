// Package traversal walks a source tree breadth-first with a bounded pool of
// workers.
//
// The Engine owns scheduling only. What a directory means is decided by a
// Visitor: it chooses which children to descend into, records whatever the
// index needs, and reports whether the directory is fully enumerated so the
// engine can add it to the Tracker.
//
// In incremental mode, directories already in the Tracker are skipped. The
// levels above them are always listed again, so new siblings still show up.
//
// A failed listing is logged and treated as a directory with no children.
// Only a failure to list the root aborts the run.
package traversal
