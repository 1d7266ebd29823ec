/*
Package workers sizes the worker pools used by directory traversal.

Traversal is I/O bound: workers spend nearly all their time waiting on
directory listings over FTP or a network mount, so pool sizes are fixed
defaults rather than CPU counts. Operators can override them per tree kind:

	SCAN_WORKERS=8     # scan trees, default 16
	FILM_WORKERS=12    # film trees, default 32

Count is kept for fan-out that should scale with the container's CPU quota
(GOMAXPROCS), such as running several servers' builds at once.

	n := workers.ForIO(4) // 2 per CPU, at most 4
*/
package workers
