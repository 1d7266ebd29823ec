package traversal

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"scan-indexer/internal/logging"
	"scan-indexer/internal/source"
	"scan-indexer/internal/workers"
)

// Mode selects full or incremental traversal.
type Mode int

const (
	// ModeFull lists every directory within depth.
	ModeFull Mode = iota
	// ModeIncremental skips directories already in the Tracker.
	ModeIncremental
)

func (m Mode) String() string {
	if m == ModeIncremental {
		return "incremental"
	}
	return "full"
}

// Item is one directory to process.
type Item struct {
	Path  string
	Depth int
}

// Visitor interprets directories for one kind of index.
type Visitor interface {
	// Glob returns a name pattern for listing item, or "" for a plain listing.
	Glob(item Item) string
	// Visit receives the listing of item and returns the child directory
	// names to descend into. complete reports that item is fully recorded
	// and may be skipped by later incremental runs.
	Visit(ctx context.Context, item Item, entries []source.Entry) (descend []string, complete bool)
	// Leaf handles an item at the depth limit, which is not listed. It
	// returns true when the item is fully recorded.
	Leaf(ctx context.Context, item Item) bool
}

// Tracker is the set of fully enumerated directories.
type Tracker interface {
	Contains(path string) bool
	Add(path string)
}

// Config configures an Engine run.
type Config struct {
	// Workers is the number of concurrent listings
	Workers int
	// MaxDepth is the depth at which items go to Visitor.Leaf instead of
	// being listed; the root is depth 0
	MaxDepth int
	// ProgressEvery logs progress after this many processed directories
	ProgressEvery int
	Mode          Mode
	// ExhaustedBackoff is the pause before retrying a listing that hit
	// an exhausted connection pool
	ExhaustedBackoff time.Duration
}

// DefaultScanConfig returns defaults for scan trees (SCAN_WORKERS overrides).
func DefaultScanConfig() Config {
	return Config{
		Workers:          workers.Scan(),
		MaxDepth:         15,
		ProgressEvery:    1000,
		ExhaustedBackoff: 500 * time.Millisecond,
	}
}

// DefaultFilmConfig returns defaults for film trees (FILM_WORKERS overrides).
func DefaultFilmConfig() Config {
	return Config{
		Workers:          workers.Film(),
		MaxDepth:         1,
		ProgressEvery:    500,
		ExhaustedBackoff: 500 * time.Millisecond,
	}
}

// Stats summarizes a run.
type Stats struct {
	Listed   int64         `json:"listed"`
	Skipped  int64         `json:"skipped"`
	Failed   int64         `json:"failed"`
	Retried  int64         `json:"retried"`
	Leaves   int64         `json:"leaves"`
	Pending  int           `json:"pending"`
	Duration time.Duration `json:"duration"`
}

// Engine runs one traversal. It is not reusable.
type Engine struct {
	name    string
	src     source.Source
	visitor Visitor
	tracker Tracker
	config  Config

	onProgress func(Stats)

	queue *queue
	start time.Time

	listed    atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	leaves    atomic.Int64
	processed atomic.Int64
}

// New creates an engine. tracker may be nil for throwaway walks.
func New(name string, src source.Source, visitor Visitor, tracker Tracker, config Config) *Engine {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultScanConfig().MaxDepth
	}
	return &Engine{
		name:    name,
		src:     src,
		visitor: visitor,
		tracker: tracker,
		config:  config,
		queue:   newQueue(),
	}
}

// OnProgress registers a callback invoked every ProgressEvery directories.
func (e *Engine) OnProgress(fn func(Stats)) {
	e.onProgress = fn
}

// Run walks the tree from root until it is exhausted or ctx is cancelled.
// On cancellation no new directories are dispatched, in-flight listings
// finish and their results are still delivered to the Visitor.
func (e *Engine) Run(ctx context.Context, root string) (Stats, error) {
	e.start = time.Now()
	logging.Info("[%s] %s traversal from %s with %d workers (max depth %d)",
		e.name, e.config.Mode, root, e.config.Workers, e.config.MaxDepth)

	// Listings use a context that survives cancellation so in-flight work
	// completes; ctx only gates dispatch.
	ioCtx := context.WithoutCancel(ctx)

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.queue.close()
		case <-stop:
		}
	}()

	var rootErr atomic.Pointer[error]
	e.queue.push(Item{Path: root, Depth: 0})

	var g errgroup.Group
	for i := 0; i < e.config.Workers; i++ {
		g.Go(func() error {
			for {
				item, ok := e.queue.pop()
				if !ok {
					return nil
				}
				if ctx.Err() != nil {
					e.queue.done()
					e.queue.close()
					return nil
				}
				if err := e.process(ioCtx, item); err != nil && item.Depth == 0 {
					rootErr.Store(&err)
				}
				e.queue.done()
			}
		})
	}
	_ = g.Wait()
	close(stop)

	stats := e.Stats()
	logging.Info("[%s] traversal complete: listed=%d skipped=%d failed=%d leaves=%d in %v",
		e.name, stats.Listed, stats.Skipped, stats.Failed, stats.Leaves, stats.Duration.Round(time.Millisecond))

	if p := rootErr.Load(); p != nil {
		return stats, fmt.Errorf("%s: list root %s: %w: %w", e.name, root, source.ErrSourceUnavailable, *p)
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// Stats returns the counters so far.
func (e *Engine) Stats() Stats {
	var d time.Duration
	if !e.start.IsZero() {
		d = time.Since(e.start)
	}
	return Stats{
		Listed:   e.listed.Load(),
		Skipped:  e.skipped.Load(),
		Failed:   e.failed.Load(),
		Retried:  e.retried.Load(),
		Leaves:   e.leaves.Load(),
		Pending:  e.queue.pending(),
		Duration: d,
	}
}

// process handles one item. The returned error is the listing failure, if
// any; it has already been logged and counted.
func (e *Engine) process(ctx context.Context, item Item) error {
	defer e.tick()

	if e.config.Mode == ModeIncremental && e.tracker != nil && item.Depth > 0 && e.tracker.Contains(item.Path) {
		e.skipped.Add(1)
		return nil
	}

	if item.Depth >= e.config.MaxDepth {
		e.leaves.Add(1)
		if e.visitor.Leaf(ctx, item) && e.tracker != nil {
			e.tracker.Add(item.Path)
		}
		return nil
	}

	entries, err := e.list(ctx, item)
	if err != nil {
		e.failed.Add(1)
		logging.Warn("[%s] listing %s failed, treating as empty: %v", e.name, item.Path, err)
		return err
	}
	e.listed.Add(1)

	descend, complete := e.visitor.Visit(ctx, item, entries)
	if complete && e.tracker != nil {
		e.tracker.Add(item.Path)
	}

	children := make([]Item, 0, len(descend))
	for _, name := range descend {
		children = append(children, Item{Path: source.Join(item.Path, name), Depth: item.Depth + 1})
	}
	e.queue.push(children...)
	return nil
}

// list performs the listing, retrying once when the FTP pool is exhausted.
func (e *Engine) list(ctx context.Context, item Item) ([]source.Entry, error) {
	pattern := e.visitor.Glob(item)
	do := func() ([]source.Entry, error) {
		if pattern != "" {
			return e.src.ListGlob(ctx, item.Path, pattern)
		}
		return e.src.ListEntries(ctx, item.Path)
	}

	entries, err := do()
	if err == nil || !errors.Is(err, source.ErrPoolExhausted) {
		return entries, err
	}

	e.retried.Add(1)
	logging.Debug("[%s] pool exhausted listing %s, retrying once", e.name, item.Path)
	time.Sleep(e.config.ExhaustedBackoff)
	entries, err = do()
	if err != nil && errors.Is(err, source.ErrPoolExhausted) {
		return nil, fmt.Errorf("%w: %w", source.ErrListingFailed, err)
	}
	return entries, err
}

func (e *Engine) tick() {
	n := e.processed.Add(1)
	if e.config.ProgressEvery <= 0 || n%int64(e.config.ProgressEvery) != 0 {
		return
	}
	stats := e.Stats()
	logging.Info("[%s] progress: %d directories processed, %d queued, %d failed (%v)",
		e.name, n, stats.Pending, stats.Failed, stats.Duration.Round(time.Second))
	if e.onProgress != nil {
		e.onProgress(stats)
	}
}
