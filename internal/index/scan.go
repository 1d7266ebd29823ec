package index

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"scan-indexer/internal/config"
	"scan-indexer/internal/source"
	"scan-indexer/internal/traversal"
)

// DefaultMinLeafDepth is the shallowest depth (root = 0) at which a folder
// without subfolders counts as a dateless film leaf: class/wafer/lot/film.
const DefaultMinLeafDepth = 4

// ScanBuilder is the traversal Visitor for scan servers.
//
// A folder with date-named children is a film folder: each date child is a
// leaf, its parent is the lot and the lot's parent is the wafer. A folder
// with no subfolders at or below MinLeafDepth is a dateless leaf.
//
// Scan folders gain new dates over time, so nothing is ever reported
// complete to the traversal: every update re-lists film folders. The lot
// path of each recorded leaf is added to the visited set instead.
type ScanBuilder struct {
	server       string
	minLeafDepth int
	visited      *VisitedSet

	mu    sync.Mutex
	lots  *LotsDocument
	films *FilmsDocument

	newLots  atomic.Int64
	newFilms atomic.Int64
}

// NewScanBuilder creates a builder that merges into lots and films and
// records lot paths in visited, which may be nil.
func NewScanBuilder(cfg config.ServerConfig, lots *LotsDocument, films *FilmsDocument, visited *VisitedSet) *ScanBuilder {
	minDepth := DefaultMinLeafDepth
	if v, err := strconv.Atoi(cfg.Meta["min_leaf_depth"]); err == nil && v > 0 {
		minDepth = v
	}
	return &ScanBuilder{server: cfg.Name, minLeafDepth: minDepth, visited: visited, lots: lots, films: films}
}

// TraversalConfig applies the server's depth limit.
func (b *ScanBuilder) TraversalConfig(base traversal.Config, maxDepth int) traversal.Config {
	if maxDepth > 0 {
		base.MaxDepth = maxDepth
	}
	return base
}

// Glob returns "": scan folders are listed in full.
func (b *ScanBuilder) Glob(traversal.Item) string { return "" }

// Visit records the leaves of a film folder and returns the non-date
// subfolders to descend into. It never reports a folder complete.
func (b *ScanBuilder) Visit(_ context.Context, item traversal.Item, entries []source.Entry) ([]string, bool) {
	var dates, dirs []string
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		if IsDateName(e.Name) {
			dates = append(dates, e.Name)
		} else {
			dirs = append(dirs, e.Name)
		}
	}

	if len(dates) > 0 && item.Depth >= 2 {
		leaves := make([]string, len(dates))
		for i, d := range dates {
			leaves[i] = source.Join(item.Path, d)
		}
		b.record(item.Path, leaves)
		return dirs, false
	}

	if len(dirs) == 0 && item.Depth >= b.minLeafDepth {
		b.record(item.Path, []string{item.Path})
		return nil, false
	}
	return dirs, false
}

// Leaf is a no-op: folders past the server's max depth are ignored.
func (b *ScanBuilder) Leaf(context.Context, traversal.Item) bool { return false }

// record merges leaves found under filmDir. The lot is filmDir's parent.
func (b *ScanBuilder) record(filmDir string, leaves []string) {
	lotPath := parentDir(filmDir)
	lot := baseName(lotPath)
	if lot == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var added bool
	b.lots.LotsIndex[lot], added = insertSorted(b.lots.LotsIndex[lot], lotPath)
	if added {
		b.newLots.Add(1)
	}
	existing := b.films.FilmsIndex[lotPath]
	for _, leaf := range leaves {
		existing, added = insertSorted(existing, leaf)
		if added {
			b.newFilms.Add(1)
		}
	}
	b.films.FilmsIndex[lotPath] = existing

	if b.visited != nil {
		b.visited.Add(lotPath)
	}
}

// Documents returns the merged documents.
func (b *ScanBuilder) Documents() (*LotsDocument, *FilmsDocument) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lots, b.films
}

// NewLots returns how many lot paths were added.
func (b *ScanBuilder) NewLots() int64 { return b.newLots.Load() }

// NewFilms returns how many leaf paths were added.
func (b *ScanBuilder) NewFilms() int64 { return b.newFilms.Load() }
