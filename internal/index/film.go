package index

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"scan-indexer/internal/config"
	"scan-indexer/internal/logging"
	"scan-indexer/internal/source"
	"scan-indexer/internal/traversal"
)

const (
	// StrategyFile is the metadata file read from every film folder.
	StrategyFile = "strategy.ini"
	// strategyHeadLines is how much of StrategyFile is read.
	strategyHeadLines = 6
	// strategyLine is the 1-based line where StrategyName normally sits.
	strategyLine = 3
	strategyKey  = "StrategyName"
)

// ParseStrategy extracts the StrategyName value from the head of a
// strategy.ini. Line 3 is checked first, then the lines before it, then the
// rest. Returns "" when no non-empty value is found.
func ParseStrategy(lines []string) string {
	var candidates []string
	if len(lines) >= strategyLine {
		candidates = append(candidates, lines[strategyLine-1])
		candidates = append(candidates, lines[:strategyLine-1]...)
		candidates = append(candidates, lines[strategyLine:]...)
	} else {
		candidates = lines
	}

	for _, ln := range candidates {
		if !strings.Contains(ln, strategyKey) {
			continue
		}
		_, v, ok := strings.Cut(ln, "=")
		if !ok {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), `'"`)
		if v = NormalizeSpaces(v); v != "" {
			return v
		}
	}
	return ""
}

// FilmBuilder is the traversal Visitor for film servers. The root is
// listed with a prefix glob, and every matching folder is a leaf whose
// strategy.ini is read.
type FilmBuilder struct {
	server string
	prefix string
	src    source.Source

	mu  sync.Mutex
	doc *FilmDocument

	newFolders       atomic.Int64
	metadataFailures atomic.Int64
}

// NewFilmBuilder creates a builder that merges into doc.
func NewFilmBuilder(cfg config.ServerConfig, src source.Source, doc *FilmDocument) *FilmBuilder {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = config.DefaultPrefix
	}
	return &FilmBuilder{server: cfg.Name, prefix: prefix, src: src, doc: doc}
}

// TraversalConfig returns film traversal settings: folders are one level
// below the root.
func (b *FilmBuilder) TraversalConfig(base traversal.Config) traversal.Config {
	base.MaxDepth = 1
	return base
}

// Glob narrows the root listing to folders starting with the prefix.
func (b *FilmBuilder) Glob(item traversal.Item) string {
	if item.Depth == 0 {
		return b.prefix + "*"
	}
	return ""
}

// Visit returns the prefixed folders under the root for Leaf to parse.
func (b *FilmBuilder) Visit(_ context.Context, item traversal.Item, entries []source.Entry) ([]string, bool) {
	if item.Depth != 0 {
		return nil, false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		// The glob may be ignored by the server, so filter again.
		if e.IsDir && strings.HasPrefix(e.Name, b.prefix) {
			names = append(names, e.Name)
		}
	}
	return names, false
}

// Leaf reads the folder's strategy.ini. A folder without usable metadata is
// still recorded, with an empty strategy, and is not marked visited so that
// the next update reads it again.
func (b *FilmBuilder) Leaf(ctx context.Context, item traversal.Item) bool {
	name := baseName(item.Path)

	strategy := ""
	lines, err := b.src.ReadHead(ctx, source.Join(item.Path, StrategyFile), strategyHeadLines)
	if err == nil {
		strategy = ParseStrategy(lines)
	}
	parsed := strategy != ""
	if !parsed {
		b.metadataFailures.Add(1)
		if err != nil {
			logging.Debug("[%s] %s unreadable: %v", b.server, item.Path, err)
		} else {
			logging.Debug("[%s] %s has no %s", b.server, item.Path, strategyKey)
		}
	}

	b.mu.Lock()
	prev, existed := b.doc.Folders[name]
	if !parsed && existed && prev.Strategy != "" {
		// Keep the last good value over a transient read failure.
		strategy = prev.Strategy
	}
	b.doc.Folders[name] = FolderEntry{Path: item.Path, Strategy: strategy}
	b.mu.Unlock()

	if !existed {
		b.newFolders.Add(1)
	}
	return parsed
}

// Finish rebuilds the derived fields. bootstrap selects which timestamp is set.
func (b *FilmBuilder) Finish(now time.Time, bootstrap bool) *FilmDocument {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.doc.RebuildByRecipe()
	if bootstrap {
		b.doc.GeneratedAt = timePtr(now)
		b.doc.UpdatedAt = nil
	} else {
		b.doc.UpdatedAt = timePtr(now)
	}
	return b.doc
}

// NewFolders returns how many folders were not in the document before.
func (b *FilmBuilder) NewFolders() int64 { return b.newFolders.Load() }

// MetadataFailures returns how many folders had no usable strategy.
func (b *FilmBuilder) MetadataFailures() int64 { return b.metadataFailures.Load() }
