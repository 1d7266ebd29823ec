package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"scan-indexer/internal/config"
	"scan-indexer/internal/index"
	"scan-indexer/internal/logging"
	"scan-indexer/internal/metrics"
	"scan-indexer/internal/source"
	"scan-indexer/internal/traversal"
)

// SourceProvider hands out the Source of a server.
type SourceProvider interface {
	Get(cfg config.ServerConfig) (source.Source, error)
}

// Searcher is implemented by Engine; Run composes its two entry points.
type Searcher interface {
	SearchCache(ctx context.Context, f Filters) (Result, error)
	SearchDirect(ctx context.Context, f Filters) (Result, error)
}

// Options configures an Engine.
type Options struct {
	// Traversal returns the base traversal settings of direct walks.
	Traversal func(config.Role) traversal.Config
}

// Engine runs searches. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	servers   config.ServerList
	store     *index.Store
	sources   SourceProvider
	traversal func(config.Role) traversal.Config
	now       func() time.Time
}

// New creates an Engine.
func New(servers config.ServerList, store *index.Store, sources SourceProvider, opts Options) *Engine {
	tf := opts.Traversal
	if tf == nil {
		tf = index.DefaultTraversal
	}
	return &Engine{servers: servers, store: store, sources: sources, traversal: tf, now: time.Now}
}

// documents is the data one server contributes to a search.
type documents struct {
	film  *index.FilmDocument
	lots  *index.LotsDocument
	films *index.FilmsDocument
}

// loadFunc produces the documents of one server. A non-nil warning skips
// the server; a non-nil error aborts the search.
type loadFunc func(ctx context.Context, cfg config.ServerConfig) (documents, string, error)

// SearchCache matches against the published index.
func (e *Engine) SearchCache(ctx context.Context, f Filters) (Result, error) {
	return e.search(ctx, ModeCache, f, e.loadCached)
}

// SearchDirect walks the selected servers live and matches the fresh
// result. Nothing is persisted.
func (e *Engine) SearchDirect(ctx context.Context, f Filters) (Result, error) {
	return e.search(ctx, ModeDirect, f, e.walk)
}

func (e *Engine) search(ctx context.Context, mode string, f Filters, load loadFunc) (res Result, err error) {
	start := e.now()
	defer func() { observe(mode, start, res, err) }()

	f, err = f.normalize()
	if err != nil {
		return Result{}, err
	}

	m := newMatcher(f)
	res = Result{Mode: mode, Kind: f.resultKind(), Hits: []Hit{}, Warnings: m.warnings}

	var linker *Linker
	if f.LinkRecipe {
		linker = NewLinker(e.store, e.servers)
	}

	servers, unknown := e.selectServers(f)
	for _, name := range unknown {
		res.Warnings = append(res.Warnings, fmt.Sprintf("unknown server %q", name))
	}

	for _, cfg := range servers {
		// Film servers only answer film terms.
		if cfg.Role == config.RoleFilm && !m.film.active() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		docs, warning, err := load(ctx, cfg)
		if err != nil {
			return res, err
		}
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
			continue
		}

		switch cfg.Role {
		case config.RoleScan:
			res.Hits = append(res.Hits, matchScan(cfg.Name, m, docs, linker)...)
		case config.RoleFilm:
			res.Hits = append(res.Hits, matchRecipes(cfg.Name, m, docs.film)...)
		}
	}

	res.Count = len(res.Hits)
	res.GeneratedAt = e.now()
	logging.Info("[search-%s] kind=%s hits=%d warnings=%d", mode, res.Kind, res.Count, len(res.Warnings))
	return res, nil
}

// selectServers applies the server allow-list and role filter, keeping
// configuration order.
func (e *Engine) selectServers(f Filters) (config.ServerList, []string) {
	allowed := make(map[string]bool, len(f.Servers))
	var unknown []string
	for _, name := range f.Servers {
		if _, ok := e.servers.ByName(name); !ok {
			unknown = append(unknown, name)
			continue
		}
		allowed[name] = true
	}

	var out config.ServerList
	for _, cfg := range e.servers {
		if len(f.Servers) > 0 && !allowed[cfg.Name] {
			continue
		}
		if !f.wantsRole(cfg.Role) {
			continue
		}
		out = append(out, cfg)
	}
	return out, unknown
}

func (e *Engine) loadCached(_ context.Context, cfg config.ServerConfig) (documents, string, error) {
	var docs documents
	var err error

	switch cfg.Role {
	case config.RoleFilm:
		docs.film, err = e.store.LoadFilm(cfg.Name)
	case config.RoleScan:
		docs.films, err = e.store.LoadFilms(cfg.Name)
		if err == nil {
			docs.lots, err = e.store.LoadLots(cfg.Name)
			if errors.Is(err, index.ErrNotIndexed) {
				docs.lots, err = index.NewLotsDocument(cfg.Name), nil
			}
		}
	}

	switch {
	case errors.Is(err, index.ErrNotIndexed):
		return docs, fmt.Sprintf("%s: index not built", cfg.Name), nil
	case err != nil:
		return docs, fmt.Sprintf("%s: index unreadable: %v", cfg.Name, err), nil
	}
	if docs.films != nil && docs.films.Mode != index.FilmsModeMap {
		return docs, fmt.Sprintf("%s: films index has unsupported mode %q", cfg.Name, docs.films.Mode), nil
	}
	return docs, "", nil
}

func (e *Engine) walk(ctx context.Context, cfg config.ServerConfig) (documents, string, error) {
	src, err := e.sources.Get(cfg)
	if err != nil {
		return documents{}, fmt.Sprintf("%s: %v: %v", cfg.Name, source.ErrSourceUnavailable, err), nil
	}

	out, err := index.Build(ctx, index.Job{
		Server:    cfg,
		Source:    src,
		Mode:      traversal.ModeFull,
		Traversal: e.traversal(cfg.Role),
		Now:       e.now,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return documents{}, "", ctxErr
		}
		return documents{}, fmt.Sprintf("%s: %v", cfg.Name, err), nil
	}
	return documents{film: out.Film, lots: out.Lots, films: out.Films}, "", nil
}

// matchScan produces film-level hits from films_index and lot-level hits
// for indexed lots that have no leaves yet.
func matchScan(server string, m *matcher, docs documents, linker *Linker) []Hit {
	var hits []Hit

	lotPaths := make([]string, 0, len(docs.films.FilmsIndex))
	for lp := range docs.films.FilmsIndex {
		lotPaths = append(lotPaths, lp)
	}
	sort.Strings(lotPaths)

	for _, lotPath := range lotPaths {
		if !lotMatches(m, lotPath) {
			continue
		}
		leaves := append([]string(nil), docs.films.FilmsIndex[lotPath]...)
		sort.Strings(leaves)
		for _, leaf := range leaves {
			film := index.ExtractFilm(leaf)
			if !m.matchFilm(film, leaf) {
				continue
			}
			sp := index.ParseScanPath(leaf)
			h := Hit{
				Server: server,
				Role:   string(config.RoleScan),
				Kind:   KindScan,
				Level:  LevelFilm,
				Path:   leaf,
				Wafer:  sp.Wafer,
				Lot:    sp.Lot,
				Film:   film,
				Date:   sp.Date,
			}
			if linker != nil {
				linker.Link(&h)
			}
			hits = append(hits, h)
		}
	}

	if m.film.active() || docs.lots == nil {
		return hits
	}

	// Lots with no films_index entry only occur in indexes written by older
	// tools or edited by hand; ScanBuilder always records both together.
	var bare []string
	for _, paths := range docs.lots.LotsIndex {
		for _, lp := range paths {
			if len(docs.films.FilmsIndex[lp]) == 0 && lotMatches(m, lp) {
				bare = append(bare, lp)
			}
		}
	}
	sort.Strings(bare)
	for _, lp := range bare {
		_, wafer, lot := splitLot(lp)
		hits = append(hits, Hit{
			Server: server,
			Role:   string(config.RoleScan),
			Kind:   KindScan,
			Level:  LevelLot,
			Path:   lp,
			Wafer:  wafer,
			Lot:    lot,
		})
	}
	return hits
}

func lotMatches(m *matcher, lotPath string) bool {
	waferPath, wafer, lot := splitLot(lotPath)
	return m.matchWafer(wafer, waferPath) && m.matchLot(lot, lotPath)
}

// splitLot splits a lot folder path into its wafer folder path and the
// wafer and lot names. UNC prefixes are kept intact.
func splitLot(lotPath string) (waferPath, wafer, lot string) {
	p := strings.TrimRight(lotPath, "/")
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", "", p
	}
	waferPath, lot = p[:i], p[i+1:]
	wafer = waferPath[strings.LastIndex(waferPath, "/")+1:]
	return waferPath, wafer, lot
}

// matchRecipes produces folder-level hits for folders whose strategy or
// folder name matches the film terms.
func matchRecipes(server string, m *matcher, doc *index.FilmDocument) []Hit {
	names := make([]string, 0, len(doc.Folders))
	for name := range doc.Folders {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return doc.Folders[names[i]].Path < doc.Folders[names[j]].Path })

	var hits []Hit
	for _, name := range names {
		entry := doc.Folders[name]
		if !m.matchFilm(entry.Strategy, entry.Path) && !m.matchFilm(name, entry.Path) {
			continue
		}
		hits = append(hits, Hit{
			Server:     server,
			Role:       string(config.RoleFilm),
			Kind:       KindRecipe,
			Level:      LevelFolder,
			Path:       entry.Path,
			Film:       name,
			RecipeName: entry.Strategy,
		})
	}
	return hits
}

// Run performs a search in mode. ModeBoth searches the cache and falls
// back to a direct search when the cache has no hits.
func Run(ctx context.Context, s Searcher, f Filters, mode string) (Result, error) {
	switch mode {
	case ModeCache, "":
		return s.SearchCache(ctx, f)
	case ModeDirect:
		return s.SearchDirect(ctx, f)
	case ModeBoth:
		cached, err := s.SearchCache(ctx, f)
		if err != nil || cached.Count > 0 {
			return cached, err
		}
		direct, err := s.SearchDirect(ctx, f)
		if err != nil {
			return direct, err
		}
		direct.Warnings = mergeWarnings(cached.Warnings, direct.Warnings)
		return direct, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

func mergeWarnings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, w := range append(append([]string(nil), a...), b...) {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

func observe(mode string, start time.Time, res Result, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SearchRequestsTotal.WithLabelValues(mode, status).Inc()
	metrics.SearchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.SearchHits.WithLabelValues(mode).Observe(float64(res.Count))
		metrics.SearchWarningsTotal.Add(float64(len(res.Warnings)))
	}
}
