package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"scan-indexer/internal/config"
	"scan-indexer/internal/database"
	"scan-indexer/internal/index"
	"scan-indexer/internal/logging"
	"scan-indexer/internal/metrics"
	"scan-indexer/internal/source"
	"scan-indexer/internal/traversal"
	"scan-indexer/internal/workers"
)

// Build modes.
const (
	ModeBootstrap = "bootstrap"
	ModeUpdate    = "update"
)

var (
	// ErrUnknownServer is returned for a server name not in the server list.
	ErrUnknownServer = errors.New("unknown server")
	// ErrBuildInProgress is returned when the server is already building.
	ErrBuildInProgress = errors.New("build already in progress")
)

// RunRecorder stores finished runs. *database.Database implements it.
type RunRecorder interface {
	RecordRun(ctx context.Context, run database.IndexRun) error
}

// SourceProvider hands out the Source of a server. *source.Registry
// implements it.
type SourceProvider interface {
	Get(cfg config.ServerConfig) (source.Source, error)
}

// BuildResult summarizes one run.
type BuildResult struct {
	RunID            string      `json:"runId"`
	Server           string      `json:"server"`
	Role             config.Role `json:"role"`
	Mode             string      `json:"mode"`
	Status           string      `json:"status"`
	Folders          int         `json:"folders,omitempty"`
	Lots             int         `json:"lots,omitempty"`
	Films            int         `json:"films,omitempty"`
	NewFolders       int64       `json:"newFolders"`
	NewLots          int64       `json:"newLots"`
	NewFilms         int64       `json:"newFilms"`
	ListingFailures  int64       `json:"listingFailures"`
	MetadataFailures int64       `json:"metadataFailures"`
	DurationMs       int64       `json:"durationMs"`
	Error            string      `json:"error,omitempty"`
}

// Progress is the live state of a running build.
type Progress struct {
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"startedAt"`
	Listed    int64     `json:"listed"`
	Skipped   int64     `json:"skipped"`
	Failed    int64     `json:"failed"`
	Pending   int       `json:"pending"`
}

// Status describes the published index of one server.
type Status struct {
	Server         string      `json:"server"`
	Role           config.Role `json:"role"`
	Source         string      `json:"source"`
	Indexed        bool        `json:"indexed"`
	LastBootstrap  *time.Time  `json:"lastBootstrap"`
	LastUpdate     *time.Time  `json:"lastUpdate"`
	IndexedFolders int         `json:"indexedFolders,omitempty"`
	IndexedRecipes int         `json:"indexedRecipes,omitempty"`
	IndexedLots    int         `json:"indexedLots,omitempty"`
	IndexedFilms   int         `json:"indexedFilms,omitempty"`
	VisitedPaths   int         `json:"visitedPaths"`
	Building       bool        `json:"building"`
	Progress       *Progress   `json:"progress,omitempty"`
}

// Options configures a Manager.
type Options struct {
	// Recorder stores run history; nil disables it.
	Recorder RunRecorder
	// Traversal returns the base traversal settings per role. Defaults to
	// index.DefaultTraversal.
	Traversal func(config.Role) traversal.Config
	// ProgressEvery overrides the traversal progress interval when positive.
	ProgressEvery int
}

// Manager runs builds for the configured servers.
type Manager struct {
	servers   config.ServerList
	store     *index.Store
	sources   SourceProvider
	recorder  RunRecorder
	traversal func(config.Role) traversal.Config
	progEvery int
	now       func() time.Time

	mu       sync.Mutex
	building map[string]*Progress

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Manager.
func New(servers config.ServerList, store *index.Store, sources SourceProvider, opts Options) *Manager {
	tf := opts.Traversal
	if tf == nil {
		tf = index.DefaultTraversal
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		servers:   servers,
		store:     store,
		sources:   sources,
		recorder:  opts.Recorder,
		traversal: tf,
		progEvery: opts.ProgressEvery,
		now:       time.Now,
		building:  make(map[string]*Progress),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Servers returns the configured servers.
func (m *Manager) Servers() config.ServerList {
	return m.servers
}

// Store returns the index store.
func (m *Manager) Store() *index.Store {
	return m.store
}

// Bootstrap rebuilds the index of server from scratch.
func (m *Manager) Bootstrap(ctx context.Context, server string) (BuildResult, error) {
	cfg, ok := m.servers.ByName(server)
	if !ok {
		return BuildResult{}, fmt.Errorf("%w: %s", ErrUnknownServer, server)
	}
	if !m.tryStartBuild(cfg.Name, ModeBootstrap) {
		return BuildResult{}, fmt.Errorf("%s: %w", cfg.Name, ErrBuildInProgress)
	}
	defer m.finishBuild(cfg.Name)
	return m.run(ctx, cfg, ModeBootstrap)
}

// Update walks server incrementally and merges new results into the
// published index. Without visited data it runs a bootstrap.
func (m *Manager) Update(ctx context.Context, server string) (BuildResult, error) {
	cfg, ok := m.servers.ByName(server)
	if !ok {
		return BuildResult{}, fmt.Errorf("%w: %s", ErrUnknownServer, server)
	}
	if !m.tryStartBuild(cfg.Name, ModeUpdate) {
		return BuildResult{}, fmt.Errorf("%s: %w", cfg.Name, ErrBuildInProgress)
	}
	defer m.finishBuild(cfg.Name)

	if _, err := m.store.LoadVisited(cfg.Name); errors.Is(err, index.ErrNotIndexed) {
		logging.Info("[%s] no visited data, running bootstrap instead of update", cfg.Name)
		m.setProgressMode(cfg.Name, ModeBootstrap)
		return m.run(ctx, cfg, ModeBootstrap)
	}
	return m.run(ctx, cfg, ModeUpdate)
}

// BuildAll runs mode for the named servers, all servers when names is
// empty, a few at a time. Results are in the order of names. Per-server
// failures are reported in the results and joined into the error.
func (m *Manager) BuildAll(ctx context.Context, names []string, mode string) ([]BuildResult, error) {
	if mode != ModeBootstrap && mode != ModeUpdate {
		return nil, fmt.Errorf("unknown build mode %q", mode)
	}
	if len(names) == 0 {
		names = m.servers.Names()
	}

	results := make([]BuildResult, len(names))
	errs := make([]error, len(names))

	var g errgroup.Group
	g.SetLimit(workers.ForIO(4))
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			var res BuildResult
			var err error
			if mode == ModeBootstrap {
				res, err = m.Bootstrap(ctx, name)
			} else {
				res, err = m.Update(ctx, name)
			}
			if res.Server == "" {
				res.Server = name
				res.Mode = mode
				res.Status = database.StatusFailed
			}
			if err != nil {
				res.Error = err.Error()
			}
			results[i], errs[i] = res, err
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// Trigger runs BuildAll in the background under the Manager's own context,
// so the build outlives the request that started it.
func (m *Manager) Trigger(names []string, mode string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.BuildAll(m.ctx, names, mode); err != nil {
			logging.Warn("Triggered %s finished with errors: %v", mode, err)
		}
	}()
}

// StartPeriodicUpdate runs an update of every server on each tick until
// Stop is called. A non-positive interval disables it.
func (m *Manager) StartPeriodicUpdate(interval time.Duration) {
	if interval <= 0 {
		return
	}
	logging.Info("Periodic update every %v", interval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logging.Debug("Periodic update triggered")
				if _, err := m.BuildAll(m.ctx, nil, ModeUpdate); err != nil {
					logging.Warn("periodic update finished with errors: %v", err)
				}
			case <-m.ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels background builds and waits for them to publish.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Building returns the names of servers with a build in progress.
func (m *Manager) Building() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, cfg := range m.servers {
		if _, ok := m.building[cfg.Name]; ok {
			out = append(out, cfg.Name)
		}
	}
	return out
}

// Status reports the published index of server.
func (m *Manager) Status(server string) (Status, error) {
	cfg, ok := m.servers.ByName(server)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownServer, server)
	}

	st := Status{Server: cfg.Name, Role: cfg.Role, Source: string(cfg.Source)}

	m.mu.Lock()
	if p, ok := m.building[cfg.Name]; ok {
		st.Building = true
		cp := *p
		st.Progress = &cp
	}
	m.mu.Unlock()

	visited, err := m.store.LoadVisited(cfg.Name)
	switch {
	case err == nil:
		st.Indexed = true
		st.LastBootstrap = visited.LastBootstrap
		st.LastUpdate = visited.LastUpdate
		st.VisitedPaths = len(visited.Paths)
	case !errors.Is(err, index.ErrNotIndexed):
		return st, err
	}

	switch cfg.Role {
	case config.RoleFilm:
		doc, err := m.store.LoadFilm(cfg.Name)
		if errors.Is(err, index.ErrNotIndexed) {
			return st, nil
		}
		if err != nil {
			return st, err
		}
		st.Indexed = true
		st.IndexedFolders = len(doc.Folders)
		st.IndexedRecipes = doc.Stats.Recipes
	case config.RoleScan:
		lots, err := m.store.LoadLots(cfg.Name)
		if errors.Is(err, index.ErrNotIndexed) {
			return st, nil
		}
		if err != nil {
			return st, err
		}
		films, err := m.store.LoadFilms(cfg.Name)
		if err != nil && !errors.Is(err, index.ErrNotIndexed) {
			return st, err
		}
		st.Indexed = true
		st.IndexedLots = len(lots.LotsIndex)
		if films != nil {
			st.IndexedFilms = films.LeafCount()
		}
	}
	return st, nil
}

// Statuses returns the status of the named servers, or all of them.
func (m *Manager) Statuses(names []string) ([]Status, error) {
	if len(names) == 0 {
		names = m.servers.Names()
	}
	out := make([]Status, 0, len(names))
	for _, name := range names {
		st, err := m.Status(name)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// run performs one build. The caller holds the build slot.
func (m *Manager) run(ctx context.Context, cfg config.ServerConfig, mode string) (BuildResult, error) {
	started := m.now()
	res := BuildResult{RunID: database.NewRunID(), Server: cfg.Name, Role: cfg.Role, Mode: mode}
	logging.Info("[%s] %s started (run %s)", cfg.Name, mode, res.RunID)

	metrics.IndexBuildInProgress.WithLabelValues(cfg.Name).Set(1)
	defer metrics.IndexBuildInProgress.WithLabelValues(cfg.Name).Set(0)

	err := m.build(ctx, cfg, mode, &res)

	res.DurationMs = m.now().Sub(started).Milliseconds()
	res.Status = runStatus(res, err)
	if err != nil {
		res.Error = err.Error()
	}

	metrics.IndexBuildsTotal.WithLabelValues(cfg.Name, mode, res.Status).Inc()
	metrics.IndexBuildDuration.WithLabelValues(string(cfg.Role), mode).Observe(float64(res.DurationMs) / 1000)
	if res.Status != database.StatusFailed {
		metrics.IndexLastBuildTimestamp.WithLabelValues(cfg.Name, mode).Set(float64(m.now().Unix()))
	}

	switch res.Status {
	case database.StatusFailed:
		logging.Error("[%s] %s failed after %dms: %v", cfg.Name, mode, res.DurationMs, err)
	case database.StatusCancelled:
		logging.Warn("[%s] %s cancelled after %dms, partial results published", cfg.Name, mode, res.DurationMs)
	default:
		logging.Info("[%s] %s %s in %dms: new folders=%d lots=%d films=%d, listing failures=%d",
			cfg.Name, mode, res.Status, res.DurationMs, res.NewFolders, res.NewLots, res.NewFilms, res.ListingFailures)
	}

	m.record(cfg, res, started)
	return res, err
}

// build walks the server and publishes the result into res.
func (m *Manager) build(ctx context.Context, cfg config.ServerConfig, mode string, res *BuildResult) error {
	src, err := m.sources.Get(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", cfg.Name, source.ErrSourceUnavailable, err)
	}

	tcfg := m.traversal(cfg.Role)
	if m.progEvery > 0 {
		tcfg.ProgressEvery = m.progEvery
	}
	job := index.Job{
		Server:     cfg,
		Source:     src,
		Mode:       traversal.ModeFull,
		Traversal:  tcfg,
		OnProgress: func(s traversal.Stats) { m.updateProgress(cfg.Name, s) },
		Now:        m.now,
	}

	var prevVisited *index.VisitedDocument
	if mode == ModeUpdate {
		job.Mode = traversal.ModeIncremental
		if prevVisited, err = m.store.LoadVisited(cfg.Name); err != nil {
			return err
		}
		job.Visited = index.VisitedFromDocument(prevVisited)
		if err := m.loadPublished(cfg, &job); err != nil {
			return err
		}
	}

	out, walkErr := index.Build(ctx, job)

	res.ListingFailures = out.Traversal.Failed
	res.MetadataFailures = out.MetadataFailures
	res.NewFolders = out.NewFolders
	res.NewLots = out.NewLots
	res.NewFilms = out.NewFilms

	metrics.TraversalDirectories.WithLabelValues(cfg.Name, "listed").Add(float64(out.Traversal.Listed))
	metrics.TraversalDirectories.WithLabelValues(cfg.Name, "skipped").Add(float64(out.Traversal.Skipped))
	metrics.TraversalDirectories.WithLabelValues(cfg.Name, "failed").Add(float64(out.Traversal.Failed))

	// Root unreachable, or cancelled before anything was listed: keep
	// whatever was published before.
	if walkErr != nil && (!isCancel(walkErr) || out.Traversal.Listed == 0) {
		return walkErr
	}

	if err := m.publish(cfg, mode, out, prevVisited, res); err != nil {
		return err
	}
	return walkErr
}

// loadPublished seeds job with the current documents. Missing documents
// start empty.
func (m *Manager) loadPublished(cfg config.ServerConfig, job *index.Job) error {
	switch cfg.Role {
	case config.RoleFilm:
		doc, err := m.store.LoadFilm(cfg.Name)
		if err != nil && !errors.Is(err, index.ErrNotIndexed) {
			return err
		}
		job.Film = doc
	case config.RoleScan:
		lots, err := m.store.LoadLots(cfg.Name)
		if err != nil && !errors.Is(err, index.ErrNotIndexed) {
			return err
		}
		films, err := m.store.LoadFilms(cfg.Name)
		if err != nil && !errors.Is(err, index.ErrNotIndexed) {
			return err
		}
		job.Lots, job.Films = lots, films
	}
	return nil
}

// publish writes the documents, visited set last so it never covers more
// than the data files do.
func (m *Manager) publish(cfg config.ServerConfig, mode string, out index.Outcome, prev *index.VisitedDocument, res *BuildResult) error {
	now := m.now()

	switch cfg.Role {
	case config.RoleFilm:
		if err := m.store.SaveFilm(out.Film); err != nil {
			return err
		}
		res.Folders = len(out.Film.Folders)
		metrics.IndexEntries.WithLabelValues(cfg.Name, "folders").Set(float64(res.Folders))
		metrics.IndexEntries.WithLabelValues(cfg.Name, "recipes").Set(float64(out.Film.Stats.Recipes))
	case config.RoleScan:
		if err := m.store.SaveLots(out.Lots); err != nil {
			return err
		}
		if err := m.store.SaveFilms(out.Films); err != nil {
			return err
		}
		res.Lots = len(out.Lots.LotsIndex)
		res.Films = out.Films.LeafCount()
		metrics.IndexEntries.WithLabelValues(cfg.Name, "lots").Set(float64(res.Lots))
		metrics.IndexEntries.WithLabelValues(cfg.Name, "films").Set(float64(res.Films))
	}

	vdoc := out.Visited.Document(cfg.Name, prev)
	if mode == ModeBootstrap {
		vdoc.LastBootstrap = &now
		vdoc.LastUpdate = nil
	} else {
		vdoc.LastUpdate = &now
	}
	if err := m.store.SaveVisited(vdoc); err != nil {
		return err
	}
	metrics.IndexEntries.WithLabelValues(cfg.Name, "visited").Set(float64(len(vdoc.Paths)))
	return nil
}

func (m *Manager) record(cfg config.ServerConfig, res BuildResult, started time.Time) {
	if m.recorder == nil {
		return
	}
	entries, leaves := res.Folders, 0
	newEntries, newLeaves := res.NewFolders, int64(0)
	if cfg.Role == config.RoleScan {
		entries, leaves = res.Lots, res.Films
		newEntries, newLeaves = res.NewLots, res.NewFilms
	}
	run := database.IndexRun{
		ID:               res.RunID,
		Server:           cfg.Name,
		Role:             string(cfg.Role),
		Mode:             res.Mode,
		Status:           res.Status,
		StartedAt:        started,
		FinishedAt:       started.Add(time.Duration(res.DurationMs) * time.Millisecond),
		DurationMs:       res.DurationMs,
		Entries:          entries,
		Leaves:           leaves,
		NewEntries:       newEntries,
		NewLeaves:        newLeaves,
		ListingFailures:  res.ListingFailures,
		MetadataFailures: res.MetadataFailures,
		Error:            res.Error,
	}
	// The request context may already be cancelled; the record must still land.
	if err := m.recorder.RecordRun(context.Background(), run); err != nil {
		logging.Warn("[%s] failed to record run %s: %v", cfg.Name, res.RunID, err)
	}
}

func runStatus(res BuildResult, err error) string {
	switch {
	case err == nil && res.ListingFailures == 0:
		return database.StatusSuccess
	case err == nil:
		return database.StatusPartial
	case isCancel(err):
		return database.StatusCancelled
	default:
		return database.StatusFailed
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// tryStartBuild claims the build slot of server.
func (m *Manager) tryStartBuild(server, mode string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.building[server]; ok {
		return false
	}
	m.building[server] = &Progress{Mode: mode, StartedAt: m.now()}
	return true
}

// finishBuild releases the build slot of server.
func (m *Manager) finishBuild(server string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.building, server)
}

func (m *Manager) setProgressMode(server, mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.building[server]; ok {
		p.Mode = mode
	}
}

func (m *Manager) updateProgress(server string, s traversal.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.building[server]; ok {
		p.Listed = s.Listed
		p.Skipped = s.Skipped
		p.Failed = s.Failed
		p.Pending = s.Pending
	}
}
