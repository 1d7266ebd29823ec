package index

import (
	"context"
	"fmt"
	"time"

	"scan-indexer/internal/config"
	"scan-indexer/internal/source"
	"scan-indexer/internal/traversal"
	"scan-indexer/internal/workers"
)

// Job describes one walk of one server. Documents left nil start empty; an
// update passes the previously published documents so results are merged
// into them.
type Job struct {
	Server    config.ServerConfig
	Source    source.Source
	Mode      traversal.Mode
	Traversal traversal.Config

	Film    *FilmDocument
	Lots    *LotsDocument
	Films   *FilmsDocument
	Visited *VisitedSet

	OnProgress func(traversal.Stats)
	// Now stamps the documents; defaults to time.Now.
	Now func() time.Time
}

// Outcome is what a Job produced.
type Outcome struct {
	Film    *FilmDocument
	Lots    *LotsDocument
	Films   *FilmsDocument
	Visited *VisitedSet

	Traversal        traversal.Stats
	NewFolders       int64
	NewLots          int64
	NewFilms         int64
	MetadataFailures int64
}

// Build walks the server and merges what it finds into the job's documents.
// The outcome is returned even when err is non-nil so callers can decide
// whether a cancelled or partial walk is worth keeping.
func Build(ctx context.Context, job Job) (Outcome, error) {
	cfg := job.Server
	now := time.Now
	if job.Now != nil {
		now = job.Now
	}
	visited := job.Visited
	if visited == nil {
		visited = NewVisitedSet()
	}
	root := source.NormalizeRoot(cfg.Root)

	tcfg := job.Traversal
	tcfg.Mode = job.Mode
	if cfg.Source == config.SourceFTP {
		tcfg.Workers = workers.Cap(tcfg.Workers, cfg.PoolSize)
	}

	out := Outcome{Visited: visited}

	switch cfg.Role {
	case config.RoleFilm:
		doc := job.Film
		if doc == nil {
			doc = NewFilmDocument(cfg.Name, root)
		}
		doc.RecipesRoot = root

		b := NewFilmBuilder(cfg, job.Source, doc)
		eng := traversal.New(cfg.Name, job.Source, b, visited, b.TraversalConfig(tcfg))
		eng.OnProgress(job.OnProgress)
		stats, err := eng.Run(ctx, root)

		out.Film = b.Finish(now(), job.Mode == traversal.ModeFull)
		out.Traversal = stats
		out.NewFolders = b.NewFolders()
		out.MetadataFailures = b.MetadataFailures()
		return out, err

	case config.RoleScan:
		lots, films := job.Lots, job.Films
		if lots == nil {
			lots = NewLotsDocument(cfg.Name)
		}
		if films == nil {
			films = NewFilmsDocument(cfg.Name)
		}

		// No tracker: film folders must be re-listed to find new dates.
		b := NewScanBuilder(cfg, lots, films, visited)
		eng := traversal.New(cfg.Name, job.Source, b, nil, b.TraversalConfig(tcfg, cfg.MaxDepth))
		eng.OnProgress(job.OnProgress)
		stats, err := eng.Run(ctx, root)

		out.Lots, out.Films = b.Documents()
		out.Traversal = stats
		out.NewLots = b.NewLots()
		out.NewFilms = b.NewFilms()
		return out, err

	default:
		return out, fmt.Errorf("server %s: unknown role %q", cfg.Name, cfg.Role)
	}
}

// DefaultTraversal returns the base traversal settings for a role.
func DefaultTraversal(role config.Role) traversal.Config {
	if role == config.RoleFilm {
		return traversal.DefaultFilmConfig()
	}
	return traversal.DefaultScanConfig()
}
