package handlers

import (
	"context"
	"time"

	"scan-indexer/internal/config"
	"scan-indexer/internal/database"
	"scan-indexer/internal/indexer"
	"scan-indexer/internal/search"
)

// IndexManager is the part of *indexer.Manager the API uses.
type IndexManager interface {
	Servers() config.ServerList
	BuildAll(ctx context.Context, names []string, mode string) ([]indexer.BuildResult, error)
	Trigger(names []string, mode string)
	Statuses(names []string) ([]indexer.Status, error)
	Building() []string
}

// RunHistory lists recorded runs. *database.Database implements it.
type RunHistory interface {
	RecentRuns(ctx context.Context, server string, limit int) ([]database.IndexRun, error)
}

type Handlers struct {
	manager  IndexManager
	searcher search.Searcher
	runs     RunHistory
	started  time.Time
}

// New creates the handlers. runs may be nil when run history is disabled.
func New(manager IndexManager, searcher search.Searcher, runs RunHistory) *Handlers {
	return &Handlers{
		manager:  manager,
		searcher: searcher,
		runs:     runs,
		started:  time.Now(),
	}
}
