package source

import (
	"errors"
	"sync"

	"scan-indexer/internal/config"
	"scan-indexer/internal/ftppool"
	"scan-indexer/internal/logging"
)

// OpenFunc creates the Source for a server.
type OpenFunc func(config.ServerConfig) (Source, error)

// Registry hands out one shared Source per server, opened on first use.
type Registry struct {
	open OpenFunc

	mu      sync.Mutex
	sources map[string]Source
}

// NewRegistry creates a registry. A nil open uses Open.
func NewRegistry(open OpenFunc) *Registry {
	if open == nil {
		open = Open
	}
	return &Registry{open: open, sources: make(map[string]Source)}
}

// Get returns the Source for cfg, opening it if needed.
func (r *Registry) Get(cfg config.ServerConfig) (Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sources[cfg.Name]; ok {
		return s, nil
	}
	s, err := r.open(cfg)
	if err != nil {
		return nil, err
	}
	logging.Debug("Opened %s source for server %s", s.Kind(), cfg.Name)
	r.sources[cfg.Name] = s
	return s, nil
}

// PoolStats returns FTP pool stats keyed by server name.
func (r *Registry) PoolStats() map[string]ftppool.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]ftppool.Stats)
	for name, s := range r.sources {
		if f, ok := s.(*FTPSource); ok {
			out[name] = f.Pool().Stats()
		}
	}
	return out
}

// Close closes every opened source.
func (r *Registry) Close() error {
	r.mu.Lock()
	sources := r.sources
	r.sources = make(map[string]Source)
	r.mu.Unlock()

	var errs []error
	for _, s := range sources {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
