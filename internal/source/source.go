package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scan-indexer/internal/config"
	"scan-indexer/internal/ftppool"
)

var (
	// ErrSourceUnavailable means the whole server could not be reached.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrListingFailed means a single directory could not be listed.
	ErrListingFailed = errors.New("listing failed")
	// ErrPoolExhausted means no FTP session freed up in time.
	ErrPoolExhausted = ftppool.ErrPoolExhausted
	// ErrReadFailed means a file could not be read.
	ErrReadFailed = errors.New("read failed")
)

// Entry is one child of a listed directory.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
}

// Source lists directories and reads small files on one server.
// Implementations are safe for concurrent use.
type Source interface {
	// ListEntries returns the children of dir.
	ListEntries(ctx context.Context, dir string) ([]Entry, error)
	// ListGlob returns the children of dir whose name matches pattern
	// (path.Match syntax). FTP sources use server-side NLST globbing.
	ListGlob(ctx context.Context, dir, pattern string) ([]Entry, error)
	// ReadHead returns at most n lines from the start of a file.
	ReadHead(ctx context.Context, file string, n int) ([]string, error)
	// Kind reports the backend type.
	Kind() config.SourceKind
	Close() error
}

// Open creates the Source variant selected by cfg.Source.
func Open(cfg config.ServerConfig) (Source, error) {
	switch cfg.Source {
	case config.SourceLocal:
		return newLocal(cfg), nil
	case config.SourceNetwork:
		return newNetwork(cfg), nil
	case config.SourceFTP:
		pool := ftppool.New(cfg.Name, ftppool.DialFTP(cfg), ftppool.Config{
			Size:            cfg.PoolSize,
			CheckoutTimeout: cfg.OpDeadline,
		})
		return NewFTP(cfg, pool), nil
	default:
		return nil, fmt.Errorf("server %s: unknown source %q", cfg.Name, cfg.Source)
	}
}

// Join appends name to a logical directory path. Unlike path.Join it keeps a
// leading "//" so UNC-style roots survive.
func Join(dir, name string) string {
	name = strings.Trim(name, "/")
	if dir == "" || dir == "/" {
		return "/" + name
	}
	return strings.TrimRight(dir, "/") + "/" + name
}

// NormalizeRoot converts a configured root into logical form: forward
// slashes, no trailing slash.
func NormalizeRoot(root string) string {
	root = strings.ReplaceAll(strings.TrimSpace(root), `\`, "/")
	if len(root) > 1 {
		root = strings.TrimRight(root, "/")
	}
	if root == "" {
		return "/"
	}
	return root
}
