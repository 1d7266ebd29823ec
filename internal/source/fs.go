package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"scan-indexer/internal/config"
	"scan-indexer/internal/logging"
)

// fsSource reads a local disk or a mounted network share. Both use
// getdents-style enumeration through os.File.ReadDir, which reports entry
// types without a stat per entry.
type fsSource struct {
	server string
	kind   config.SourceKind
	retry  RetryConfig
}

func newLocal(cfg config.ServerConfig) *fsSource {
	return &fsSource{server: cfg.Name, kind: config.SourceLocal, retry: LocalRetryConfig()}
}

func newNetwork(cfg config.ServerConfig) *fsSource {
	return &fsSource{server: cfg.Name, kind: config.SourceNetwork, retry: NetworkRetryConfig()}
}

// NewFilesystem returns a filesystem Source with an explicit retry policy.
func NewFilesystem(server string, kind config.SourceKind, retry RetryConfig) Source {
	return &fsSource{server: server, kind: kind, retry: retry}
}

func (s *fsSource) Kind() config.SourceKind { return s.kind }

func (s *fsSource) Close() error { return nil }

// osPath maps a logical path to the platform form. "//host/share" becomes a
// UNC path on Windows and stays as-is elsewhere.
func osPath(p string) string {
	return filepath.FromSlash(p)
}

func (s *fsSource) ListEntries(ctx context.Context, dir string) ([]Entry, error) {
	return s.list(ctx, "list", dir, "")
}

func (s *fsSource) ListGlob(ctx context.Context, dir, pattern string) ([]Entry, error) {
	return s.list(ctx, "glob", dir, pattern)
}

func (s *fsSource) list(ctx context.Context, op, dir, pattern string) ([]Entry, error) {
	start := time.Now()
	entries, err := withRetry(ctx, s.server, op, dir, s.retry, func() ([]Entry, error) {
		return readDir(osPath(dir), pattern)
	})
	if o := observe(); o != nil {
		o.ObserveOperation(s.server, string(s.kind), op, time.Since(start).Seconds(), err)
	}
	if err == nil {
		return entries, nil
	}
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
		logging.Debug("%s skipping %s: %v", s.server, dir, err)
		return nil, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, fmt.Errorf("%s %s: %w: %w", s.server, dir, ErrListingFailed, err)
}

func readDir(dir, pattern string) ([]Entry, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	dirents, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		name := d.Name()
		if pattern != "" {
			if ok, _ := path.Match(pattern, name); !ok {
				continue
			}
		}
		// Type() comes from the dirent; symlinks are reported as
		// non-directories and never followed.
		out = append(out, Entry{Name: name, IsDir: d.Type().IsDir()})
	}
	return out, nil
}

func (s *fsSource) ReadHead(ctx context.Context, file string, n int) ([]string, error) {
	start := time.Now()
	lines, err := withRetry(ctx, s.server, "read", file, s.retry, func() ([]string, error) {
		f, err := os.Open(osPath(file))
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		return scanLines(bufio.NewScanner(f), n)
	})
	if o := observe(); o != nil {
		o.ObserveOperation(s.server, string(s.kind), "read", time.Since(start).Seconds(), err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", s.server, file, ErrReadFailed, err)
	}
	return lines, nil
}

func scanLines(sc *bufio.Scanner, n int) ([]string, error) {
	lines := make([]string, 0, n)
	for len(lines) < n && sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
