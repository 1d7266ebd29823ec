// Package sourcetest provides an in-memory source.Source for tests.
package sourcetest

import (
	"bufio"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"scan-indexer/internal/config"
	"scan-indexer/internal/source"
)

// Tree is an in-memory directory tree. Paths are absolute forward-slash paths.
type Tree struct {
	mu       sync.Mutex
	children map[string]map[string]bool
	files    map[string]string
	failures map[string]error
	lists    map[string]int
	closed   bool
}

// NewTree returns an empty tree containing only "/".
func NewTree() *Tree {
	return &Tree{
		children: map[string]map[string]bool{"/": {}},
		files:    make(map[string]string),
		failures: make(map[string]error),
		lists:    make(map[string]int),
	}
}

// AddDir creates dir and any missing parents.
func (t *Tree) AddDir(dirs ...string) *Tree {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range dirs {
		t.addDir(path.Clean(d))
	}
	return t
}

func (t *Tree) addDir(p string) {
	if _, ok := t.children[p]; !ok {
		t.children[p] = make(map[string]bool)
	}
	if p == "/" {
		return
	}
	parent := path.Dir(p)
	t.addDir(parent)
	t.children[parent][path.Base(p)] = true
}

// AddFile creates a file with content, adding parent directories.
func (t *Tree) AddFile(p, content string) *Tree {
	t.mu.Lock()
	defer t.mu.Unlock()
	p = path.Clean(p)
	parent := path.Dir(p)
	t.addDir(parent)
	t.children[parent][path.Base(p)] = false
	t.files[p] = content
	return t
}

// RemoveDir deletes dir and everything below it.
func (t *Tree) RemoveDir(dir string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dir = path.Clean(dir)
	for p := range t.children {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			delete(t.children, p)
		}
	}
	if parent, ok := t.children[path.Dir(dir)]; ok {
		delete(parent, path.Base(dir))
	}
}

// Fail makes every listing of dir return err.
func (t *Tree) Fail(dir string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[path.Clean(dir)] = err
}

// ListCount reports how many times dir was listed.
func (t *Tree) ListCount(dir string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lists[path.Clean(dir)]
}

// ResetCounts clears listing counters.
func (t *Tree) ResetCounts() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lists = make(map[string]int)
}

func (t *Tree) ListEntries(ctx context.Context, dir string) ([]source.Entry, error) {
	return t.ListGlob(ctx, dir, "")
}

func (t *Tree) ListGlob(ctx context.Context, dir, pattern string) ([]source.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	dir = path.Clean(dir)
	t.lists[dir]++
	if err := t.failures[dir]; err != nil {
		return nil, err
	}

	kids := t.children[dir]
	out := make([]source.Entry, 0, len(kids))
	for name, isDir := range kids {
		if pattern != "" {
			if ok, _ := path.Match(pattern, name); !ok {
				continue
			}
		}
		out = append(out, source.Entry{Name: name, IsDir: isDir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *Tree) ReadHead(_ context.Context, file string, n int) ([]string, error) {
	t.mu.Lock()
	content, ok := t.files[path.Clean(file)]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w: no such file", file, source.ErrReadFailed)
	}

	var lines []string
	sc := bufio.NewScanner(strings.NewReader(content))
	for len(lines) < n && sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, nil
}

func (t *Tree) Kind() config.SourceKind { return config.SourceLocal }

func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
