package index

import (
	"sort"
	"sync"
	"time"
)

// VisitedSet holds the directories already indexed: parsed recipe folders
// on film servers, which incremental runs skip, and lot paths on scan
// servers. It is safe for concurrent use by traversal workers.
type VisitedSet struct {
	mu    sync.RWMutex
	paths map[string]struct{}
	added int
}

// NewVisitedSet returns a set seeded with paths.
func NewVisitedSet(paths ...string) *VisitedSet {
	v := &VisitedSet{paths: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		v.paths[p] = struct{}{}
	}
	return v
}

// Contains reports whether p was fully enumerated before.
func (v *VisitedSet) Contains(p string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.paths[p]
	return ok
}

// Add records p.
func (v *VisitedSet) Add(p string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.paths[p]; !ok {
		v.paths[p] = struct{}{}
		v.added++
	}
}

// Len returns the number of paths.
func (v *VisitedSet) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.paths)
}

// Added returns how many paths were added since creation.
func (v *VisitedSet) Added() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.added
}

// Sorted returns the paths in order.
func (v *VisitedSet) Sorted() []string {
	v.mu.RLock()
	out := make([]string, 0, len(v.paths))
	for p := range v.paths {
		out = append(out, p)
	}
	v.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Document converts the set for persistence, carrying timestamps from prev.
func (v *VisitedSet) Document(server string, prev *VisitedDocument) *VisitedDocument {
	doc := &VisitedDocument{Server: server, Paths: v.Sorted()}
	if prev != nil {
		doc.LastBootstrap = prev.LastBootstrap
		doc.LastUpdate = prev.LastUpdate
	}
	return doc
}

// VisitedFromDocument loads a set from its persisted form.
func VisitedFromDocument(doc *VisitedDocument) *VisitedSet {
	if doc == nil {
		return NewVisitedSet()
	}
	return NewVisitedSet(doc.Paths...)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
