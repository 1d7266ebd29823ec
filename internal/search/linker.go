package search

import (
	"errors"
	"sort"

	"golang.org/x/text/cases"

	"scan-indexer/internal/config"
	"scan-indexer/internal/index"
	"scan-indexer/internal/logging"
)

// recipe is one by_recipe entry.
type recipe struct {
	name  string
	paths []string
}

// recipeIndex is the by_recipe map of one film server, keyed by the
// normalized and by the case-folded strategy name.
type recipeIndex struct {
	server string
	exact  map[string]recipe
	folded map[string]recipe
}

// Linker resolves film names to film server folders. It loads every film
// server's by_recipe once and is then read-only.
type Linker struct {
	indexes []recipeIndex
	folder  cases.Caser
}

// NewLinker loads the published film indexes of servers in order. Servers
// without an index are skipped.
func NewLinker(store *index.Store, servers config.ServerList) *Linker {
	l := &Linker{folder: cases.Fold()}
	for _, cfg := range servers.ByRole(config.RoleFilm) {
		doc, err := store.LoadFilm(cfg.Name)
		if err != nil {
			if !errors.Is(err, index.ErrNotIndexed) {
				logging.Warn("[%s] recipe index unreadable: %v", cfg.Name, err)
			}
			continue
		}
		l.add(cfg.Name, doc)
	}
	return l
}

func (l *Linker) add(server string, doc *index.FilmDocument) {
	ri := recipeIndex{
		server: server,
		exact:  make(map[string]recipe, len(doc.ByRecipe)),
		folded: make(map[string]recipe, len(doc.ByRecipe)),
	}
	for key, paths := range doc.ByRecipe {
		if key == "" {
			continue
		}
		norm := index.NormalizeSpaces(key)
		ri.exact[norm] = merge(ri.exact[norm], key, paths)
		f := l.folder.String(norm)
		ri.folded[f] = merge(ri.folded[f], key, paths)
	}
	l.indexes = append(l.indexes, ri)
}

// Link fills the recipe fields of h from its Film value.
func (l *Linker) Link(h *Hit) {
	if h.Film == "" {
		return
	}
	server, r, ok := l.lookup(h.Film)
	if !ok {
		h.RecipeLinked = false
		return
	}
	h.RecipeLinked = true
	h.RecipeName = r.name
	h.RecipePaths = r.paths
	h.RecipePrimary = r.paths[0]
	h.RecipeServer = server
}

// lookup tries an exact key on every server, then a case-folded key.
func (l *Linker) lookup(film string) (string, recipe, bool) {
	norm := index.NormalizeSpaces(film)
	for _, ri := range l.indexes {
		if r, ok := ri.exact[norm]; ok && len(r.paths) > 0 {
			return ri.server, r, true
		}
	}
	folded := l.folder.String(norm)
	for _, ri := range l.indexes {
		if r, ok := ri.folded[folded]; ok && len(r.paths) > 0 {
			return ri.server, r, true
		}
	}
	return "", recipe{}, false
}

// merge adds paths under key. Keys that normalize alike share one entry
// named after the smallest spelling; paths stay sorted and unique.
func merge(r recipe, key string, paths []string) recipe {
	if r.name == "" || key < r.name {
		r.name = key
	}
	all := append(append([]string(nil), r.paths...), paths...)
	sort.Strings(all)
	out := all[:0]
	for _, p := range all {
		if len(out) == 0 || p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	r.paths = out
	return r
}
