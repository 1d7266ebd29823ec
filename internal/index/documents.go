package index

import (
	"sort"
	"time"
)

// FolderEntry is one film folder and the strategy name read from it.
type FolderEntry struct {
	Path     string `json:"path"`
	Strategy string `json:"strategy"`
}

// FilmStats summarizes a FilmDocument.
type FilmStats struct {
	Folders int `json:"folders"`
	Recipes int `json:"recipes"`
}

// FilmDocument is the index of one film server.
type FilmDocument struct {
	Server      string                 `json:"server"`
	RecipesRoot string                 `json:"recipes_root"`
	GeneratedAt *time.Time             `json:"generated_at"`
	UpdatedAt   *time.Time             `json:"updated_at"`
	Folders     map[string]FolderEntry `json:"folders"`
	// ByRecipe is derived from Folders by RebuildByRecipe and never edited
	// directly. Folders without a strategy are listed under "".
	ByRecipe map[string][]string `json:"by_recipe"`
	Stats    FilmStats           `json:"stats"`
}

// NewFilmDocument returns an empty document for server.
func NewFilmDocument(server, root string) *FilmDocument {
	return &FilmDocument{
		Server:      server,
		RecipesRoot: root,
		Folders:     make(map[string]FolderEntry),
		ByRecipe:    make(map[string][]string),
	}
}

// RebuildByRecipe recomputes ByRecipe and Stats from Folders.
func (d *FilmDocument) RebuildByRecipe() {
	byRecipe := make(map[string][]string)
	for _, f := range d.Folders {
		byRecipe[f.Strategy] = append(byRecipe[f.Strategy], f.Path)
	}
	for k := range byRecipe {
		byRecipe[k] = sortedUnique(byRecipe[k])
	}
	d.ByRecipe = byRecipe

	recipes := len(byRecipe)
	if _, ok := byRecipe[""]; ok {
		recipes--
	}
	d.Stats = FilmStats{Folders: len(d.Folders), Recipes: recipes}
}

// LotsDocument maps lot ids to the lot folders carrying them. The same lot
// id can appear under several wafer folders.
type LotsDocument struct {
	Server    string              `json:"server"`
	LotsIndex map[string][]string `json:"lots_index"`
}

// NewLotsDocument returns an empty document for server.
func NewLotsDocument(server string) *LotsDocument {
	return &LotsDocument{Server: server, LotsIndex: make(map[string][]string)}
}

// FilmsModeMap is the only films_index layout this package writes.
const FilmsModeMap = "map"

// FilmsDocument maps lot folder paths to the film leaf paths beneath them.
type FilmsDocument struct {
	Server     string              `json:"server"`
	Mode       string              `json:"mode"`
	FilmsIndex map[string][]string `json:"films_index"`
}

// NewFilmsDocument returns an empty document for server.
func NewFilmsDocument(server string) *FilmsDocument {
	return &FilmsDocument{Server: server, Mode: FilmsModeMap, FilmsIndex: make(map[string][]string)}
}

// LeafCount returns the total number of leaf paths.
func (d *FilmsDocument) LeafCount() int {
	n := 0
	for _, v := range d.FilmsIndex {
		n += len(v)
	}
	return n
}

// VisitedDocument is the persisted form of a VisitedSet.
type VisitedDocument struct {
	Server        string     `json:"server"`
	LastBootstrap *time.Time `json:"last_bootstrap"`
	LastUpdate    *time.Time `json:"last_update"`
	Paths         []string   `json:"visited_paths"`
}

// sortedUnique sorts paths and drops duplicates in place.
func sortedUnique(paths []string) []string {
	if len(paths) < 2 {
		return paths
	}
	sort.Strings(paths)
	out := paths[:1]
	for _, p := range paths[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

// insertSorted adds p to the sorted slice if missing.
func insertSorted(paths []string, p string) ([]string, bool) {
	i := sort.SearchStrings(paths, p)
	if i < len(paths) && paths[i] == p {
		return paths, false
	}
	paths = append(paths, "")
	copy(paths[i+1:], paths[i:])
	paths[i] = p
	return paths, true
}
