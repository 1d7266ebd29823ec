package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotIndexed is returned when a server has no persisted index yet.
var ErrNotIndexed = errors.New("index not built")

// Store reads and writes index documents under one output directory:
//
//	{dir}/recipes/{server}_recipes_index.json
//	{dir}/required/{server}_lots_index.json
//	{dir}/required/{server}_films_index.json
//	{dir}/required/{server}_visited.json
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) FilmPath(server string) string {
	return filepath.Join(s.dir, "recipes", server+"_recipes_index.json")
}

func (s *Store) LotsPath(server string) string {
	return filepath.Join(s.dir, "required", server+"_lots_index.json")
}

func (s *Store) FilmsPath(server string) string {
	return filepath.Join(s.dir, "required", server+"_films_index.json")
}

func (s *Store) VisitedPath(server string) string {
	return filepath.Join(s.dir, "required", server+"_visited.json")
}

// LoadFilm reads a film index. Missing files yield ErrNotIndexed.
func (s *Store) LoadFilm(server string) (*FilmDocument, error) {
	doc := NewFilmDocument(server, "")
	if err := readJSON(s.FilmPath(server), doc); err != nil {
		return nil, err
	}
	if doc.Folders == nil {
		doc.Folders = make(map[string]FolderEntry)
	}
	if doc.ByRecipe == nil {
		doc.ByRecipe = make(map[string][]string)
	}
	return doc, nil
}

// LoadLots reads a lots index. Missing files yield ErrNotIndexed.
func (s *Store) LoadLots(server string) (*LotsDocument, error) {
	doc := NewLotsDocument(server)
	if err := readJSON(s.LotsPath(server), doc); err != nil {
		return nil, err
	}
	if doc.LotsIndex == nil {
		doc.LotsIndex = make(map[string][]string)
	}
	return doc, nil
}

// LoadFilms reads a films index. Missing files yield ErrNotIndexed.
func (s *Store) LoadFilms(server string) (*FilmsDocument, error) {
	doc := NewFilmsDocument(server)
	if err := readJSON(s.FilmsPath(server), doc); err != nil {
		return nil, err
	}
	if doc.Mode == "" {
		doc.Mode = FilmsModeMap
	}
	if doc.FilmsIndex == nil {
		doc.FilmsIndex = make(map[string][]string)
	}
	return doc, nil
}

// LoadVisited reads a visited set. Missing files yield ErrNotIndexed.
func (s *Store) LoadVisited(server string) (*VisitedDocument, error) {
	doc := &VisitedDocument{Server: server}
	if err := readJSON(s.VisitedPath(server), doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) SaveFilm(doc *FilmDocument) error {
	return writeJSONAtomic(s.FilmPath(doc.Server), doc)
}

func (s *Store) SaveLots(doc *LotsDocument) error {
	return writeJSONAtomic(s.LotsPath(doc.Server), doc)
}

func (s *Store) SaveFilms(doc *FilmsDocument) error {
	return writeJSONAtomic(s.FilmsPath(doc.Server), doc)
}

func (s *Store) SaveVisited(doc *VisitedDocument) error {
	return writeJSONAtomic(s.VisitedPath(doc.Server), doc)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", filepath.Base(path), ErrNotIndexed)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSONAtomic writes v next to path and renames it into place.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		cleanup()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}
