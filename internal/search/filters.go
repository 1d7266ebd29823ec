package search

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"scan-indexer/internal/config"
)

// Search modes.
const (
	ModeCache  = "cache"
	ModeDirect = "direct"
	ModeBoth   = "both"
)

// Result kinds, derived from the requested roles.
const (
	KindScan   = "scan"
	KindRecipe = "recipe"
	KindMixed  = "mixed"
)

// Hit levels.
const (
	LevelLot    = "lot"
	LevelFilm   = "film"
	LevelFolder = "folder"
)

var (
	// ErrInvalidFilters is returned for filters that cannot be evaluated.
	ErrInvalidFilters = errors.New("invalid filters")
	// ErrInvalidMode is returned for an unknown search mode.
	ErrInvalidMode = errors.New("invalid search mode")
)

// Filters selects what to search. Empty term lists impose no constraint.
type Filters struct {
	Servers       []string `json:"servers,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	Wafer         []string `json:"wafer,omitempty"`
	Lot           []string `json:"lot,omitempty"`
	Film          []string `json:"film,omitempty"`
	Exact         bool     `json:"exact"`
	Regex         bool     `json:"regex"`
	CaseSensitive bool     `json:"case_sensitive"`
	LinkRecipe    bool     `json:"link_recipe"`
}

// Hit is one search result.
type Hit struct {
	Server        string   `json:"server"`
	Role          string   `json:"role"`
	Kind          string   `json:"kind"`
	Level         string   `json:"level"`
	Path          string   `json:"path"`
	Wafer         string   `json:"wafer,omitempty"`
	Lot           string   `json:"lot,omitempty"`
	Film          string   `json:"film,omitempty"`
	Date          string   `json:"date,omitempty"`
	RecipeLinked  bool     `json:"recipe_linked"`
	RecipeName    string   `json:"recipe_name,omitempty"`
	RecipePaths   []string `json:"recipe_paths,omitempty"`
	RecipePrimary string   `json:"recipe_primary,omitempty"`
	RecipeServer  string   `json:"recipe_server,omitempty"`
}

// Result is the answer to one search call.
type Result struct {
	Mode        string    `json:"mode"`
	Kind        string    `json:"kind"`
	Hits        []Hit     `json:"hits"`
	Count       int       `json:"count"`
	Warnings    []string  `json:"warnings,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// normalize drops blank terms and lowercases roles.
func (f Filters) normalize() (Filters, error) {
	out := f
	out.Servers = compact(f.Servers)
	out.Wafer = compact(f.Wafer)
	out.Lot = compact(f.Lot)
	out.Film = compact(f.Film)

	out.Roles = nil
	for _, r := range compact(f.Roles) {
		r = strings.ToLower(r)
		switch config.Role(r) {
		case config.RoleFilm, config.RoleScan:
			out.Roles = append(out.Roles, r)
		default:
			return out, fmt.Errorf("%w: unknown role %q", ErrInvalidFilters, r)
		}
	}
	return out, nil
}

// wantsRole reports whether role is selected; no roles selects all.
func (f Filters) wantsRole(role config.Role) bool {
	if len(f.Roles) == 0 {
		return true
	}
	for _, r := range f.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

// resultKind classifies a result by the requested roles.
func (f Filters) resultKind() string {
	scan, film := f.wantsRole(config.RoleScan), f.wantsRole(config.RoleFilm)
	switch {
	case scan && !film:
		return KindScan
	case film && !scan:
		return KindRecipe
	default:
		return KindMixed
	}
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
