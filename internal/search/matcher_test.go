package search

import (
	"strings"
	"testing"
)

func TestMatcher(t *testing.T) {
	t.Parallel()

	const path = "/auto scan data/CLS/W01/LOT1/F01/20240101"

	tests := []struct {
		name    string
		filters Filters
		film    string
		want    bool
	}{
		{name: "no terms", filters: Filters{}, film: "F01", want: true},
		{name: "substring", filters: Filters{Film: []string{"01"}}, film: "AF01B", want: true},
		{name: "substring miss", filters: Filters{Film: []string{"02"}}, film: "F01", want: false},
		{name: "substring case folded", filters: Filters{Film: []string{"wqkj"}}, film: "WQKJ", want: true},
		{name: "case sensitive", filters: Filters{Film: []string{"wqkj"}, CaseSensitive: true}, film: "WQKJ", want: false},
		{name: "exact", filters: Filters{Film: []string{"F01"}, Exact: true}, film: "F01", want: true},
		{name: "exact rejects substring", filters: Filters{Film: []string{"F0"}, Exact: true}, film: "F01", want: false},
		{name: "exact folds case", filters: Filters{Film: []string{"f01"}, Exact: true}, film: "F01", want: true},
		{name: "exact normalizes spaces", filters: Filters{Film: []string{"Deep  Trench"}, Exact: true}, film: "Deep Trench", want: true},
		{name: "full width", filters: Filters{Film: []string{"ABC"}, Exact: true}, film: "ＡＢＣ", want: true},
		{name: "any term", filters: Filters{Film: []string{"zzz", "F01"}, Exact: true}, film: "F01", want: true},
		{name: "regex", filters: Filters{Film: []string{"^F0[0-9]$"}, Regex: true}, film: "F01", want: true},
		{name: "regex case insensitive", filters: Filters{Film: []string{"^f01$"}, Regex: true}, film: "F01", want: true},
		{name: "regex case sensitive", filters: Filters{Film: []string{"^f01$"}, Regex: true, CaseSensitive: true}, film: "F01", want: false},
		{name: "regex overrides exact", filters: Filters{Film: []string{"F0"}, Regex: true, Exact: true}, film: "F01", want: true},
		{name: "path term", filters: Filters{Film: []string{"W01/LOT1"}}, film: "F01", want: true},
		{name: "path term miss", filters: Filters{Film: []string{"W02/LOT1"}}, film: "F01", want: false},
		{name: "name term ignores path", filters: Filters{Film: []string{"LOT1"}}, film: "F01", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newMatcher(tt.filters)
			if got := m.matchFilm(tt.film, path); got != tt.want {
				t.Errorf("matchFilm(%q) = %v, want %v", tt.film, got, tt.want)
			}
		})
	}
}

func TestMatcherInvalidRegex(t *testing.T) {
	t.Parallel()

	m := newMatcher(Filters{Film: []string{"([", "^F01$"}, Lot: []string{"*bad"}, Regex: true})

	if len(m.warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %v", m.warnings)
	}
	if !strings.Contains(m.warnings[0], `"(["`) {
		t.Errorf("Warning should name the pattern: %q", m.warnings[0])
	}
	if !m.matchFilm("F01", "") || m.matchFilm("F02", "") {
		t.Error("Valid patterns should still apply")
	}
	// Every lot pattern was invalid, so the lot field is unconstrained.
	if !m.matchLot("ANY", "") {
		t.Error("Field with only invalid patterns should accept everything")
	}
}

// Exact matches are always a subset of substring matches.
func TestExactIsSubsetOfSubstring(t *testing.T) {
	t.Parallel()

	terms := []string{"F01", "f0", "LOT", "Deep Trench", "ａｂ"}
	names := []string{"F01", "F010", "lot1", "Deep   Trench", "AB", "ab", "x"}

	for _, term := range terms {
		exact := newMatcher(Filters{Film: []string{term}, Exact: true})
		sub := newMatcher(Filters{Film: []string{term}})
		for _, name := range names {
			if exact.matchFilm(name, "") && !sub.matchFilm(name, "") {
				t.Errorf("term %q name %q: exact matched but substring did not", term, name)
			}
		}
	}
}
