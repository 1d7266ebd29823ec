package search

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"scan-indexer/internal/index"
)

// term is one compiled filter term.
type term struct {
	value string
	path  bool
	re    *regexp.Regexp
}

// field matches one term list. An inactive field accepts everything.
type field struct {
	terms []term
}

func (f field) active() bool { return len(f.terms) > 0 }

// matcher evaluates Filters. It holds a case folder and is not safe for
// concurrent use.
type matcher struct {
	exact         bool
	regex         bool
	caseSensitive bool
	folder        cases.Caser

	wafer, lot, film field
	warnings         []string
}

func newMatcher(f Filters) *matcher {
	m := &matcher{
		exact:         f.Exact && !f.Regex,
		regex:         f.Regex,
		caseSensitive: f.CaseSensitive,
		folder:        cases.Fold(),
	}
	m.wafer = m.compile(f.Wafer)
	m.lot = m.compile(f.Lot)
	m.film = m.compile(f.Film)
	return m
}

func (m *matcher) compile(terms []string) field {
	var fl field
	for _, t := range terms {
		tm := term{path: strings.Contains(t, "/")}
		if m.regex {
			expr := t
			if !m.caseSensitive {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				m.warnings = append(m.warnings, fmt.Sprintf("invalid regex pattern %q: %v", t, err))
				continue
			}
			tm.re = re
		} else {
			tm.value = m.norm(t)
		}
		fl.terms = append(fl.terms, tm)
	}
	return fl
}

// norm normalizes a value for exact or substring comparison.
func (m *matcher) norm(s string) string {
	s = index.NormalizeSpaces(s)
	if !m.caseSensitive {
		s = m.folder.String(s)
	}
	return s
}

// match reports whether name (or path, for path terms) satisfies fl.
func (m *matcher) match(fl field, name, path string) bool {
	if !fl.active() {
		return true
	}
	for _, t := range fl.terms {
		candidate := name
		if t.path {
			candidate = path
		}
		switch {
		case t.re != nil:
			if t.re.MatchString(index.NormalizeSpaces(candidate)) {
				return true
			}
		case m.exact:
			if m.norm(candidate) == t.value {
				return true
			}
		default:
			if strings.Contains(m.norm(candidate), t.value) {
				return true
			}
		}
	}
	return false
}

func (m *matcher) matchWafer(name, path string) bool { return m.match(m.wafer, name, path) }
func (m *matcher) matchLot(name, path string) bool   { return m.match(m.lot, name, path) }
func (m *matcher) matchFilm(name, path string) bool  { return m.match(m.film, name, path) }
