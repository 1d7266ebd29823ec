package index

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeSpaces applies NFKC and collapses runs of whitespace to one space.
func NormalizeSpaces(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
