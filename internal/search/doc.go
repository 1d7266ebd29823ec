// Package search answers filter queries against scan and film indexes.
//
// Two entry points exist on [Engine]:
//   - SearchCache reads the published index documents
//   - SearchDirect walks the servers live and matches the fresh result
//
// [Run] composes them for the "both" mode: cache first, then direct when the
// cache has no hits.
//
// Term lists are matched per field (wafer, lot, film) with OR inside a field
// and AND across fields. Values and terms are NFKC-normalized with collapsed
// whitespace and, unless CaseSensitive is set, Unicode case folded. A term
// containing "/" is compared against the full path instead of the name.
// Invalid regular expressions become warnings and are skipped; they never
// fail the request.
//
// With LinkRecipe set, scan hits are cross-referenced against the by_recipe
// index of every film server.
package search
