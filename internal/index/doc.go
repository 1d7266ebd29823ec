// Package index builds, merges and persists the per-server index documents.
//
// Film servers produce a FilmDocument (folder name to strategy, plus the
// inverse by_recipe map). Scan servers produce a LotsDocument (lot id to lot
// paths) and a FilmsDocument (lot path to film/date leaf paths). Both kinds
// keep a VisitedDocument: film updates skip the folders it lists, scan
// updates re-list every film folder because new dates appear under them.
//
// Documents are owned by one builder per run. Merges are set unions over
// sorted path lists, so the result does not depend on worker completion
// order. Files are written to a temporary name and renamed into place, so a
// reader never sees a half-written document.
//
// Update is strictly additive: nothing is removed from an index except by a
// fresh bootstrap.
package index
