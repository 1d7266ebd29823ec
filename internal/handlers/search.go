package handlers

import (
	"net/http"

	"scan-indexer/internal/search"
)

// SearchRequest is the body of the search endpoints. Mode is only read by
// /v1/search; the mode-specific endpoints ignore it.
type SearchRequest struct {
	search.Filters
	Mode string `json:"mode"`
}

// Search runs a search in the requested mode (cache by default).
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, "")
}

// SearchCache searches the published index only.
func (h *Handlers) SearchCache(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, search.ModeCache)
}

// SearchDirect walks the servers live.
func (h *Handlers) SearchDirect(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, search.ModeDirect)
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request, mode string) {
	req, err := parseSearchRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if mode == "" {
		mode = req.Mode
	}

	res, err := search.Run(r.Context(), h.searcher, req.Filters, mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parseSearchRequest reads filters from the JSON body of a POST or from
// the query string of a GET.
func parseSearchRequest(w http.ResponseWriter, r *http.Request) (SearchRequest, error) {
	var req SearchRequest
	if r.Method == http.MethodPost {
		err := decodeBody(w, r, &req)
		return req, err
	}

	req.Filters = search.Filters{
		Servers:       queryList(r, "servers"),
		Roles:         queryList(r, "roles"),
		Wafer:         queryList(r, "wafer"),
		Lot:           queryList(r, "lot"),
		Film:          queryList(r, "film"),
		Exact:         queryBool(r, "exact"),
		Regex:         queryBool(r, "regex"),
		CaseSensitive: queryBool(r, "case_sensitive"),
		LinkRecipe:    queryBool(r, "link_recipe"),
	}
	req.Mode = r.URL.Query().Get("mode")
	return req, nil
}
