package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"scan-indexer/internal/database"
	"scan-indexer/internal/indexer"
)

// StatusResponse is the body of GET /v1/index/status.
type StatusResponse struct {
	Statuses []indexer.Status `json:"statuses"`
	Count    int              `json:"count"`
}

// RunsResponse is the body of GET /v1/index/runs.
type RunsResponse struct {
	Runs  []database.IndexRun `json:"runs"`
	Count int                 `json:"count"`
}

// BuildRequest is the body of the bootstrap and update endpoints. No
// servers selects all of them.
type BuildRequest struct {
	Servers []string `json:"servers"`
	Async   bool     `json:"async"`
}

// BuildResponse reports a finished or accepted build.
type BuildResponse struct {
	Status  string                `json:"status"`
	Mode    string                `json:"mode"`
	Servers []string              `json:"servers,omitempty"`
	Results []indexer.BuildResult `json:"results,omitempty"`
}

// IndexStatus returns the published index status of the servers named by
// the repeated "server" parameter, or of all servers.
func (h *Handlers) IndexStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.manager.Statuses(queryList(r, "server"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Statuses: statuses, Count: len(statuses)})
}

// IndexRuns returns recent runs, newest first.
func (h *Handlers) IndexRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSONError(w, "run history is disabled", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.runs.RecentRuns(r.Context(), r.URL.Query().Get("server"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []database.IndexRun{}
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs, Count: len(runs)})
}

// Bootstrap rebuilds the selected servers from scratch.
func (h *Handlers) Bootstrap(w http.ResponseWriter, r *http.Request) {
	h.build(w, r, indexer.ModeBootstrap)
}

// Update walks the selected servers incrementally.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	h.build(w, r, indexer.ModeUpdate)
}

// build runs mode synchronously, or in the background when async is set.
// Per-server failures are reported in the results with a 200.
func (h *Handlers) build(w http.ResponseWriter, r *http.Request, mode string) {
	var req BuildRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	servers := h.manager.Servers()
	for _, name := range req.Servers {
		if _, ok := servers.ByName(name); !ok {
			writeError(w, fmt.Errorf("%w: %s", indexer.ErrUnknownServer, name))
			return
		}
	}

	if req.Async {
		h.manager.Trigger(req.Servers, mode)
		names := req.Servers
		if len(names) == 0 {
			names = servers.Names()
		}
		writeJSON(w, http.StatusAccepted, BuildResponse{Status: "accepted", Mode: mode, Servers: names})
		return
	}

	results, err := h.manager.BuildAll(r.Context(), req.Servers, mode)
	status := "completed"
	if err != nil {
		status = "completed_with_errors"
	}
	writeJSON(w, http.StatusOK, BuildResponse{Status: status, Mode: mode, Results: results})
}
