package handlers

import (
	"net/http"

	"scan-indexer/internal/startup"
)

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, startup.GetBuildInfo())
}
