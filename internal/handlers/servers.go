package handlers

import (
	"net/http"

	"scan-indexer/internal/config"
)

// ServersResponse lists the configured servers. Credentials are never
// serialized.
type ServersResponse struct {
	Servers []config.ServerConfig `json:"servers"`
	Count   int                   `json:"count"`
}

// ListServers returns the configured servers in configuration order.
func (h *Handlers) ListServers(w http.ResponseWriter, _ *http.Request) {
	servers := h.manager.Servers()
	if servers == nil {
		servers = config.ServerList{}
	}
	writeJSON(w, http.StatusOK, ServersResponse{Servers: servers, Count: len(servers)})
}
