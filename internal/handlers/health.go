package handlers

import (
	"net/http"
	"runtime"
	"time"

	"scan-indexer/internal/startup"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string   `json:"status"`
	Version  string   `json:"version"`
	Uptime   string   `json:"uptime"`
	Time     string   `json:"time"`
	Servers  int      `json:"servers"`
	Indexed  int      `json:"indexed"`
	Building []string `json:"building,omitempty"`
	Error    string   `json:"error,omitempty"`

	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports whether every server has a published index. Missing
// indexes degrade the service, they do not fail it: searches still answer
// from the servers that are indexed.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Time:         time.Now().Format(time.RFC3339),
		Servers:      len(h.manager.Servers()),
		Building:     h.manager.Building(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	statuses, err := h.manager.Statuses(nil)
	if err != nil {
		resp.Status = statusUnhealthy
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	for _, st := range statuses {
		if st.Indexed {
			resp.Indexed++
		}
	}
	resp.Status = statusHealthy
	if resp.Indexed < resp.Servers {
		resp.Status = statusDegraded
	}
	writeJSON(w, http.StatusOK, resp)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessCheck returns 200 once the index store can be read.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if _, err := h.manager.Statuses(nil); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
