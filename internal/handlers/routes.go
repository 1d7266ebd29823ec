package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Router registers every API route.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/servers", h.ListServers).Methods(http.MethodGet)

	v1.HandleFunc("/index/status", h.IndexStatus).Methods(http.MethodGet)
	v1.HandleFunc("/index/runs", h.IndexRuns).Methods(http.MethodGet)
	v1.HandleFunc("/index/bootstrap", h.Bootstrap).Methods(http.MethodPost)
	v1.HandleFunc("/index/update", h.Update).Methods(http.MethodPost)

	v1.HandleFunc("/search", h.Search).Methods(http.MethodGet, http.MethodPost)
	v1.HandleFunc("/search/cache", h.SearchCache).Methods(http.MethodGet, http.MethodPost)
	v1.HandleFunc("/search/local", h.SearchCache).Methods(http.MethodPost)
	v1.HandleFunc("/search/direct", h.SearchDirect).Methods(http.MethodGet, http.MethodPost)
	v1.HandleFunc("/search/server", h.SearchDirect).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}
