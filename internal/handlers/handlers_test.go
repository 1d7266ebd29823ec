package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"scan-indexer/internal/config"
	"scan-indexer/internal/database"
	"scan-indexer/internal/index"
	"scan-indexer/internal/indexer"
	"scan-indexer/internal/search"
	"scan-indexer/internal/source"
	"scan-indexer/internal/source/sourcetest"
	"scan-indexer/internal/traversal"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeManager struct {
	mu        sync.Mutex
	servers   config.ServerList
	statuses  []indexer.Status
	statusErr error
	buildErr  error
	built     []string
	triggered []string
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		servers: config.ServerList{
			{Name: "FILM01", Role: config.RoleFilm, Source: config.SourceFTP, Password: "secret"},
			{Name: "SCAN01", Role: config.RoleScan, Source: config.SourceLocal},
		},
		statuses: []indexer.Status{
			{Server: "FILM01", Role: config.RoleFilm, Indexed: true},
			{Server: "SCAN01", Role: config.RoleScan},
		},
	}
}

func (f *fakeManager) Servers() config.ServerList { return f.servers }

func (f *fakeManager) BuildAll(_ context.Context, names []string, mode string) ([]indexer.BuildResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(names) == 0 {
		names = f.servers.Names()
	}
	var out []indexer.BuildResult
	for _, n := range names {
		f.built = append(f.built, mode+":"+n)
		out = append(out, indexer.BuildResult{Server: n, Mode: mode, Status: database.StatusSuccess})
	}
	return out, f.buildErr
}

func (f *fakeManager) Trigger(names []string, mode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, fmt.Sprintf("%s:%v", mode, names))
}

func (f *fakeManager) Statuses(names []string) ([]indexer.Status, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(names) == 0 {
		return f.statuses, nil
	}
	var out []indexer.Status
	for _, n := range names {
		if _, ok := f.servers.ByName(n); !ok {
			return nil, fmt.Errorf("%w: %s", indexer.ErrUnknownServer, n)
		}
		for _, st := range f.statuses {
			if st.Server == n {
				out = append(out, st)
			}
		}
	}
	return out, nil
}

func (f *fakeManager) Building() []string { return nil }

type fakeSearcher struct {
	mu      sync.Mutex
	last    search.Filters
	calls   []string
	hits    int
	err     error
	warning string
}

func (f *fakeSearcher) result(mode string, filters search.Filters) (search.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = filters
	f.calls = append(f.calls, mode)
	if f.err != nil {
		return search.Result{}, f.err
	}
	res := search.Result{Mode: mode, Hits: []search.Hit{}}
	for i := 0; i < f.hits; i++ {
		res.Hits = append(res.Hits, search.Hit{Path: fmt.Sprintf("/p/%d", i)})
	}
	res.Count = len(res.Hits)
	if f.warning != "" {
		res.Warnings = []string{f.warning}
	}
	return res, nil
}

func (f *fakeSearcher) SearchCache(_ context.Context, filters search.Filters) (search.Result, error) {
	return f.result(search.ModeCache, filters)
}

func (f *fakeSearcher) SearchDirect(_ context.Context, filters search.Filters) (search.Result, error) {
	return f.result(search.ModeDirect, filters)
}

type fakeRuns struct {
	server string
	limit  int
}

func (f *fakeRuns) RecentRuns(_ context.Context, server string, limit int) ([]database.IndexRun, error) {
	f.server, f.limit = server, limit
	return []database.IndexRun{{ID: "r1", Server: "SCAN01", Mode: indexer.ModeUpdate}}, nil
}

func serve(t *testing.T, h *Handlers, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

// =============================================================================
// Health and version
// =============================================================================

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	h := New(newFakeManager(), &fakeSearcher{}, nil)
	w := serve(t, h, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decode[HealthResponse](t, w)
	if resp.Status != statusDegraded || resp.Servers != 2 || resp.Indexed != 1 {
		t.Errorf("Unexpected health: %+v", resp)
	}
}

func TestHealthCheckUnhealthy(t *testing.T) {
	t.Parallel()

	m := newFakeManager()
	m.statusErr = errors.New("permission denied")
	h := New(m, &fakeSearcher{}, nil)

	w := serve(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	if w := serve(t, h, http.MethodGet, "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz: expected status 503, got %d", w.Code)
	}
}

func TestLivenessAndReadiness(t *testing.T) {
	t.Parallel()

	h := New(newFakeManager(), &fakeSearcher{}, nil)
	for _, path := range []string{"/livez", "/readyz"} {
		if w := serve(t, h, http.MethodGet, path, ""); w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, w.Code)
		}
	}
	if w := serve(t, h, http.MethodHead, "/livez", ""); w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Errorf("HEAD /livez: code=%d body=%q", w.Code, w.Body.String())
	}
}

func TestGetVersion(t *testing.T) {
	t.Parallel()

	h := New(newFakeManager(), &fakeSearcher{}, nil)
	w := serve(t, h, http.MethodGet, "/version", "")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	w := httptest.NewRecorder()
	h.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "# HELP") {
		t.Error("Expected Prometheus metrics format with HELP comments")
	}
}

// =============================================================================
// Servers and index
// =============================================================================

func TestListServersHidesCredentials(t *testing.T) {
	t.Parallel()

	h := New(newFakeManager(), &fakeSearcher{}, nil)
	w := serve(t, h, http.MethodGet, "/v1/servers", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Error("Response must not contain passwords")
	}
	resp := decode[ServersResponse](t, w)
	if resp.Count != 2 || resp.Servers[0].Name != "FILM01" {
		t.Errorf("Unexpected servers: %+v", resp)
	}
}

func TestIndexStatus(t *testing.T) {
	t.Parallel()

	h := New(newFakeManager(), &fakeSearcher{}, nil)

	w := serve(t, h, http.MethodGet, "/v1/index/status?server=SCAN01", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decode[StatusResponse](t, w)
	if resp.Count != 1 || resp.Statuses[0].Server != "SCAN01" {
		t.Errorf("Unexpected statuses: %+v", resp)
	}

	if w := serve(t, h, http.MethodGet, "/v1/index/status?server=NOPE", ""); w.Code != http.StatusNotFound {
		t.Errorf("Unknown server: expected 404, got %d", w.Code)
	}
}

func TestIndexRuns(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{}
	h := New(newFakeManager(), &fakeSearcher{}, runs)

	w := serve(t, h, http.MethodGet, "/v1/index/runs?server=SCAN01&limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if runs.server != "SCAN01" || runs.limit != 5 {
		t.Errorf("RecentRuns called with %q %d", runs.server, runs.limit)
	}
	if resp := decode[RunsResponse](t, w); resp.Count != 1 {
		t.Errorf("Unexpected runs: %+v", resp)
	}

	if w := serve(t, h, http.MethodGet, "/v1/index/runs?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Bad limit: expected 400, got %d", w.Code)
	}

	disabled := New(newFakeManager(), &fakeSearcher{}, nil)
	if w := serve(t, disabled, http.MethodGet, "/v1/index/runs", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Disabled history: expected 503, got %d", w.Code)
	}
}

func TestBuildEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		path      string
		body      string
		wantCode  int
		wantBuilt []string
		wantTrig  []string
	}{
		{
			name:      "bootstrap all",
			path:      "/v1/index/bootstrap",
			wantCode:  http.StatusOK,
			wantBuilt: []string{"bootstrap:FILM01", "bootstrap:SCAN01"},
		},
		{
			name:      "update one",
			path:      "/v1/index/update",
			body:      `{"servers":["SCAN01"]}`,
			wantCode:  http.StatusOK,
			wantBuilt: []string{"update:SCAN01"},
		},
		{
			name:     "async update",
			path:     "/v1/index/update",
			body:     `{"servers":["SCAN01"],"async":true}`,
			wantCode: http.StatusAccepted,
			wantTrig: []string{"update:[SCAN01]"},
		},
		{
			name:     "unknown server",
			path:     "/v1/index/bootstrap",
			body:     `{"servers":["NOPE"]}`,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "bad body",
			path:     "/v1/index/bootstrap",
			body:     `{"servers":`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newFakeManager()
			h := New(m, &fakeSearcher{}, nil)

			w := serve(t, h, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if strings.Join(m.built, ",") != strings.Join(tt.wantBuilt, ",") {
				t.Errorf("built = %v, want %v", m.built, tt.wantBuilt)
			}
			if strings.Join(m.triggered, ",") != strings.Join(tt.wantTrig, ",") {
				t.Errorf("triggered = %v, want %v", m.triggered, tt.wantTrig)
			}
		})
	}
}

func TestBuildReportsErrors(t *testing.T) {
	t.Parallel()

	m := newFakeManager()
	m.buildErr = errors.New("SCAN01: source unavailable")
	h := New(m, &fakeSearcher{}, nil)

	w := serve(t, h, http.MethodPost, "/v1/index/update", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if resp := decode[BuildResponse](t, w); resp.Status != "completed_with_errors" {
		t.Errorf("Status = %q", resp.Status)
	}
}

// =============================================================================
// Search
// =============================================================================

func TestSearchEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		method    string
		target    string
		body      string
		hits      int
		wantCalls string
		wantCode  int
	}{
		{name: "default mode is cache", method: http.MethodPost, target: "/v1/search", body: `{"lot":["LOT1"]}`, hits: 1, wantCalls: "cache", wantCode: 200},
		{name: "mode direct", method: http.MethodPost, target: "/v1/search", body: `{"lot":["LOT1"],"mode":"direct"}`, wantCalls: "direct", wantCode: 200},
		{name: "both falls back", method: http.MethodPost, target: "/v1/search", body: `{"mode":"both"}`, wantCalls: "cache,direct", wantCode: 200},
		{name: "both keeps cache hits", method: http.MethodPost, target: "/v1/search", body: `{"mode":"both"}`, hits: 2, wantCalls: "cache", wantCode: 200},
		{name: "cache endpoint ignores mode", method: http.MethodPost, target: "/v1/search/cache", body: `{"mode":"direct"}`, wantCalls: "cache", wantCode: 200},
		{name: "legacy local alias", method: http.MethodPost, target: "/v1/search/local", wantCalls: "cache", wantCode: 200},
		{name: "direct endpoint", method: http.MethodPost, target: "/v1/search/direct", wantCalls: "direct", wantCode: 200},
		{name: "legacy server alias", method: http.MethodPost, target: "/v1/search/server", wantCalls: "direct", wantCode: 200},
		{name: "get query", method: http.MethodGet, target: "/v1/search?film=WQKJ&mode=direct", wantCalls: "direct", wantCode: 200},
		{name: "invalid mode", method: http.MethodPost, target: "/v1/search", body: `{"mode":"tape"}`, wantCode: 400},
		{name: "bad json", method: http.MethodPost, target: "/v1/search", body: `{`, wantCode: 400},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &fakeSearcher{hits: tt.hits}
			h := New(newFakeManager(), s, nil)

			w := serve(t, h, tt.method, tt.target, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if got := strings.Join(s.calls, ","); got != tt.wantCalls {
				t.Errorf("calls = %q, want %q", got, tt.wantCalls)
			}
		})
	}
}

func TestSearchParsesFilters(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{}
	h := New(newFakeManager(), s, nil)

	serve(t, h, http.MethodPost, "/v1/search", `{"servers":["SCAN01"],"roles":["scan"],"wafer":["W01"],"lot":["LOT1","LOT2"],"film":["F01"],"exact":true,"case_sensitive":true,"link_recipe":true}`)
	f := s.last
	if strings.Join(f.Lot, ",") != "LOT1,LOT2" || f.Wafer[0] != "W01" || f.Film[0] != "F01" || f.Servers[0] != "SCAN01" {
		t.Errorf("Unexpected term lists: %+v", f)
	}
	if !f.Exact || f.Regex || !f.CaseSensitive || !f.LinkRecipe {
		t.Errorf("Unexpected flags: %+v", f)
	}

	serve(t, h, http.MethodGet, "/v1/search?lot=LOT1,LOT2&lot=LOT3&regex=true&roles=film", "")
	f = s.last
	if strings.Join(f.Lot, ",") != "LOT1,LOT2,LOT3" || !f.Regex || f.Roles[0] != "film" {
		t.Errorf("Unexpected query filters: %+v", f)
	}
}

func TestSearchErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		code int
	}{
		{err: fmt.Errorf("%w: unknown role", search.ErrInvalidFilters), code: http.StatusBadRequest},
		{err: context.Canceled, code: http.StatusServiceUnavailable},
		{err: errors.New("boom"), code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := New(newFakeManager(), &fakeSearcher{err: tt.err}, nil)
		if w := serve(t, h, http.MethodPost, "/v1/search", `{}`); w.Code != tt.code {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.code, w.Code)
		}
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()

	h := New(newFakeManager(), &fakeSearcher{}, nil)
	if w := serve(t, h, http.MethodGet, "/v1/nothing", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if w := serve(t, h, http.MethodGet, "/v1/index/bootstrap", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

// =============================================================================
// End to end with the real manager and engine
// =============================================================================

type treeSources map[string]source.Source

func (s treeSources) Get(cfg config.ServerConfig) (source.Source, error) {
	if src, ok := s[cfg.Name]; ok {
		return src, nil
	}
	return nil, errors.New("unreachable")
}

func TestBootstrapThenSearch(t *testing.T) {
	t.Parallel()

	const root = "/auto scan data"
	servers := config.ServerList{{Name: "SCAN01", Role: config.RoleScan, Root: root, MaxDepth: 15, Source: config.SourceLocal}}
	tree := sourcetest.NewTree().AddDir(
		root+"/CLS/W01/LOT1/F01/20240101",
		root+"/CLS/W02/LOT1/F03/20240102",
	)
	sources := treeSources{"SCAN01": tree}
	store := index.NewStore(t.TempDir())
	tf := func(config.Role) traversal.Config {
		cfg := traversal.DefaultScanConfig()
		cfg.Workers = 2
		cfg.ProgressEvery = 0
		return cfg
	}

	mgr := indexer.New(servers, store, sources, indexer.Options{Traversal: tf})
	defer mgr.Stop()
	eng := search.New(servers, store, sources, search.Options{Traversal: tf})
	h := New(mgr, eng, nil)

	// Nothing indexed yet: a cache search warns and finds nothing.
	w := serve(t, h, http.MethodPost, "/v1/search/cache", `{"lot":["LOT1"]}`)
	res := decode[search.Result](t, w)
	if res.Count != 0 || len(res.Warnings) == 0 {
		t.Fatalf("Expected an empty result with a warning, got %+v", res)
	}

	w = serve(t, h, http.MethodPost, "/v1/index/bootstrap", `{"servers":["SCAN01"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("bootstrap: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	build := decode[BuildResponse](t, w)
	if build.Status != "completed" || len(build.Results) != 1 || build.Results[0].NewFilms != 2 {
		t.Fatalf("Unexpected bootstrap response: %+v", build)
	}

	w = serve(t, h, http.MethodPost, "/v1/search/cache", `{"lot":["LOT1"]}`)
	res = decode[search.Result](t, w)
	if res.Count != 2 {
		t.Errorf("Expected 2 hits, got %+v", res)
	}

	w = serve(t, h, http.MethodGet, "/v1/index/status", "")
	status := decode[StatusResponse](t, w)
	if !status.Statuses[0].Indexed || status.Statuses[0].IndexedLots != 1 || status.Statuses[0].IndexedFilms != 2 {
		t.Errorf("Unexpected status: %+v", status.Statuses[0])
	}
	if status.Statuses[0].LastBootstrap == nil || time.Since(*status.Statuses[0].LastBootstrap) > time.Minute {
		t.Errorf("LastBootstrap not set: %+v", status.Statuses[0])
	}
}
