package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/efebarandurmaz/hoist/internal/concat"
	"github.com/efebarandurmaz/hoist/internal/depgraph"
	"github.com/efebarandurmaz/hoist/internal/observability"
	"github.com/efebarandurmaz/hoist/internal/pipeline"
)

const graphJSON = `{
  "modules": [
    {"id": "./index.js", "exports": {"provided": ["default"]}},
    {"id": "./util.js", "exports": {"provided": ["x"]}}
  ],
  "dependencies": [
    {"kind": "esm import", "from": "./index.js", "to": "./util.js", "imports": [["x"]]}
  ],
  "chunks": [
    {"id": "main", "modules": ["./index.js", "./util.js"], "entries": ["./index.js"]}
  ]
}`

const graphYAML = `
modules:
  - id: ./index.js
    exports: {provided: [default]}
  - id: ./util.js
    exports: {provided: [x]}
dependencies:
  - kind: esm import
    from: ./index.js
    to: ./util.js
    imports: [[x]]
chunks:
  - id: main
    modules: [./index.js, ./util.js]
    entries: [./index.js]
`

type memoryRepository struct {
	groups map[string][]depgraph.Group
}

func (m *memoryRepository) StoreGraph(_ context.Context, passID string, g *depgraph.Graph) error {
	m.groups[passID] = g.Groups
	return nil
}

func (m *memoryRepository) LoadGroups(_ context.Context, passID string) ([]depgraph.Group, error) {
	return m.groups[passID], nil
}

func (m *memoryRepository) QueryImporters(_ context.Context, passID, moduleID string) ([]string, error) {
	if passID == "broken" {
		return nil, errors.New("query failed")
	}
	return []string{"./index.js"}, nil
}

func (m *memoryRepository) Close(context.Context) error { return nil }

func newTestServer(t *testing.T, repo *memoryRepository) (*Server, *observability.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := observability.NewMetrics()
	runner := &pipeline.Runner{
		Optimizer: concat.NewOptimizer(&concat.OptimizerConfig{Workers: 1, Logger: logger, Metrics: m}),
		Logger:    logger,
	}
	if repo != nil {
		runner.Repository = repo
	}
	s := New(&Config{
		Concatenate: true,
		Logger:      logger,
		Shutdown:    &ShutdownConfig{Timeout: time.Second},
	}, runner, m.Registry())
	return s, m
}

func do(s *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeOptimize(t *testing.T, w *httptest.ResponseRecorder) OptimizeResponse {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp OptimizeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return resp
}

func TestOptimize(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"json", "application/json", graphJSON},
		{"yaml", "application/yaml; charset=utf-8", graphYAML},
		{"no content type", "", graphJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, nil)
			resp := decodeOptimize(t, do(s, http.MethodPost, "/v1/optimize", tt.contentType, tt.body))

			if resp.PassID == "" {
				t.Error("expected a pass id")
			}
			if resp.Report.Pass.MergedModules != 2 || resp.Report.Output.Concatenated != 1 {
				t.Errorf("unexpected pass %+v", resp.Report.Pass)
			}
			if resp.Export != "" {
				t.Errorf("no export was requested, got %q", resp.Export)
			}
		})
	}
}

func TestOptimize_ExportAndDisabled(t *testing.T) {
	s, _ := newTestServer(t, nil)

	resp := decodeOptimize(t, do(s, http.MethodPost, "/v1/optimize?export=dot&concatenate=false", "", graphJSON))
	if resp.PassID != "" || resp.Report.Pass.MergedModules != 0 {
		t.Errorf("concatenation should be skipped, got %+v", resp.Report.Pass)
	}
	if !strings.HasPrefix(resp.Export, "digraph modules") {
		t.Errorf("expected a DOT export, got %q", resp.Export)
	}
}

func TestOptimize_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		code   int
	}{
		{"unknown export", "/v1/optimize?export=svg", graphJSON, http.StatusBadRequest},
		{"bad concatenate flag", "/v1/optimize?concatenate=maybe", graphJSON, http.StatusBadRequest},
		{"malformed document", "/v1/optimize", "{", http.StatusBadRequest},
		{"unknown module in chunk", "/v1/optimize", `{"chunks": [{"id": "main", "modules": ["./missing.js"]}]}`, http.StatusUnprocessableEntity},
		{"duplicate dependency id", "/v1/optimize", `{"modules": [{"id": "./a.js"}, {"id": "./b.js"}], "dependencies": [{"id": "d1", "kind": "esm import", "from": "./a.js", "to": "./b.js"}, {"id": "d1", "kind": "cjs require", "from": "./a.js", "to": "./b.js"}]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, nil)
			w := do(s, http.MethodPost, tt.target, "application/json", tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			var resp errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Error == "" {
				t.Fatalf("expected an error body, got %s", w.Body.String())
			}
		})
	}
}

func TestOptimize_BodyTooLarge(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.config.MaxBodyBytes = 16

	w := do(s, http.MethodPost, "/v1/optimize", "application/json", graphJSON)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestOptimize_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if w := do(s, http.MethodGet, "/v1/optimize", "", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestPassQueries(t *testing.T) {
	repo := &memoryRepository{groups: make(map[string][]depgraph.Group)}
	s, _ := newTestServer(t, repo)

	resp := decodeOptimize(t, do(s, http.MethodPost, "/v1/optimize", "application/json", graphJSON))

	w := do(s, http.MethodGet, "/v1/passes/"+resp.PassID+"/groups", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var groups []depgraph.Group
	if err := json.Unmarshal(w.Body.Bytes(), &groups); err != nil {
		t.Fatalf("failed to parse groups: %v", err)
	}
	if len(groups) != 1 || groups[0].Root != "./index.js" {
		t.Fatalf("unexpected groups %+v", groups)
	}
	if diff := cmp.Diff([]string{"./index.js", "./util.js"}, groups[0].Members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}

	if w := do(s, http.MethodGet, "/v1/passes/unknown/groups", "", ""); w.Body.String() != "[]\n" {
		t.Errorf("an unknown pass should have no groups, got %q", w.Body.String())
	}
	if w := do(s, http.MethodGet, "/v1/passes/p/importers?module=./util.js", "", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/v1/passes/p/importers", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without module, got %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/v1/passes/broken/importers?module=./a.js", "", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on store errors, got %d", w.Code)
	}
}

func TestPassQueries_WithoutStore(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if w := do(s, http.MethodGet, "/v1/passes/p/groups", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	decodeOptimize(t, do(s, http.MethodPost, "/v1/optimize", "", graphJSON))

	w := do(s, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"hoist_concat_merged_modules 2", "hoist_concat_pass_duration_seconds_count 1"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %q in metrics output", name)
		}
	}
}

func TestHealthReportsFailedPass(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.recordPass(errors.New("concat: integrate configurations"))

	w := do(s, http.MethodGet, "/health", "", "")
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if w.Code != http.StatusOK || resp.Status != HealthStatusDegraded {
		t.Fatalf("expected degraded with 200, got %d %s", w.Code, resp.Status)
	}
}

func TestServer_ServeAndClose(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	closed := false
	s.Shutdown.Register(GraphStoreShutdownHook(func(context.Context) error {
		closed = true
		return nil
	}))
	if err := s.Serve(ln); err != nil {
		t.Fatalf("serve: %v", err)
	}

	res, err := http.Get("http://" + ln.Addr().String() + "/ready")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", res.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed {
		t.Error("expected the graph store hook to run")
	}
	if _, err := http.Get("http://" + ln.Addr().String() + "/live"); err == nil {
		t.Error("expected the listener to be closed")
	}
}

func TestServer_WaitAfterListenerFailure(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ln.Close()

	if err := s.Serve(ln); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if err := s.Wait(5 * time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if w := do(s, http.MethodGet, "/live", "", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 from /live after the listener failed, got %d", w.Code)
	}
}

func TestServer_WaitTimesOut(t *testing.T) {
	s, _ := newTestServer(t, nil)
	release := make(chan struct{})
	defer close(release)
	s.Shutdown.Register(GraphStoreShutdownHook(func(context.Context) error {
		<-release
		return nil
	}))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := s.Serve(ln); err != nil {
		t.Fatalf("serve: %v", err)
	}

	s.Shutdown.Shutdown()
	if err := s.Wait(50 * time.Millisecond); err == nil {
		t.Error("expected a timeout while a hook is blocked")
	}
}
