package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serveHealth(s *HealthServer, path string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	s.Mount(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestNewHealthServer(t *testing.T) {
	s := NewHealthServer("1.0.0")
	if s.version != "1.0.0" {
		t.Fatalf("expected version 1.0.0, got %s", s.version)
	}
	if s.ready {
		t.Fatal("expected not ready initially")
	}
	if !s.live {
		t.Fatal("expected live initially")
	}
}

func TestHealthServer_HandleHealth(t *testing.T) {
	s := NewHealthServer("1.0.0")
	s.RegisterCheck("test", func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusHealthy, Message: "all good"}
	})

	w := serveHealth(s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != HealthStatusHealthy || resp.Version != "1.0.0" || len(resp.Checks) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHealthServer_HandleHealth_Aggregation(t *testing.T) {
	tests := []struct {
		name   string
		status []HealthStatus
		want   HealthStatus
		code   int
	}{
		{"all healthy", []HealthStatus{HealthStatusHealthy, HealthStatusHealthy}, HealthStatusHealthy, http.StatusOK},
		{"degraded still serves", []HealthStatus{HealthStatusHealthy, HealthStatusDegraded}, HealthStatusDegraded, http.StatusOK},
		{"unhealthy wins", []HealthStatus{HealthStatusDegraded, HealthStatusUnhealthy, HealthStatusHealthy}, HealthStatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewHealthServer("")
			for i, st := range tt.status {
				st := st
				s.RegisterCheck(string(rune('a'+i)), func(ctx context.Context) HealthCheck {
					return HealthCheck{Status: st}
				})
			}

			w := serveHealth(s, "/health")
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, w.Code)
			}
			var resp HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, resp.Status)
			}
			if len(resp.Checks) != len(tt.status) || resp.Checks[0].Name != "a" {
				t.Fatalf("checks should be reported by name, got %+v", resp.Checks)
			}
		})
	}
}

func TestHealthServer_Probes(t *testing.T) {
	s := NewHealthServer("")

	if w := serveHealth(s, "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", w.Code)
	}
	s.SetReady(true)
	if w := serveHealth(s, "/readyz"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 once ready, got %d", w.Code)
	}

	if w := serveHealth(s, "/livez"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 while live, got %d", w.Code)
	}
	s.SetLive(false)
	if w := serveHealth(s, "/live"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when not live, got %d", w.Code)
	}
}

func TestGraphStoreHealthChecker(t *testing.T) {
	ok := GraphStoreHealthChecker(func(ctx context.Context) error { return nil })
	if got := ok(context.Background()); got.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %s", got.Status)
	}

	down := GraphStoreHealthChecker(func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	if got := down(context.Background()); got.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", got.Status)
	}
}

func TestPassHealthChecker(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		err  error
		want HealthStatus
	}{
		{"no pass yet", time.Time{}, nil, HealthStatusHealthy},
		{"last pass ok", at, nil, HealthStatusHealthy},
		{"last pass failed", at, errors.New("boom"), HealthStatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := PassHealthChecker(func() (time.Time, error) { return tt.at, tt.err })
			got := check(context.Background())
			if got.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got.Status)
			}
			if !tt.at.IsZero() && got.Details["last_pass"] != "2026-03-01T12:00:00Z" {
				t.Fatalf("unexpected details %v", got.Details)
			}
		})
	}
}
