package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/archon-research/cluster-liquidator/internal/ports/inbound"
)

// mockHealthChecker is a test implementation of HealthChecker
type mockHealthChecker struct {
	ready    bool
	healthy  bool
	statuses map[string]inbound.TaskStatus
}

func (m *mockHealthChecker) IsReady() bool                           { return m.ready }
func (m *mockHealthChecker) IsHealthy() bool                         { return m.healthy }
func (m *mockHealthChecker) Statuses() map[string]inbound.TaskStatus { return m.statuses }

func TestHealthServer_Ready(t *testing.T) {
	tests := []struct {
		name           string
		ready          bool
		shuttingDown   bool
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "ready returns 200",
			ready:          true,
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name:           "not ready returns 503",
			ready:          false,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "not_ready",
		},
		{
			name:           "shutting down returns 503",
			ready:          true,
			shuttingDown:   true,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "shutting_down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &mockHealthChecker{ready: tt.ready, healthy: true}
			var shuttingDown atomic.Bool
			shuttingDown.Store(tt.shuttingDown)

			hs := NewHealthServer(HealthServerConfig{Addr: ":0"}, checker, &shuttingDown)

			req := httptest.NewRequest("GET", "/health/ready", nil)
			w := httptest.NewRecorder()
			hs.handleReady(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["status"] != tt.expectedBody {
				t.Errorf("expected status %q, got %q", tt.expectedBody, resp["status"])
			}
		})
	}
}

func TestHealthServer_Live(t *testing.T) {
	tests := []struct {
		name           string
		healthy        bool
		expectedStatus int
		expectedBody   string
	}{
		{"healthy returns 200", true, http.StatusOK, "healthy"},
		{"critical task returns 503", false, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := NewHealthServer(HealthServerConfig{Addr: ":0"}, &mockHealthChecker{ready: true, healthy: tt.healthy}, nil)

			w := httptest.NewRecorder()
			hs.handleLive(w, httptest.NewRequest("GET", "/health/live", nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["status"] != tt.expectedBody {
				t.Errorf("expected status %q, got %q", tt.expectedBody, resp["status"])
			}
		})
	}
}

func TestHealthServer_HealthReportsTasks(t *testing.T) {
	checker := &mockHealthChecker{
		ready:   true,
		healthy: true,
		statuses: map[string]inbound.TaskStatus{
			"fetch":       {Healthy: true, LastRun: time.Unix(1700000000, 0).UTC()},
			"liquidation": {Healthy: false, LastError: errors.New("nonce too low").Error(), ConsecutiveFailures: 2},
		},
	}
	hs := NewHealthServer(HealthServerConfig{Addr: ":0"}, checker, nil)

	w := httptest.NewRecorder()
	hs.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Status string                        `json:"status"`
		Tasks  map[string]inbound.TaskStatus `json:"tasks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected ok, got %q", resp.Status)
	}
	liq := resp.Tasks["liquidation"]
	if liq.Healthy || liq.LastError != "nonce too low" || liq.ConsecutiveFailures != 2 {
		t.Errorf("unexpected liquidation status %+v", liq)
	}
	if !resp.Tasks["fetch"].Healthy {
		t.Error("expected fetch to be healthy")
	}
}

func TestHealthServer_HealthDegraded(t *testing.T) {
	hs := NewHealthServer(HealthServerConfig{Addr: ":0"}, &mockHealthChecker{ready: false, healthy: true}, nil)

	w := httptest.NewRecorder()
	hs.handleHealth(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "degraded" {
		t.Errorf("expected degraded, got %v", resp["status"])
	}
}

func TestHealthServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: "active_clusters", Help: "test"}).Set(4)

	hs := NewHealthServer(HealthServerConfig{Addr: ":0", Gatherer: reg}, &mockHealthChecker{}, nil)

	w := httptest.NewRecorder()
	hs.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "active_clusters 4") {
		t.Errorf("expected gauge in exposition, got:\n%s", body)
	}
}
