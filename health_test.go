package p2pmidi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsHealthy(t *testing.T) {
	n := newTestNode(t, 44)

	if n.IsHealthy() {
		t.Error("node should not be healthy before start")
	}

	startTestNode(t, n)
	if !n.IsHealthy() {
		t.Error("node should be healthy after start")
	}
}

func TestReadinessChecks(t *testing.T) {
	n := newTestNode(t, 44)

	status := n.ReadinessChecks()
	if status.Healthy {
		t.Error("status should be unhealthy before start")
	}

	byName := make(map[string]CheckResult)
	for _, c := range status.Checks {
		byName[c.Name] = c
	}

	if c, ok := byName["node_started"]; !ok || c.Healthy {
		t.Error("node_started check should exist and fail before start")
	}
	if c, ok := byName["host_running"]; !ok || !c.Healthy {
		t.Error("host_running check should pass; the host exists from New")
	}
	if c, ok := byName["peer_book"]; !ok || !c.Healthy {
		t.Error("peer_book check should pass")
	}
	// Informational checks never fail readiness.
	if c, ok := byName["external_addrs"]; !ok || !c.Healthy {
		t.Error("external_addrs check should be informational")
	}
	if c, ok := byName["relay_connected"]; !ok || !c.Healthy {
		t.Error("relay_connected check should be informational")
	}

	startTestNode(t, n)
	status = n.ReadinessChecks()
	if !status.Healthy {
		t.Errorf("status should be healthy after start: %+v", status.Checks)
	}
}

func TestHealthHandler(t *testing.T) {
	n := newTestNode(t, 44)
	handler := HealthHandler(n)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before start", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if status.Healthy {
		t.Error("body should report unhealthy")
	}

	startTestNode(t, n)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 after start", rec.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	n := newTestNode(t, 44)
	handler := LivenessHandler(n)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before start", rec.Code)
	}

	startTestNode(t, n)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 after start", rec.Code)
	}
	if got := rec.Body.String(); got != `{"healthy":true}` {
		t.Errorf("body = %q", got)
	}
}
