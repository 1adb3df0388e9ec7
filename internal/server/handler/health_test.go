package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckReportsFeedState(t *testing.T) {
	h := NewHealthHandler(func() string { return "active" }, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status    string `json:"status"`
		Feed      string `json:"feed"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Feed != "active" {
		t.Errorf("feed = %q, want active", body.Feed)
	}
	if body.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestHealthCheckSurfacesDegradedFeed(t *testing.T) {
	h := NewHealthHandler(func() string { return "disconnected" }, discardLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var body struct {
		Feed string `json:"feed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Feed != "disconnected" {
		t.Errorf("feed = %q, want disconnected", body.Feed)
	}
}
