package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// FeedStatus reports the current state of the upstream tick feed
// ("disconnected", "connecting", "authenticating", "active", or "mock").
type FeedStatus func() string

// HealthHandler serves the health-check endpoint. The service is only as
// healthy as its price feed, so the feed state rides along with the status.
type HealthHandler struct {
	feed   FeedStatus
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting the given feed status.
func NewHealthHandler(feed FeedStatus, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{feed: feed, logger: logger}
}

// HealthCheck responds with the server liveness and the upstream feed state.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"feed":      h.feed(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
