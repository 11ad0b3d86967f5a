package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// FeedStatus reports the liveness of the simulator and its feed.
type FeedStatus interface {
	IsRunning() bool
	FeedConnected() bool
	FeedHealthy(maxIdle time.Duration) bool
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	status  FeedStatus
	maxIdle time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. maxIdle is the longest gap
// between feed messages still considered healthy.
func NewHealthHandler(status FeedStatus, maxIdle time.Duration, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{status: status, maxIdle: maxIdle, logger: logger}
}

// HealthCheck reports process and feed health. A running simulator whose
// feed is disconnected or idle answers 503 with status "degraded".
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	running := h.status.IsRunning()
	healthy := h.status.FeedHealthy(h.maxIdle)

	status, code := "ok", http.StatusOK
	if running && !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"running":        running,
		"feed_connected": h.status.FeedConnected(),
		"feed_healthy":   healthy,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
