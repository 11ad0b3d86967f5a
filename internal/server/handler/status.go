package handler

import (
	"net/http"
	"time"
)

// SessionInfo exposes the identity of the current simulation session.
type SessionInfo interface {
	IsRunning() bool
	SessionID() string
}

// StatusHandler serves the backend status (mode, session, uptime) for the
// dashboard.
type StatusHandler struct {
	mode      string
	session   SessionInfo
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(mode string, session SessionInfo, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, session: session, startedAt: startedAt}
}

// GetStatus responds with the run mode, session and process uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"running":        h.session.IsRunning(),
		"session_id":     h.session.SessionID(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
