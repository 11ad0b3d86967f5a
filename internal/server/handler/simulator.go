package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// maxScheduleSteps bounds the schedule length a client may request.
const maxScheduleSteps = 1000

// SimulatorService defines the methods that the simulator handler requires.
type SimulatorService interface {
	Start()
	Stop()
	IsRunning() bool
	SessionID() string
	Params() domain.SimulatorParams
	UpdateParams(domain.SimulatorParams) error
	LatestOutput() (domain.SimulatorOutput, error)
	Stats() domain.OrderbookStats
	AverageLatency() float64
	ExecutionSchedule(numSteps int) []float64
}

// SimulatorHandler serves the simulator control and query endpoints.
type SimulatorHandler struct {
	sim    SimulatorService
	logger *slog.Logger
}

// NewSimulatorHandler creates a SimulatorHandler.
func NewSimulatorHandler(sim SimulatorService, logger *slog.Logger) *SimulatorHandler {
	return &SimulatorHandler{sim: sim, logger: logger}
}

type runStateResponse struct {
	Running   bool   `json:"running"`
	SessionID string `json:"session_id,omitempty"`
}

type statsResponse struct {
	domain.OrderbookStats
	AverageLatencyUs float64 `json:"average_latency_us"`
}

type scheduleResponse struct {
	Steps    int       `json:"steps"`
	Schedule []float64 `json:"schedule"`
}

// GetParams returns the parameters in force.
// GET /api/params
func (h *SimulatorHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sim.Params())
}

// UpdateParams replaces the simulator parameters. Fields omitted from the
// body keep their current values.
// PUT /api/params
func (h *SimulatorHandler) UpdateParams(w http.ResponseWriter, r *http.Request) {
	params := h.sim.Params()
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sim.UpdateParams(params); err != nil {
		if errors.Is(err, domain.ErrInvalidParams) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: update params failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update parameters")
		return
	}

	writeJSON(w, http.StatusOK, h.sim.Params())
}

// Start starts the simulator.
// POST /api/simulator/start
func (h *SimulatorHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.sim.Start()
	writeJSON(w, http.StatusOK, runStateResponse{Running: h.sim.IsRunning(), SessionID: h.sim.SessionID()})
}

// Stop stops the simulator.
// POST /api/simulator/stop
func (h *SimulatorHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.sim.Stop()
	writeJSON(w, http.StatusOK, runStateResponse{Running: h.sim.IsRunning()})
}

// GetOutput returns the latest simulator output.
// GET /api/output
func (h *SimulatorHandler) GetOutput(w http.ResponseWriter, r *http.Request) {
	out, err := h.sim.LatestOutput()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no output yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get output")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetStats returns the latest orderbook statistics.
// GET /api/stats
func (h *SimulatorHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		OrderbookStats:   h.sim.Stats(),
		AverageLatencyUs: h.sim.AverageLatency(),
	})
}

// GetSchedule returns the optimal execution schedule for the configured
// quantity.
// GET /api/schedule?steps=10
func (h *SimulatorHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	steps, ok := queryInt(r, "steps", 0)
	if !ok || steps < 0 || steps > maxScheduleSteps {
		writeError(w, http.StatusBadRequest, "steps must be an integer between 0 and 1000")
		return
	}

	schedule := h.sim.ExecutionSchedule(steps)
	writeJSON(w, http.StatusOK, scheduleResponse{Steps: len(schedule), Schedule: schedule})
}
