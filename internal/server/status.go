package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"meal-plan-coordinator/internal/run"
	"meal-plan-coordinator/internal/runstore"
)

const (
	minRunIDLength = 10
	maxRunIDLength = 128
)

// validRunID accepts ids of 10 to 128 letters, digits, '-' or '_'.
func validRunID(id string) bool {
	if len(id) < minRunIDLength || len(id) > maxRunIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

type statusResponse struct {
	Status    run.Status      `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
	LastPhase run.Phase       `json:"lastPhase,omitempty"`
	StartedAt *time.Time      `json:"startedAt,omitempty"`
}

func newStatusResponse(state run.State) statusResponse {
	switch s := state.(type) {
	case run.Running:
		return statusResponse{Status: run.StatusRunning, UpdatedAt: &s.UpdatedAt, LastPhase: s.Phase, StartedAt: &s.StartedAt}
	case run.Complete:
		return statusResponse{Status: run.StatusComplete, Payload: s.Payload, UpdatedAt: &s.UpdatedAt}
	case run.Failed:
		return statusResponse{Status: run.StatusFailed, Payload: s.Payload, UpdatedAt: &s.UpdatedAt}
	default:
		return statusResponse{Status: run.StatusUnknown}
	}
}

// handleStatus is the polling path clients use when the event stream drops.
// It only reads the store.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("runId")
	if !validRunID(runID) {
		writeError(w, http.StatusBadRequest, "invalid runId")
		return
	}

	if s.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: run.StatusUnknown})
		return
	}

	state, err := run.Lookup(r.Context(), s.deps.Store, runID)
	if errors.Is(err, runstore.ErrUnavailable) {
		slog.Warn("run store unavailable", "run_id", runID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: run.StatusUnknown})
		return
	}
	if err != nil {
		slog.Error("failed to read run status", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch state.(type) {
	case run.Complete, run.Failed:
		w.Header().Set("Cache-Control", "public, max-age=60")
	default:
		w.Header().Set("Cache-Control", "no-store")
	}
	writeJSON(w, http.StatusOK, newStatusResponse(state))
}
