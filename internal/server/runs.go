package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"meal-plan-coordinator/internal/diagnostics"
	"meal-plan-coordinator/internal/nutrition"
	"meal-plan-coordinator/internal/run"
	"meal-plan-coordinator/internal/runstore"
)

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var profile nutrition.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid profile: %v", err))
		return
	}

	runID, err := s.deps.Runs.Launch(r.Context(), profile)
	switch {
	case errors.Is(err, run.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, runstore.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "run store unavailable")
	case err != nil:
		slog.Error("failed to start run", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusAccepted, struct {
			RunID string `json:"runId"`
		}{runID})
	}
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runID := q.Get("runId")
	if !validRunID(runID) {
		writeError(w, http.StatusBadRequest, "invalid runId")
		return
	}
	stream := q.Get("stream")
	if stream == "" {
		stream = diagnostics.StreamSteps
	}
	switch stream {
	case diagnostics.StreamSteps, diagnostics.StreamFailedIngredients, diagnostics.StreamMacroDebug:
	default:
		writeError(w, http.StatusBadRequest, "unknown stream")
		return
	}

	snap, err := s.deps.Runs.Diagnostics(r.Context(), runID)
	switch {
	case errors.Is(err, runstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "no diagnostics for run")
		return
	case errors.Is(err, runstore.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "run store unavailable")
		return
	case err != nil:
		slog.Error("failed to read diagnostics", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.jsonl"`, runID, stream))
	if err := diagnostics.WriteJSONL(w, snap, stream); err != nil {
		slog.Warn("failed to stream diagnostics", "run_id", runID, "error", err)
	}
}
