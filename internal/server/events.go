package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"meal-plan-coordinator/internal/run"
	"meal-plan-coordinator/internal/runstore"
)

// handleEvents streams run events as Server-Sent Events. The first event is
// the stored state, so a reconnecting client starts from the record.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("runId")
	if !validRunID(runID) {
		writeError(w, http.StatusBadRequest, "invalid runId")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before reading the record so no transition falls in between.
	events, cancel := s.deps.Events.Subscribe(runID)
	defer cancel()

	state := run.State(run.Unknown{})
	if s.deps.Store != nil {
		st, err := run.Lookup(r.Context(), s.deps.Store, runID)
		switch {
		case err == nil:
			state = st
		case errors.Is(err, runstore.ErrUnavailable):
			slog.Warn("run store unavailable for event replay", "run_id", runID, "error", err)
		default:
			slog.Error("failed to read run for event replay", "run_id", runID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "state", newStatusResponse(state)); err != nil {
		return
	}
	flusher.Flush()

	switch state.(type) {
	case run.Complete, run.Failed:
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// The record is authoritative; a terminal event may have been dropped.
			if st, ok := s.terminalState(r, runID); ok {
				if err := writeEvent(w, "state", newStatusResponse(st)); err == nil {
					flusher.Flush()
				}
				return
			}
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, string(e.Type), e); err != nil {
				return
			}
			flusher.Flush()
			if e.Terminal() {
				return
			}
		}
	}
}

func (s *Server) terminalState(r *http.Request, runID string) (run.State, bool) {
	if s.deps.Store == nil {
		return nil, false
	}
	st, err := run.Lookup(r.Context(), s.deps.Store, runID)
	if err != nil {
		return nil, false
	}
	switch st.(type) {
	case run.Complete, run.Failed:
		return st, true
	}
	return nil, false
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
