package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"meal-plan-coordinator/internal/voicetoken"
)

func (s *Server) handleVoiceToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if s.deps.Voice == nil {
		writeJSON(w, http.StatusOK, voicetoken.Grant{Mode: voicetoken.ModeClient})
		return
	}

	grant, err := s.deps.Voice.Mint(r.Context(), req.SessionID)
	if err != nil {
		slog.Error("failed to mint voice token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, grant)
}
