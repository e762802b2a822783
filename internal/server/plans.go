package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"meal-plan-coordinator/internal/planner"
	"meal-plan-coordinator/internal/run"
	"meal-plan-coordinator/internal/runstore"

	"github.com/gorilla/mux"
)

type savePlanRequest struct {
	Name     string            `json:"name"`
	RunID    string            `json:"runId,omitempty"`
	MealPlan *planner.MealPlan `json:"mealPlan,omitempty"`
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.deps.Plans.List(r.Context(), userID(r))
	if err != nil {
		s.planError(w, err)
		return
	}
	if plans == nil {
		plans = []planner.PlanSummary{}
	}
	writeJSON(w, http.StatusOK, plans)
}

// handleSavePlan saves either a completed run's plan and shopping list or
// a plan sent in the body.
func (s *Server) handleSavePlan(w http.ResponseWriter, r *http.Request) {
	var req savePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	ctx := r.Context()
	user := userID(r)

	var artifact *run.Artifact
	plan := req.MealPlan
	if req.RunID != "" {
		a, status, msg := s.completedArtifact(r, req.RunID)
		if a == nil {
			writeError(w, status, msg)
			return
		}
		artifact = a
		plan = a.MealPlan
	}
	if plan == nil || len(plan.Days) == 0 {
		writeError(w, http.StatusBadRequest, "runId or mealPlan is required")
		return
	}

	planID, err := s.deps.Plans.Save(ctx, user, req.Name, plan)
	if err != nil {
		s.planError(w, err)
		return
	}
	if artifact != nil && s.deps.Lists != nil {
		if err := s.deps.Lists.Save(ctx, user, planID, artifact.ShoppingList); err != nil {
			slog.Error("failed to save shopping list", "plan_id", planID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	writeJSON(w, http.StatusCreated, struct {
		PlanID string `json:"planId"`
	}{planID})
}

// completedArtifact reads the artifact of a completed run, or returns the
// status and message to reply with.
func (s *Server) completedArtifact(r *http.Request, runID string) (*run.Artifact, int, string) {
	if !validRunID(runID) {
		return nil, http.StatusBadRequest, "invalid runId"
	}
	if s.deps.Store == nil {
		return nil, http.StatusServiceUnavailable, "run store unavailable"
	}
	state, err := run.Lookup(r.Context(), s.deps.Store, runID)
	if errors.Is(err, runstore.ErrUnavailable) {
		return nil, http.StatusServiceUnavailable, "run store unavailable"
	}
	if err != nil {
		slog.Error("failed to read run", "run_id", runID, "error", err)
		return nil, http.StatusInternalServerError, "internal error"
	}
	complete, ok := state.(run.Complete)
	if !ok {
		return nil, http.StatusConflict, "run is " + string(state.Status())
	}
	var a run.Artifact
	if err := json.Unmarshal(complete.Payload, &a); err != nil || a.MealPlan == nil {
		return nil, http.StatusInternalServerError, "run payload is not a meal plan"
	}
	return &a, 0, ""
}

func (s *Server) handleLoadPlan(w http.ResponseWriter, r *http.Request) {
	loaded, err := s.deps.Plans.Load(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		s.planError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loaded)
}

func (s *Server) handleRenamePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.deps.Plans.Rename(r.Context(), userID(r), mux.Vars(r)["id"], req.Name); err != nil {
		s.planError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Plans.Delete(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		s.planError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectDay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Day int `json:"day"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	day, err := s.deps.Plans.SelectDay(r.Context(), userID(r), req.Day)
	if err != nil {
		s.planError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		SelectedDay int `json:"selectedDay"`
	}{day})
}

func (s *Server) handleShoppingList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Lists == nil {
		writeError(w, http.StatusNotFound, "shopping list not found")
		return
	}
	saved, err := s.deps.Lists.GetByPlanID(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		s.planError(w, err)
		return
	}
	if saved == nil {
		writeError(w, http.StatusNotFound, "shopping list not found")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) planError(w http.ResponseWriter, err error) {
	if errors.Is(err, planner.ErrPlanNotFound) {
		writeError(w, http.StatusNotFound, "plan not found")
		return
	}
	slog.Error("saved plan request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
