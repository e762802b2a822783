// Package server exposes runs, saved plans and voice tokens over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"meal-plan-coordinator/internal/diagnostics"
	"meal-plan-coordinator/internal/metrics"
	"meal-plan-coordinator/internal/nutrition"
	"meal-plan-coordinator/internal/planner"
	"meal-plan-coordinator/internal/run"
	"meal-plan-coordinator/internal/runstore"
	"meal-plan-coordinator/internal/shopping"
	"meal-plan-coordinator/internal/voicetoken"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// DefaultUserID scopes saved plans when a request carries no X-User-ID.
const DefaultUserID = "default_user"

// RunLauncher starts runs and exposes their diagnostics.
type RunLauncher interface {
	Launch(ctx context.Context, profile nutrition.Profile) (string, error)
	Diagnostics(ctx context.Context, runID string) (diagnostics.Snapshot, error)
}

// EventSource streams live run events.
type EventSource interface {
	Subscribe(runID string) (<-chan run.Event, func())
}

// TokenMinter issues voice session tokens.
type TokenMinter interface {
	Mint(ctx context.Context, sessionID string) (voicetoken.Grant, error)
}

// Deps are the collaborators of a Server. Store may be nil, in which case
// status reads report the store as unavailable.
type Deps struct {
	Store    runstore.Store
	Runs     RunLauncher
	Events   EventSource
	Plans    *planner.PlanRepository
	Lists    *shopping.Repository
	Voice    TokenMinter
	Telegram http.Handler
	DataDir  string
}

// Server routes HTTP requests.
type Server struct {
	deps      Deps
	router    *mux.Router
	heartbeat time.Duration
}

// New builds the router.
func New(deps Deps) *Server {
	s := &Server{deps: deps, router: mux.NewRouter(), heartbeat: 15 * time.Second}

	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/plan/runs", s.handleStartRun).Methods(http.MethodPost)
	r.HandleFunc("/plan/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/plan/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/plan/diagnostics", s.handleDiagnostics).Methods(http.MethodGet)

	r.HandleFunc("/plans", s.handleListPlans).Methods(http.MethodGet)
	r.HandleFunc("/plans", s.handleSavePlan).Methods(http.MethodPost)
	r.HandleFunc("/plans/active/day", s.handleSelectDay).Methods(http.MethodPut)
	r.HandleFunc("/plans/{id}", s.handleLoadPlan).Methods(http.MethodGet)
	r.HandleFunc("/plans/{id}", s.handleRenamePlan).Methods(http.MethodPatch)
	r.HandleFunc("/plans/{id}", s.handleDeletePlan).Methods(http.MethodDelete)
	r.HandleFunc("/plans/{id}/shopping-list", s.handleShoppingList).Methods(http.MethodGet)

	r.HandleFunc("/voice/token", s.handleVoiceToken).Methods(http.MethodPost)

	if deps.Telegram != nil {
		r.Handle("/telegram/webhook", deps.Telegram).Methods(http.MethodPost)
	}
	return s
}

// Handler returns the router wrapped with logging and CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(loggingMiddleware(s.router))
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "status", wrapper.statusCode, "duration", time.Since(start))
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps event streams working through the wrapper.
func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return DefaultUserID
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string            `json:"status"`
		System metrics.SysHealth `json:"system"`
	}{Status: "ok", System: metrics.GetSysHealth(s.deps.DataDir)})
}
