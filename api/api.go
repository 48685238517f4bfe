// Package api exposes the local status surface consumed by dashboards and
// operators: token diagnostics, recent audit rows, daily rollups, and a
// manual cycle trigger. Read-mostly; the only mutation is the trigger.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vuxmai/fankeeper/agent"
	"github.com/vuxmai/fankeeper/store"
	"github.com/vuxmai/fankeeper/token"
)

// Server serves the status API.
type Server struct {
	tokens *token.Manager
	store  *store.Store
	agent  *agent.Agent
	logger *slog.Logger
}

// NewServer creates a Server.
func NewServer(tokens *token.Manager, st *store.Store, ag *agent.Agent, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{tokens: tokens, store: st, agent: ag, logger: logger}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/status", s.handleStatus)
	r.Get("/actions", s.handleActions)
	r.Get("/summary/{day}", s.handleSummary)
	r.Post("/trigger", s.handleTrigger)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := s.tokens.TokenInfo(r.Context())
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	actions, err := s.store.Actions(r.Context(), limit)
	if err != nil {
		s.logger.Error("api: list actions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if actions == nil {
		actions = []store.ActionRecord{}
	}
	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	summary, err := s.store.SaveDailySummary(r.Context(), day)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	s.agent.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
