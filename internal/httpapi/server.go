// Package httpapi exposes the research loop over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ai/researchd/internal/agents"
	"github.com/kestrel-ai/researchd/internal/models"
	"github.com/kestrel-ai/researchd/internal/search"
)

// Runner executes one research task; implemented by loop.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req models.RunRequest) models.AgentResponse
}

// ProfileLister exposes the loaded agent profiles.
type ProfileLister interface {
	List() []agents.Profile
}

// Handler serves the research endpoints.
type Handler struct {
	runner  Runner
	search  search.Client
	agents  ProfileLister
	logger  *zap.Logger
	timeout time.Duration
}

// NewHandler wires the HTTP surface. timeout bounds a whole /run request;
// zero means 10 minutes.
func NewHandler(runner Runner, searchClient search.Client, profiles ProfileLister, logger *zap.Logger, timeout time.Duration) *Handler {
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	return &Handler{
		runner:  runner,
		search:  searchClient,
		agents:  profiles,
		logger:  logger,
		timeout: timeout,
	}
}

// RegisterRoutes attaches all handlers to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/run", h.handleRun)
	mux.HandleFunc("/search", h.handleSearch)
	mux.HandleFunc("/agents", h.handleAgents)
	mux.HandleFunc("/healthz", h.handleHealth)
}

type runOptions struct {
	MaxIters   int `json:"max_iters"`
	MaxQueries int `json:"max_queries"`
	MaxSources int `json:"max_sources"`
}

type runHTTPRequest struct {
	Task      string      `json:"task"`
	AgentName string      `json:"agent_name"`
	AgentID   string      `json:"agent_id"`
	Options   *runOptions `json:"options"`
}

// handleRun: POST /run {task, agent_name?, agent_id?, options?}
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req runHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse("invalid request body", nil))
		return
	}
	if req.Task == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse("task is required", nil))
		return
	}

	runReq := models.RunRequest{
		Task:      req.Task,
		AgentName: req.AgentName,
		AgentID:   req.AgentID,
	}
	if req.Options != nil {
		runReq.MaxIters = req.Options.MaxIters
		runReq.MaxQueries = req.Options.MaxQueries
		runReq.MaxSources = req.Options.MaxSources
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := h.runner.Run(ctx, runReq)
	writeJSON(w, http.StatusOK, resp)
}

type searchHTTPRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// handleSearch: POST /search {query, limit} — exposes the raw search
// capability without the loop.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req searchHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	results, err := h.search.Search(ctx, req.Query, req.Limit)
	if err != nil {
		h.logger.Error("Search request failed", zap.String("query", req.Query), zap.Error(err))
		http.Error(w, `{"error":"search failed"}`, http.StatusBadGateway)
		return
	}
	if results == nil {
		results = []models.Source{}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleAgents: GET /agents — lists loaded agent profiles without prompts.
func (h *Handler) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	type agentSummary struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	profiles := h.agents.List()
	summaries := make([]agentSummary, 0, len(profiles))
	for _, p := range profiles {
		summaries = append(summaries, agentSummary{ID: p.ID, Name: p.Name})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
