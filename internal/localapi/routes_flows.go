package localapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"conductor/internal/db"
	"conductor/internal/flow"
)

func (s *Server) registerFlowRoutes() {
	s.mux.HandleFunc("/flows/design-refinement", s.handleStartDesignFlow)
	s.mux.HandleFunc("/flows/", s.handleFlowActions)
}

func (s *Server) handleStartDesignFlow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if s.deps.Flows == nil {
		respondError(w, http.StatusInternalServerError, "FLOW_COORDINATOR_UNINITIALIZED", "Flow coordinator not initialized")
		return
	}
	var payload struct {
		WorkerID      string `json:"worker_id"`
		InitialPrompt string `json:"initial_prompt"`
		MaxIterations int    `json:"max_iterations"`
		MinScore      int    `json:"min_score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if payload.WorkerID == "" || strings.TrimSpace(payload.InitialPrompt) == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "worker_id and initial_prompt are required")
		return
	}
	if payload.MaxIterations <= 0 {
		payload.MaxIterations = flow.DefaultMaxIterations
	}
	if payload.MinScore <= 0 {
		payload.MinScore = flow.DefaultMinScore
	}

	worker, err := s.deps.Workers.GetWorker(payload.WorkerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "WORKER_LOAD_FAILED", err.Error())
		return
	}
	if worker == nil {
		respondError(w, http.StatusNotFound, "WORKER_NOT_FOUND", "Worker not found")
		return
	}

	config, _ := json.Marshal(map[string]any{
		"initial_prompt": payload.InitialPrompt,
		"max_iterations": payload.MaxIterations,
		"min_score":      payload.MinScore,
	})
	flow := &db.Flow{
		Type:       db.FlowTypeDesignRefinement,
		WorkerID:   payload.WorkerID,
		Status:     db.FlowStatusRunning,
		ConfigJSON: string(config),
		StateJSON:  "{}",
	}
	if err := s.deps.Store.CreateFlow(flow); err != nil {
		respondError(w, http.StatusInternalServerError, "FLOW_CREATE_FAILED", err.Error())
		return
	}
	// The flow outlives the request; never tie it to the request context.
	s.deps.Flows.Kickoff(context.Background(), flow.ID)
	respondCreated(w, viewFlow(flow))
}

func (s *Server) handleFlowActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	flowID := strings.TrimPrefix(r.URL.Path, "/flows/")
	if flowID == "" || strings.Contains(flowID, "/") {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	flow, err := s.deps.Store.GetFlow(flowID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "FLOW_LOAD_FAILED", err.Error())
		return
	}
	if flow == nil {
		respondError(w, http.StatusNotFound, "FLOW_NOT_FOUND", "Flow not found")
		return
	}
	respondOK(w, viewFlow(flow))
}
