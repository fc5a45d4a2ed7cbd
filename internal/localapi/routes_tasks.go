package localapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"conductor/internal/taskrunner"
)

func (s *Server) registerTaskRoutes() {
	s.mux.HandleFunc("/tasks/", s.handleTaskActions)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request, workerID string) {
	var payload struct {
		Tool   string          `json:"tool"`
		Spec   json.RawMessage `json:"spec"`
		FlowID string          `json:"flow_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.Tool) == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "tool is required")
		return
	}
	task, err := s.deps.Tasks.CreateTask(r.Context(), workerID, payload.Tool, payload.Spec, payload.FlowID)
	if err != nil {
		switch {
		case errors.Is(err, taskrunner.ErrWorkerNotFound):
			respondError(w, http.StatusNotFound, "WORKER_NOT_FOUND", "Worker not found")
		case errors.Is(err, taskrunner.ErrUnknownTool):
			respondError(w, http.StatusBadRequest, "UNSUPPORTED_TOOL", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "TASK_CREATE_FAILED", err.Error())
		}
		return
	}
	respondCreated(w, viewTask(task))
}

func (s *Server) handleTaskActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if taskID == "" || strings.Contains(taskID, "/") {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	task, err := s.deps.Store.GetTask(taskID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TASK_LOAD_FAILED", err.Error())
		return
	}
	if task == nil {
		respondError(w, http.StatusNotFound, "TASK_NOT_FOUND", "Task not found")
		return
	}
	respondOK(w, viewTask(task))
}
