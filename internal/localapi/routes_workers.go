package localapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

func (s *Server) registerWorkerRoutes() {
	s.mux.HandleFunc("/workers", s.handleWorkers)
	s.mux.HandleFunc("/workers/", s.handleWorkerActions)
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateWorker(w, r)
	case http.MethodGet:
		workers, err := s.deps.Workers.ListWorkers()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "WORKER_LIST_FAILED", err.Error())
			return
		}
		respondOK(w, viewWorkers(workers))
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handleCreateWorker(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Label string `json:"label"`
	}
	if r.Body != nil {
		// An empty body means no label; anything else must decode.
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
			return
		}
	}
	worker, err := s.deps.Workers.CreateWorker(r.Context(), payload.Label)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "WORKER_CREATE_FAILED", err.Error())
		return
	}
	respondCreated(w, viewWorker(worker))
}

func (s *Server) handleWorkerActions(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/workers/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
			return
		}
		s.handleGetWorker(w, parts[0])
	case len(parts) == 2 && parts[0] != "" && parts[1] == "tasks":
		switch r.Method {
		case http.MethodGet:
			s.handleListWorkerTasks(w, parts[0])
		case http.MethodPost:
			s.handleCreateTask(w, r, parts[0])
		default:
			respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		}
	default:
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	}
}

func (s *Server) handleGetWorker(w http.ResponseWriter, workerID string) {
	worker, err := s.deps.Workers.GetWorker(workerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "WORKER_LOAD_FAILED", err.Error())
		return
	}
	if worker == nil {
		respondError(w, http.StatusNotFound, "WORKER_NOT_FOUND", "Worker not found")
		return
	}
	respondOK(w, viewWorker(worker))
}

func (s *Server) handleListWorkerTasks(w http.ResponseWriter, workerID string) {
	worker, err := s.deps.Workers.GetWorker(workerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "WORKER_LOAD_FAILED", err.Error())
		return
	}
	if worker == nil {
		respondError(w, http.StatusNotFound, "WORKER_NOT_FOUND", "Worker not found")
		return
	}
	tasks, err := s.deps.Store.ListWorkerTasks(workerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TASK_LIST_FAILED", err.Error())
		return
	}
	respondOK(w, viewTasks(tasks))
}
