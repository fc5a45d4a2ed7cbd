package localapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"conductor/internal/db"
)

// WorkerService provisions and reads workers. Satisfied by
// workermgr.Manager.
type WorkerService interface {
	CreateWorker(ctx context.Context, label string) (*db.Worker, error)
	ListWorkers() ([]db.Worker, error)
	GetWorker(id string) (*db.Worker, error)
}

// TaskService dispatches tool invocations. Satisfied by taskrunner.Runner.
type TaskService interface {
	CreateTask(ctx context.Context, workerID, tool string, spec json.RawMessage, flowID string) (*db.Task, error)
}

// FlowCoordinator starts a flow in the background. Satisfied by
// flow.Coordinator.
type FlowCoordinator interface {
	Kickoff(ctx context.Context, flowID string)
}

// FlowStore is the subset of the store the task and flow endpoints need.
type FlowStore interface {
	GetTask(id string) (*db.Task, error)
	ListWorkerTasks(workerID string) ([]db.Task, error)
	CreateFlow(f *db.Flow) error
	GetFlow(id string) (*db.Flow, error)
}

type Deps struct {
	Workers WorkerService
	Tasks   TaskService
	Flows   FlowCoordinator
	Store   FlowStore
	// Hub is optional; passing one lets other components broadcast through
	// the same websocket fan-out the server uses.
	Hub    *WSHub
	Logger *slog.Logger
}

type Server struct {
	deps Deps
	mux  *http.ServeMux
	hub  *WSHub
}

func NewServer(deps Deps) *Server {
	hub := deps.Hub
	if hub == nil {
		hub = NewWSHub()
	}
	s := &Server{deps: deps, mux: http.NewServeMux(), hub: hub}
	s.registerWorkerRoutes()
	s.registerTaskRoutes()
	s.registerFlowRoutes()
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/ws", s.hub.HandleWS)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// PublishEvent broadcasts one event to every websocket client.
func (s *Server) PublishEvent(op string, payload map[string]any) {
	s.hub.Publish(op, payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, map[string]any{"status": "ok"})
}

func respondOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

func respondCreated(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "data": data})
}

func respondError(w http.ResponseWriter, code int, errCode string, msg string) {
	writeJSON(w, code, map[string]any{"ok": false, "error": map[string]any{"code": errCode, "message": msg}})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
