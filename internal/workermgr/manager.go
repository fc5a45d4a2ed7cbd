package workermgr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"conductor/internal/db"
	"conductor/internal/store"
	"conductor/internal/tmux"
)

// ProcessStarter launches a detached background process and returns its pid.
// Returning (0, os.ErrNotExist-wrapped error) signals a missing binary.
type ProcessStarter func(argv []string) (int64, error)

// StartProcess is the production ProcessStarter: spawn detached with
// stdout/stderr discarded.
func StartProcess(argv []string) (int64, error) {
	return startDetached(argv)
}

type Deps struct {
	Store         *store.Store
	Adapter       *tmux.Adapter
	WorkspaceRoot string
	TmuxBin       string
	TtydBin       string
	TtydHost      string
	TtydPortStart int
	DefaultCLI    string
	EnsureRuntime func(ctx context.Context, workerID, session, workspace string)
	StartProc     ProcessStarter
	Logger        *slog.Logger
}

// Manager provisions workers: workspace directories, a detached tmux
// session, an optional ttyd terminal, worker.json metadata and the db row.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	nextPort int
}

func New(deps Deps) *Manager {
	if deps.StartProc == nil {
		deps.StartProc = StartProcess
	}
	return &Manager{deps: deps, nextPort: deps.TtydPortStart}
}

// CreateWorker provisions a fresh worker. A missing ttyd binary is
// tolerated: the worker comes up without a browser terminal.
func (m *Manager) CreateWorker(ctx context.Context, label string) (*db.Worker, error) {
	workerID := uuid.NewString()
	workspace := filepath.Join(m.deps.WorkspaceRoot, workerID)
	for _, dir := range []string{workspace, filepath.Join(workspace, "specs"), filepath.Join(workspace, "logs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace: %w", err)
		}
	}

	session := "worker_" + workerID[:8]
	if err := m.deps.Adapter.NewSession(session, workspace); err != nil {
		return nil, fmt.Errorf("start tmux session %s: %w", session, err)
	}
	ttydURL, ttydPID := m.startTtyd(session)

	if err := m.writeMetadata(workspace, workerID, label, session); err != nil {
		return nil, err
	}

	worker := &db.Worker{
		ID:            workerID,
		Label:         label,
		Status:        db.WorkerStatusIdle,
		TmuxSession:   session,
		WorkspacePath: workspace,
		TtydURL:       ttydURL,
		TtydPID:       ttydPID,
	}
	if err := m.deps.Store.CreateWorker(worker); err != nil {
		return nil, err
	}
	if m.deps.EnsureRuntime != nil {
		m.deps.EnsureRuntime(ctx, worker.ID, worker.TmuxSession, worker.WorkspacePath)
	}
	m.deps.Logger.Info("worker created", "worker_id", workerID, "session", session, "ttyd_url", ttydURL)
	return worker, nil
}

func (m *Manager) ListWorkers() ([]db.Worker, error) {
	return m.deps.Store.ListWorkers()
}

func (m *Manager) GetWorker(id string) (*db.Worker, error) {
	return m.deps.Store.GetWorker(id)
}

// startTtyd allocates the next port and spawns ttyd attached to the
// session. Ports advance even on failure so retries never collide.
func (m *Manager) startTtyd(session string) (string, int64) {
	m.mu.Lock()
	port := m.nextPort
	m.nextPort++
	m.mu.Unlock()

	argv := []string{m.deps.TtydBin, "-p", fmt.Sprintf("%d", port), m.deps.TmuxBin, "attach", "-t", session}
	pid, err := m.deps.StartProc(argv)
	if err != nil {
		m.deps.Logger.Warn("ttyd unavailable", "session", session, "error", err)
		return "", 0
	}
	return fmt.Sprintf("%s:%d", m.deps.TtydHost, port), pid
}

func (m *Manager) writeMetadata(workspace, workerID, label, session string) error {
	meta := map[string]any{
		"id":           workerID,
		"label":        nullableString(label),
		"tmux_session": session,
		"workspace":    workspace,
		"cli_type":     m.deps.DefaultCLI,
		"created_at":   time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode worker.json: %w", err)
	}
	path := filepath.Join(workspace, "worker.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write worker.json: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
