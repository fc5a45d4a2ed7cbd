package taskrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"conductor/internal/db"
	"conductor/internal/store"
)

var (
	ErrWorkerNotFound = errors.New("worker not found")
	ErrUnknownTool    = errors.New("unsupported tool")
)

// toolShims maps tool names to the shell shim run inside the pane. The shim
// receives the spec file path and prints the sentinel-framed result.
var toolShims = map[string]string{
	"codex":      "run_codex_task.sh",
	"claude":     "run_claude_task.sh",
	"gemini":     "run_gemini_task.sh",
	"critic_llm": "run_critic_task.sh",
}

// TaskQueue is the runtime handle the runner enqueues on.
type TaskQueue interface {
	EnqueueTask(taskID, command string) error
}

// EventSink receives task lifecycle broadcasts. Optional.
type EventSink interface {
	PublishEvent(op string, payload map[string]any)
}

type Deps struct {
	Store         *store.Store
	ShimsDir      string
	EnsureRuntime func(ctx context.Context, workerID, session, workspace string) TaskQueue
	Events        EventSink
	Logger        *slog.Logger
}

// Runner turns task requests into running tasks: row, spec file, shim
// command, enqueue — in that order, so the task row is committed before the
// monitor can observe any of its output.
type Runner struct {
	deps Deps
}

func New(deps Deps) *Runner {
	return &Runner{deps: deps}
}

// CreateTask validates, persists and dispatches one tool invocation.
// Returns ErrWorkerNotFound or ErrUnknownTool for caller-side mistakes.
func (r *Runner) CreateTask(ctx context.Context, workerID, tool string, spec json.RawMessage, flowID string) (*db.Task, error) {
	worker, err := r.deps.Store.GetWorker(workerID)
	if err != nil {
		return nil, err
	}
	if worker == nil {
		return nil, ErrWorkerNotFound
	}
	shim, ok := toolShims[tool]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTool, tool)
	}

	if len(spec) == 0 {
		spec = json.RawMessage("{}")
	}
	task := &db.Task{
		WorkerID: workerID,
		FlowID:   flowID,
		Tool:     tool,
		Status:   db.TaskStatusQueued,
		SpecJSON: string(spec),
	}
	if err := r.deps.Store.CreateTask(task); err != nil {
		return nil, err
	}

	if err := r.writeSpecFile(worker.WorkspacePath, task.ID, spec); err != nil {
		return nil, err
	}
	command := buildCommand(r.deps.ShimsDir, shim, "specs/"+task.ID+".json")

	now := time.Now().Unix()
	err = r.deps.Store.Transaction(func(tx *store.Store) error {
		task.Status = db.TaskStatusRunning
		task.StartedAt = now
		if err := tx.SaveTask(task); err != nil {
			return err
		}
		worker.Status = db.WorkerStatusBusy
		if err := tx.SaveWorker(worker); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]any{"state": "running", "command": command})
		return tx.AppendTaskEvent(&db.TaskEvent{
			TaskID:      task.ID,
			Type:        db.EventStateChange,
			PayloadJSON: string(payload),
		})
	})
	if err != nil {
		return nil, err
	}

	if r.deps.Events != nil {
		r.deps.Events.PublishEvent("task.state_change", map[string]any{
			"task_id":   task.ID,
			"worker_id": workerID,
			"state":     db.TaskStatusRunning,
		})
	}

	queue := r.deps.EnsureRuntime(ctx, workerID, worker.TmuxSession, worker.WorkspacePath)
	if err := queue.EnqueueTask(task.ID, command); err != nil {
		return nil, fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}
	r.deps.Logger.Info("task dispatched", "task_id", task.ID, "worker_id", workerID, "tool", tool)
	return task, nil
}

func (r *Runner) writeSpecFile(workspace, taskID string, spec json.RawMessage) error {
	specsDir := filepath.Join(workspace, "specs")
	if err := os.MkdirAll(specsDir, 0o755); err != nil {
		return fmt.Errorf("create specs dir: %w", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, spec, "", "  "); err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}
	path := filepath.Join(specsDir, taskID+".json")
	if err := os.WriteFile(path, []byte(pretty.String()), 0o644); err != nil {
		return fmt.Errorf("write spec file: %w", err)
	}
	return nil
}

// buildCommand shell-quotes both paths; the spec path stays relative to the
// workspace where the pane's shell is parked.
func buildCommand(shimsDir, shim, specPath string) string {
	return fmt.Sprintf("bash %s %s", shellQuote(filepath.Join(shimsDir, shim)), shellQuote(specPath))
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
