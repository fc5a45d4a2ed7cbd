package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"conductor/internal/db"
	"conductor/internal/store"
)

// Pane is the slice of tmux access a runtime needs: incremental reads of
// its pane plus typed input. Satisfied by tmux.PaneReader.
type Pane interface {
	ReadNew() (string, error)
	SendLine(text string) error
}

// EventSink receives task lifecycle broadcasts. Optional; the local API's
// websocket hub implements it.
type EventSink interface {
	PublishEvent(op string, payload map[string]any)
}

const invalidResultMessage = "Invalid JSON result from tool"

// WorkerRuntime monitors one worker's pane. It owns a FIFO of pending task
// ids whose head is the task owed the next sentinel-framed result.
//
// Known limitation, preserved on purpose: when a START sentinel appears, the
// collected payload is bound to the FIFO head even if another process wrote
// it. A tool emitting a premature START before finishing the prior task's
// END will mis-attribute the payload.
type WorkerRuntime struct {
	workerID      string
	workspacePath string
	pane          Pane
	store         *store.Store
	hub           *CompletionHub
	events        EventSink
	logger        *slog.Logger

	sentinelStart string
	sentinelEnd   string
	interval      time.Duration

	mu           sync.Mutex
	fifo         []string
	collecting   bool
	collectingID string
	buf          []string

	startOnce sync.Once
}

type RuntimeOptions struct {
	WorkerID      string
	WorkspacePath string
	Pane          Pane
	Store         *store.Store
	Hub           *CompletionHub
	Events        EventSink
	Logger        *slog.Logger
	SentinelStart string
	SentinelEnd   string
	Interval      time.Duration
}

func NewWorkerRuntime(opts RuntimeOptions) *WorkerRuntime {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &WorkerRuntime{
		workerID:      opts.WorkerID,
		workspacePath: opts.WorkspacePath,
		pane:          opts.Pane,
		store:         opts.Store,
		hub:           opts.Hub,
		events:        opts.Events,
		logger:        opts.Logger,
		sentinelStart: opts.SentinelStart,
		sentinelEnd:   opts.SentinelEnd,
		interval:      interval,
	}
}

// Start launches the monitor loop once. Subsequent calls are no-ops.
func (r *WorkerRuntime) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.monitorLoop(ctx)
	})
}

// EnqueueTask appends the task to the FIFO and types its command into the
// pane. The task row is already in running state; the TaskRunner committed
// it before handing the id over.
func (r *WorkerRuntime) EnqueueTask(taskID, command string) error {
	r.mu.Lock()
	r.fifo = append(r.fifo, taskID)
	r.mu.Unlock()
	if err := r.pane.SendLine(command); err != nil {
		r.removeFromFIFO(taskID)
		return err
	}
	return nil
}

// MarkTaskFailed is an administrative hook for externally detected
// failures. It removes the id from the FIFO and nothing else; the task row
// is left for the caller to reconcile.
func (r *WorkerRuntime) MarkTaskFailed(taskID string) {
	r.removeFromFIFO(taskID)
}

// PendingTasks returns a copy of the FIFO, head first.
func (r *WorkerRuntime) PendingTasks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.fifo))
	copy(out, r.fifo)
	return out
}

func (r *WorkerRuntime) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		text, err := r.pane.ReadNew()
		if err != nil {
			r.logger.Warn("pane capture failed", "worker_id", r.workerID, "err", err)
			continue
		}
		if text != "" {
			r.ingest(text)
		}
	}
}

// ingest scans a batch of fresh pane output for sentinels and stdout. Plain
// stdout lines become one atomically committed event batch; each sentinel
// END finalizes the collected payload in its own transaction, after the
// events observed before it.
func (r *WorkerRuntime) ingest(text string) {
	var pending []db.TaskEvent
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := r.store.AppendTaskEvents(pending); err != nil {
			r.logger.Error("append task events failed", "worker_id", r.workerID, "err", err)
		}
		pending = nil
	}

	for _, raw := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(raw)
		if strings.Contains(stripped, r.sentinelStart) {
			r.mu.Lock()
			r.collecting = true
			r.collectingID = ""
			if len(r.fifo) > 0 {
				r.collectingID = r.fifo[0]
			}
			r.buf = nil
			boundTo := r.collectingID
			r.mu.Unlock()
			r.logger.Debug("detected sentinel start", "worker_id", r.workerID, "task_id", boundTo)
			continue
		}
		if strings.Contains(stripped, r.sentinelEnd) {
			flush()
			r.finalize()
			continue
		}
		r.mu.Lock()
		collecting := r.collecting
		var head string
		if len(r.fifo) > 0 {
			head = r.fifo[0]
		}
		if collecting {
			r.buf = append(r.buf, raw)
		}
		r.mu.Unlock()
		if collecting {
			continue
		}
		if head != "" {
			pending = append(pending, db.TaskEvent{
				TaskID:      head,
				Type:        db.EventStdoutChunk,
				PayloadJSON: mustJSON(map[string]any{"line": raw}),
			})
		}
	}
	flush()
}

// finalize commits the collected payload as the head task's terminal
// result. With no collecting task id (START seen on an empty FIFO) the
// buffer is discarded and no rows mutate.
func (r *WorkerRuntime) finalize() {
	r.mu.Lock()
	wasCollecting := r.collecting
	taskID := r.collectingID
	payloadText := strings.Join(r.buf, "\n")
	r.collecting = false
	r.collectingID = ""
	r.buf = nil
	r.mu.Unlock()
	if !wasCollecting || taskID == "" {
		return
	}
	r.logger.Debug("detected sentinel end", "worker_id", r.workerID, "task_id", taskID)

	status := db.TaskStatusCompleted
	errorMessage := ""
	resultJSON := ""
	var parsed any
	if err := json.Unmarshal([]byte(payloadText), &parsed); err != nil {
		status = db.TaskStatusFailed
		errorMessage = invalidResultMessage
	} else {
		if m, ok := parsed.(map[string]any); ok {
			if s, _ := m["status"].(string); s == "failed" || s == "error" {
				status = db.TaskStatusFailed
				errorMessage, _ = m["error"].(string)
			}
		}
		if b, err := json.Marshal(parsed); err == nil {
			resultJSON = string(b)
		}
	}

	flowFailed := ""
	err := r.store.Transaction(func(tx *store.Store) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return nil
		}
		now := time.Now().Unix()
		task.Status = status
		task.ResultJSON = resultJSON
		task.ErrorMessage = errorMessage
		task.FinishedAt = now
		if task.StartedAt == 0 {
			task.StartedAt = now
		}
		if err := tx.SaveTask(task); err != nil {
			return err
		}
		if err := tx.AppendTaskEvent(&db.TaskEvent{
			TaskID:      taskID,
			Type:        db.EventResultParsed,
			PayloadJSON: mustJSON(map[string]any{"result": parsedOrNil(parsed, resultJSON), "error": nullableString(errorMessage)}),
		}); err != nil {
			return err
		}

		r.removeFromFIFO(taskID)
		busy := len(r.PendingTasks()) > 0

		worker, err := tx.GetWorker(task.WorkerID)
		if err != nil {
			return err
		}
		if worker != nil {
			if busy {
				worker.Status = db.WorkerStatusBusy
			} else {
				worker.Status = db.WorkerStatusIdle
			}
			worker.LastSeenAt = now
			if err := tx.SaveWorker(worker); err != nil {
				return err
			}
		}

		if status == db.TaskStatusFailed && task.FlowID != "" {
			flow, err := tx.GetFlow(task.FlowID)
			if err != nil {
				return err
			}
			if flow != nil {
				reason := errorMessage
				if reason == "" {
					reason = "task_failed"
				}
				flow.Status = db.FlowStatusFailed
				flow.ResultJSON = mustJSON(map[string]any{"reason": reason, "task_id": taskID})
				if err := tx.SaveFlow(flow); err != nil {
					return err
				}
				flowFailed = flow.ID
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("finalize result failed", "worker_id", r.workerID, "task_id", taskID, "err", err)
		return
	}

	if r.hub != nil {
		r.hub.Publish(taskID, Outcome{Status: status, ErrorMessage: errorMessage})
	}
	if r.events != nil {
		r.events.PublishEvent("task.result_parsed", map[string]any{
			"task_id": taskID,
			"status":  status,
			"error":   nullableString(errorMessage),
		})
		if flowFailed != "" {
			r.events.PublishEvent("flow.finished", map[string]any{
				"flow_id": flowFailed,
				"status":  db.FlowStatusFailed,
			})
		}
	}
}

func (r *WorkerRuntime) removeFromFIFO(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range r.fifo {
		if id == taskID {
			r.fifo = append(r.fifo[:i], r.fifo[i+1:]...)
			return
		}
	}
}

func parsedOrNil(parsed any, resultJSON string) any {
	if resultJSON == "" {
		return nil
	}
	return parsed
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
