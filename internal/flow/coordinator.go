package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"conductor/internal/db"
	"conductor/internal/runtime"
	"conductor/internal/store"
)

const (
	DefaultMaxIterations = 6
	DefaultMinScore      = 9
)

// Config is the flow's immutable configuration, stored as config_json on the
// flow row.
type Config struct {
	InitialPrompt string `json:"initial_prompt"`
	MaxIterations int    `json:"max_iterations"`
	MinScore      int    `json:"min_score"`
}

// TaskCreator dispatches one tool invocation. Satisfied by taskrunner.Runner.
type TaskCreator interface {
	CreateTask(ctx context.Context, workerID, tool string, spec json.RawMessage, flowID string) (*db.Task, error)
}

// Awaiter blocks until a task reaches a terminal status. Satisfied by
// runtime.CompletionHub.
type Awaiter interface {
	Await(ctx context.Context, taskID string) (runtime.Outcome, error)
}

// EventSink receives flow lifecycle broadcasts. Optional.
type EventSink interface {
	PublishEvent(op string, payload map[string]any)
}

type Deps struct {
	Store  *store.Store
	Tasks  TaskCreator
	Hub    Awaiter
	Events EventSink
	Logger *slog.Logger
}

// Coordinator drives the design-refinement loop: seed design.md, then
// alternate coder tasks with critic reviews until the score clears min_score
// or the iteration budget runs out.
type Coordinator struct {
	deps Deps
}

func NewCoordinator(deps Deps) *Coordinator {
	return &Coordinator{deps: deps}
}

// Kickoff runs the flow in the background. The flow row must already exist.
func (c *Coordinator) Kickoff(ctx context.Context, flowID string) {
	go c.Run(ctx, flowID)
}

// Run executes the refinement loop synchronously. Errors terminate the flow
// as failed; a missing flow row is a silent no-op.
func (c *Coordinator) Run(ctx context.Context, flowID string) {
	flow, err := c.deps.Store.GetFlow(flowID)
	if err != nil || flow == nil {
		if err != nil {
			c.deps.Logger.Error("flow lookup failed", "flow_id", flowID, "error", err)
		}
		return
	}
	worker, err := c.deps.Store.GetWorker(flow.WorkerID)
	if err != nil {
		c.deps.Logger.Error("worker lookup failed", "flow_id", flowID, "error", err)
		return
	}
	if worker == nil {
		c.finish(flow, db.FlowStatusFailed, map[string]any{"reason": "worker_missing"})
		return
	}

	var config Config
	if err := json.Unmarshal([]byte(flow.ConfigJSON), &config); err != nil {
		c.finish(flow, db.FlowStatusFailed, map[string]any{"reason": "invalid_config"})
		return
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}
	if config.MinScore <= 0 {
		config.MinScore = DefaultMinScore
	}

	designPath := filepath.Join(worker.WorkspacePath, "design.md")
	seed := fmt.Sprintf("# Design Draft\n\n%s\n", config.InitialPrompt)
	if err := os.WriteFile(designPath, []byte(seed), 0o644); err != nil {
		c.deps.Logger.Error("seed design.md failed", "flow_id", flowID, "error", err)
		c.finish(flow, db.FlowStatusFailed, map[string]any{"reason": "workspace_write_failed"})
		return
	}

	for iteration := 1; iteration <= config.MaxIterations; iteration++ {
		spec, _ := json.Marshal(coderSpec(config, iteration))
		task, err := c.deps.Tasks.CreateTask(ctx, worker.ID, "codex", spec, flowID)
		if err != nil {
			c.deps.Logger.Error("coder task dispatch failed", "flow_id", flowID, "iteration", iteration, "error", err)
			c.finish(flow, db.FlowStatusFailed, map[string]any{
				"reason":  "coder_task_failed",
				"details": map[string]any{"task_id": ""},
			})
			return
		}
		outcome, err := c.deps.Hub.Await(ctx, task.ID)
		if err != nil {
			c.deps.Logger.Warn("flow interrupted while awaiting task", "flow_id", flowID, "task_id", task.ID, "error", err)
			return
		}
		if outcome.Status == db.TaskStatusFailed {
			c.finish(flow, db.FlowStatusFailed, map[string]any{
				"reason":  "coder_task_failed",
				"details": map[string]any{"task_id": task.ID},
			})
			return
		}

		critic := reviewDesign(designPath, iteration)
		if err := c.recordIteration(flow, iteration, task.ID, critic); err != nil {
			c.deps.Logger.Error("record iteration failed", "flow_id", flowID, "iteration", iteration, "error", err)
			return
		}
		c.deps.Logger.Info("iteration scored", "flow_id", flowID, "iteration", iteration, "score", critic.Score)
		if critic.Score >= config.MinScore {
			c.finish(flow, db.FlowStatusCompleted, map[string]any{
				"final_iteration": iteration,
				"critic":          critic,
			})
			return
		}
	}
	c.finish(flow, db.FlowStatusFailed, map[string]any{
		"reason":  "max_iterations_reached",
		"details": nil,
	})
}

func coderSpec(config Config, iteration int) map[string]any {
	return map[string]any{
		"description": "Refine design document",
		"files":       []string{"design.md"},
		"instructions": fmt.Sprintf(
			"Update design.md to reflect feedback and improve clarity, performance, and feasibility. This is iteration %d of the refinement loop.",
			iteration),
		"context": map[string]any{
			"iteration":      iteration,
			"initial_prompt": config.InitialPrompt,
		},
	}
}

func (c *Coordinator) recordIteration(flow *db.Flow, iteration int, taskID string, critic CriticReport) error {
	state, _ := json.Marshal(map[string]any{
		"last_iteration": iteration,
		"last_score":     critic.Score,
		"last_critic":    critic,
	})
	criticJSON, _ := json.Marshal(critic)
	return c.deps.Store.Transaction(func(tx *store.Store) error {
		flow.StateJSON = string(state)
		if err := tx.SaveFlow(flow); err != nil {
			return err
		}
		return tx.AppendFlowIteration(&db.FlowIteration{
			FlowID:         flow.ID,
			IterationIndex: iteration,
			CoderTaskID:    taskID,
			CriticJSON:     string(criticJSON),
		})
	})
}

func (c *Coordinator) finish(flow *db.Flow, status string, result map[string]any) {
	resultJSON, _ := json.Marshal(result)
	flow.Status = status
	flow.ResultJSON = string(resultJSON)
	if err := c.deps.Store.SaveFlow(flow); err != nil {
		c.deps.Logger.Error("flow finalize failed", "flow_id", flow.ID, "error", err)
		return
	}
	if c.deps.Events != nil {
		c.deps.Events.PublishEvent("flow.finished", map[string]any{
			"flow_id": flow.ID,
			"status":  status,
			"result":  result,
		})
	}
	c.deps.Logger.Info("flow finished", "flow_id", flow.ID, "status", status)
}
