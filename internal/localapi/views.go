package localapi

import (
	"encoding/json"

	"conductor/internal/db"
)

// API views. JSON columns come back as raw objects, empty strings and zero
// timestamps as nulls, matching how clients consumed the original service.

type workerView struct {
	ID            string  `json:"id"`
	Label         *string `json:"label"`
	Status        string  `json:"status"`
	TmuxSession   string  `json:"tmux_session"`
	WorkspacePath string  `json:"workspace_path"`
	TtydURL       *string `json:"ttyd_url"`
	CreatedAt     int64   `json:"created_at"`
	LastSeenAt    int64   `json:"last_seen_at"`
}

type taskView struct {
	ID           string          `json:"id"`
	WorkerID     string          `json:"worker_id"`
	FlowID       *string         `json:"flow_id"`
	Tool         string          `json:"tool"`
	Status       string          `json:"status"`
	SpecJSON     json.RawMessage `json:"spec_json"`
	ResultJSON   json.RawMessage `json:"result_json"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    int64           `json:"created_at"`
	StartedAt    *int64          `json:"started_at"`
	FinishedAt   *int64          `json:"finished_at"`
}

type flowView struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	WorkerID  string          `json:"worker_id"`
	Config    json.RawMessage `json:"config"`
	State     json.RawMessage `json:"state"`
	Result    json.RawMessage `json:"result"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

func viewWorker(w *db.Worker) workerView {
	return workerView{
		ID:            w.ID,
		Label:         optStr(w.Label),
		Status:        w.Status,
		TmuxSession:   w.TmuxSession,
		WorkspacePath: w.WorkspacePath,
		TtydURL:       optStr(w.TtydURL),
		CreatedAt:     w.CreatedAt,
		LastSeenAt:    w.LastSeenAt,
	}
}

func viewWorkers(ws []db.Worker) []workerView {
	out := make([]workerView, 0, len(ws))
	for i := range ws {
		out = append(out, viewWorker(&ws[i]))
	}
	return out
}

func viewTask(t *db.Task) taskView {
	return taskView{
		ID:           t.ID,
		WorkerID:     t.WorkerID,
		FlowID:       optStr(t.FlowID),
		Tool:         t.Tool,
		Status:       t.Status,
		SpecJSON:     rawOrEmptyObject(t.SpecJSON),
		ResultJSON:   rawOrNull(t.ResultJSON),
		ErrorMessage: optStr(t.ErrorMessage),
		CreatedAt:    t.CreatedAt,
		StartedAt:    optTime(t.StartedAt),
		FinishedAt:   optTime(t.FinishedAt),
	}
}

func viewTasks(ts []db.Task) []taskView {
	out := make([]taskView, 0, len(ts))
	for i := range ts {
		out = append(out, viewTask(&ts[i]))
	}
	return out
}

func viewFlow(f *db.Flow) flowView {
	return flowView{
		ID:        f.ID,
		Type:      f.Type,
		Status:    f.Status,
		WorkerID:  f.WorkerID,
		Config:    rawOrEmptyObject(f.ConfigJSON),
		State:     rawOrEmptyObject(f.StateJSON),
		Result:    rawOrNull(f.ResultJSON),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optTime(ts int64) *int64 {
	if ts == 0 {
		return nil
	}
	return &ts
}

func rawOrEmptyObject(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(s)
}

func rawOrNull(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}
