package db

// Status and event vocabulary shared by every component. Values are stored
// verbatim in sqlite and serialized verbatim over the API.
const (
	WorkerStatusIdle       = "idle"
	WorkerStatusBusy       = "busy"
	WorkerStatusError      = "error"
	WorkerStatusTerminated = "terminated"

	TaskStatusQueued    = "queued"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"

	EventStdoutChunk  = "stdout_chunk"
	EventStderrChunk  = "stderr_chunk"
	EventStateChange  = "state_change"
	EventResultParsed = "result_parsed"

	FlowStatusRunning   = "running"
	FlowStatusCompleted = "completed"
	FlowStatusFailed    = "failed"

	FlowTypeDesignRefinement = "design_refinement"
)

// Worker is a logical agent host: one tmux session plus a workspace
// directory holding worker.json and specs/.
type Worker struct {
	ID            string `gorm:"column:id;primaryKey"`
	Label         string `gorm:"column:label;not null;default:''"`
	Status        string `gorm:"column:status;not null;default:'idle'"`
	TmuxSession   string `gorm:"column:tmux_session;not null;uniqueIndex"`
	WorkspacePath string `gorm:"column:workspace_path;not null;default:''"`
	TtydURL       string `gorm:"column:ttyd_url;not null;default:''"`
	TtydPID       int64  `gorm:"column:ttyd_pid;not null;default:0"`
	CreatedAt     int64  `gorm:"column:created_at;not null;default:0"`
	LastSeenAt    int64  `gorm:"column:last_seen_at;not null;default:0"`
}

func (Worker) TableName() string { return "workers" }

// Task is one tool invocation against a worker. Status advances
// queued -> running -> completed|failed, never backwards. JSON columns hold
// serialized objects; empty string means null.
type Task struct {
	ID           string `gorm:"column:id;primaryKey"`
	WorkerID     string `gorm:"column:worker_id;not null"`
	FlowID       string `gorm:"column:flow_id;not null;default:''"`
	Tool         string `gorm:"column:tool;not null"`
	Status       string `gorm:"column:status;not null;default:'queued'"`
	SpecJSON     string `gorm:"column:spec_json;not null;default:''"`
	ResultJSON   string `gorm:"column:result_json;not null;default:''"`
	ErrorMessage string `gorm:"column:error_message;not null;default:''"`
	CreatedAt    int64  `gorm:"column:created_at;not null;default:0"`
	StartedAt    int64  `gorm:"column:started_at;not null;default:0"`
	FinishedAt   int64  `gorm:"column:finished_at;not null;default:0"`
}

func (Task) TableName() string { return "tasks" }

// TaskEvent is an append-only audit record. The autoincrement id doubles as
// the per-task ordering key since inserts happen in observation order.
type TaskEvent struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TaskID      string `gorm:"column:task_id;not null"`
	Type        string `gorm:"column:type;not null"`
	PayloadJSON string `gorm:"column:payload_json;not null;default:''"`
	CreatedAt   int64  `gorm:"column:created_at;not null;default:0"`
}

func (TaskEvent) TableName() string { return "task_events" }

// Flow is a supervised multi-task process. State is a mutable rolling
// checkpoint; Result is written once on the terminal transition.
type Flow struct {
	ID         string `gorm:"column:id;primaryKey"`
	Type       string `gorm:"column:type;not null"`
	WorkerID   string `gorm:"column:worker_id;not null"`
	Status     string `gorm:"column:status;not null;default:'running'"`
	ConfigJSON string `gorm:"column:config_json;not null;default:''"`
	StateJSON  string `gorm:"column:state_json;not null;default:''"`
	ResultJSON string `gorm:"column:result_json;not null;default:''"`
	CreatedAt  int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt  int64  `gorm:"column:updated_at;not null;default:0"`
}

func (Flow) TableName() string { return "flows" }

type FlowIteration struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	FlowID         string `gorm:"column:flow_id;not null"`
	IterationIndex int    `gorm:"column:iteration_index;not null"`
	CoderTaskID    string `gorm:"column:coder_task_id;not null;default:''"`
	CriticJSON     string `gorm:"column:critic_json;not null;default:''"`
	CreatedAt      int64  `gorm:"column:created_at;not null;default:0"`
}

func (FlowIteration) TableName() string { return "flow_iterations" }
