package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"conductor/internal/db"
)

// Store is the gateway for workers, tasks, task events, flows and flow
// iterations. Rows are flat records with string foreign keys; callers look
// related rows up on demand instead of holding object graphs.
type Store struct {
	gdb *gorm.DB
}

func New(gdb *gorm.DB) *Store {
	return &Store{gdb: gdb}
}

// Open opens the conductor database at path and syncs the schema.
func Open(path string) (*Store, error) {
	gdb, err := db.OpenSQLiteWithMigrations(path)
	if err != nil {
		return nil, err
	}
	return New(gdb), nil
}

func (s *Store) Close() error {
	return db.Close(s.gdb)
}

// Transaction runs fn against a transactional view of the store. Everything
// fn writes commits atomically or not at all.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.gdb.Transaction(func(g *gorm.DB) error {
		return fn(&Store{gdb: g})
	})
}

func (s *Store) CreateWorker(w *db.Worker) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = db.WorkerStatusIdle
	}
	now := time.Now().Unix()
	if w.CreatedAt == 0 {
		w.CreatedAt = now
	}
	if w.LastSeenAt == 0 {
		w.LastSeenAt = now
	}
	return s.gdb.Create(w).Error
}

// GetWorker returns (nil, nil) when no row exists.
func (s *Store) GetWorker(id string) (*db.Worker, error) {
	var w db.Worker
	err := s.gdb.First(&w, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) ListWorkers() ([]db.Worker, error) {
	var workers []db.Worker
	if err := s.gdb.Order("created_at ASC").Find(&workers).Error; err != nil {
		return nil, err
	}
	return workers, nil
}

func (s *Store) SaveWorker(w *db.Worker) error {
	return s.gdb.Save(w).Error
}

func (s *Store) CreateTask(tk *db.Task) error {
	if tk.ID == "" {
		tk.ID = uuid.NewString()
	}
	if tk.Status == "" {
		tk.Status = db.TaskStatusQueued
	}
	if tk.CreatedAt == 0 {
		tk.CreatedAt = time.Now().Unix()
	}
	return s.gdb.Create(tk).Error
}

// GetTask returns (nil, nil) when no row exists.
func (s *Store) GetTask(id string) (*db.Task, error) {
	var tk db.Task
	err := s.gdb.First(&tk, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tk, nil
}

func (s *Store) SaveTask(tk *db.Task) error {
	return s.gdb.Save(tk).Error
}

func (s *Store) ListWorkerTasks(workerID string) ([]db.Task, error) {
	var tasks []db.Task
	err := s.gdb.Where("worker_id = ?", workerID).Order("created_at DESC").Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Store) AppendTaskEvent(ev *db.TaskEvent) error {
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().Unix()
	}
	return s.gdb.Create(ev).Error
}

// AppendTaskEvents inserts the batch in one statement, preserving slice
// order.
func (s *Store) AppendTaskEvents(evs []db.TaskEvent) error {
	if len(evs) == 0 {
		return nil
	}
	now := time.Now().Unix()
	for i := range evs {
		if evs[i].CreatedAt == 0 {
			evs[i].CreatedAt = now
		}
	}
	return s.gdb.Create(&evs).Error
}

func (s *Store) ListTaskEvents(taskID string) ([]db.TaskEvent, error) {
	var evs []db.TaskEvent
	err := s.gdb.Where("task_id = ?", taskID).Order("id ASC").Find(&evs).Error
	if err != nil {
		return nil, err
	}
	return evs, nil
}

func (s *Store) CreateFlow(f *db.Flow) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = db.FlowStatusRunning
	}
	now := time.Now().Unix()
	if f.CreatedAt == 0 {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	return s.gdb.Create(f).Error
}

// GetFlow returns (nil, nil) when no row exists.
func (s *Store) GetFlow(id string) (*db.Flow, error) {
	var f db.Flow
	err := s.gdb.First(&f, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) SaveFlow(f *db.Flow) error {
	f.UpdatedAt = time.Now().Unix()
	return s.gdb.Save(f).Error
}

func (s *Store) AppendFlowIteration(it *db.FlowIteration) error {
	if it.CreatedAt == 0 {
		it.CreatedAt = time.Now().Unix()
	}
	return s.gdb.Create(it).Error
}

func (s *Store) ListFlowIterations(flowID string) ([]db.FlowIteration, error) {
	var its []db.FlowIteration
	err := s.gdb.Where("flow_id = ?", flowID).Order("iteration_index ASC").Find(&its).Error
	if err != nil {
		return nil, err
	}
	return its, nil
}
