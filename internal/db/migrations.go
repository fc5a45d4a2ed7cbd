package db

import (
	"errors"

	"gorm.io/gorm"
)

// SyncSchema creates/updates tables and indexes from models. Table structure
// changes do not use versioned migrations.
func SyncSchema(gdb *gorm.DB) error {
	if gdb == nil {
		return errors.New("db is required")
	}
	if err := gdb.AutoMigrate(
		&Worker{},
		&Task{},
		&TaskEvent{},
		&Flow{},
		&FlowIteration{},
	); err != nil {
		return err
	}
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_tasks_worker_created_at ON tasks(worker_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_flow_id ON tasks(flow_id);`,
		`CREATE INDEX IF NOT EXISTS idx_task_events_task_id ON task_events(task_id, id);`,
		`CREATE INDEX IF NOT EXISTS idx_flow_iterations_flow ON flow_iterations(flow_id, iteration_index);`,
	} {
		if err := gdb.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// MigrateUp is the entry point used by OpenSQLiteWithMigrations and the
// `migrate up` command.
func MigrateUp(gdb *gorm.DB) error {
	return SyncSchema(gdb)
}
