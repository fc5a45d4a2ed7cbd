package application

import (
	"context"
	"fmt"

	"conductor/internal/config"
	"conductor/internal/db"
	"conductor/internal/logging"
	"conductor/internal/statusstore"
	"conductor/internal/store"
	"conductor/internal/tmux"
	"conductor/internal/workermgr"
)

// One-shot operations backing the operator CLI commands. Each opens what it
// needs, does its work and closes again; the serve process is not involved.

func CreateWorker(ctx context.Context, cfg config.Config, label string) (*db.Worker, error) {
	if err := ensureDirs(cfg); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = st.Close() }()

	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "worker_manager"})
	mgr := workermgr.New(workermgr.Deps{
		Store:         st,
		Adapter:       tmux.NewAdapter(&tmux.RealExec{}, cfg.TmuxBin),
		WorkspaceRoot: cfg.WorkspaceRoot,
		TmuxBin:       cfg.TmuxBin,
		TtydBin:       cfg.TtydBin,
		TtydHost:      cfg.TtydHost,
		TtydPortStart: cfg.TtydPortStart,
		DefaultCLI:    cfg.DefaultCLIType,
		Logger:        logger,
	})
	return mgr.CreateWorker(ctx, label)
}

func ListWorkers(cfg config.Config) ([]db.Worker, error) {
	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = st.Close() }()
	return st.ListWorkers()
}

// StatusRows reads the watcher's status table. since limits rows to panes
// polled within the trailing window in seconds; nil means no limit.
func StatusRows(cfg config.Config, since *float64) ([]statusstore.StatusRow, error) {
	sdb, err := statusstore.Open(cfg.StatusDBPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sdb.Close() }()
	return sdb.ListStatus(statusstore.MinTimestampForWindow(since))
}

// HistoryRows reads the newest limit transitions for one pane in
// chronological order.
func HistoryRows(cfg config.Config, paneID string, limit int) ([]statusstore.HistoryRow, error) {
	sdb, err := statusstore.Open(cfg.StatusDBPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sdb.Close() }()
	return sdb.TailHistory(paneID, limit)
}
