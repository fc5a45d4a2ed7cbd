package application

import (
	"os"
	"path/filepath"
	"testing"

	"conductor/internal/config"
	"conductor/internal/statusstore"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.WorkspaceRoot = filepath.Join(root, "workers")
	cfg.DatabaseURL = filepath.Join(root, "db", "conductor.db")
	cfg.StatusDBPath = filepath.Join(root, "db", "status.db")
	return cfg
}

func TestEnsureDirs(t *testing.T) {
	cfg := testConfig(t)
	if err := ensureDirs(cfg); err != nil {
		t.Fatalf("ensureDirs: %v", err)
	}
	for _, dir := range []string{cfg.WorkspaceRoot, filepath.Dir(cfg.DatabaseURL)} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("missing dir %s: %v", dir, err)
		}
	}
}

func TestMigrateUpThenListWorkersEmpty(t *testing.T) {
	cfg := testConfig(t)
	if err := MigrateUp(cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	workers, err := ListWorkers(cfg)
	if err != nil {
		t.Fatalf("list workers: %v", err)
	}
	if len(workers) != 0 {
		t.Fatalf("workers = %+v", workers)
	}
}

func TestStatusRowsEmptyDatabase(t *testing.T) {
	cfg := testConfig(t)
	if err := ensureDirs(cfg); err != nil {
		t.Fatalf("ensureDirs: %v", err)
	}
	rows, err := StatusRows(cfg, nil)
	if err != nil {
		t.Fatalf("status rows: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestHistoryRowsReadBack(t *testing.T) {
	cfg := testConfig(t)
	if err := ensureDirs(cfg); err != nil {
		t.Fatalf("ensureDirs: %v", err)
	}
	sdb, err := statusstore.Open(cfg.StatusDBPath)
	if err != nil {
		t.Fatalf("open status store: %v", err)
	}
	err = sdb.Upsert(
		statusstore.Pty{ID: "%1", WorkerID: "w1", TmuxSession: "worker_w1", TmuxWindow: "0", TmuxPane: "0"},
		statusstore.Status{State: "READY", Summary: "Idle prompt detected", LastPolledTs: 12.5},
	)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_ = sdb.Close()

	rows, err := HistoryRows(cfg, "%1", 10)
	if err != nil {
		t.Fatalf("history rows: %v", err)
	}
	if len(rows) != 1 || rows[0].State != "READY" {
		t.Fatalf("rows = %+v", rows)
	}
}
