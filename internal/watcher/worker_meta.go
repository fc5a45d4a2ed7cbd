package watcher

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// WorkerMeta is the on-disk identity of a worker, read from
// <workspace>/worker.json. The watcher discovers workers from the
// filesystem rather than the conductor database so it can run standalone.
type WorkerMeta struct {
	WorkerID    string
	TmuxSession string
	Workspace   string
	CLIType     string
}

type workerMetaFile struct {
	ID          string `json:"id"`
	TmuxSession string `json:"tmux_session"`
	CLIType     string `json:"cli_type"`
}

// LoadWorkers scans the workspace root for directories holding worker.json
// and indexes them by tmux session name. Missing or malformed metadata is
// skipped.
func LoadWorkers(workspaceRoot, defaultCLIType string) map[string]WorkerMeta {
	workers := map[string]WorkerMeta{}
	entries, err := os.ReadDir(workspaceRoot)
	if err != nil {
		return workers
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(workspaceRoot, entry.Name())
		raw, err := os.ReadFile(filepath.Join(dir, "worker.json"))
		if err != nil {
			continue
		}
		var meta workerMetaFile
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		if meta.ID == "" || meta.TmuxSession == "" {
			continue
		}
		cliType := meta.CLIType
		if cliType == "" {
			cliType = defaultCLIType
		}
		workers[meta.TmuxSession] = WorkerMeta{
			WorkerID:    meta.ID,
			TmuxSession: meta.TmuxSession,
			Workspace:   dir,
			CLIType:     cliType,
		}
	}
	return workers
}
