package workermgr

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"conductor/internal/db"
	"conductor/internal/logging"
	"conductor/internal/store"
	"conductor/internal/tmux"
)

type recordedCall struct {
	name string
	args []string
}

type fakeExec struct {
	calls []recordedCall
	fail  map[string]error
}

func (f *fakeExec) Output(name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, recordedCall{name, args})
	return nil, nil
}

func (f *fakeExec) Run(name string, args ...string) error {
	f.calls = append(f.calls, recordedCall{name, args})
	if f.fail != nil && len(args) > 0 {
		if err, ok := f.fail[args[0]]; ok {
			return err
		}
	}
	return nil
}

type fakeStarter struct {
	argvs [][]string
	err   error
	pid   int64
}

func (f *fakeStarter) start(argv []string) (int64, error) {
	f.argvs = append(f.argvs, argv)
	if f.err != nil {
		return 0, f.err
	}
	return f.pid, nil
}

func newTestManager(t *testing.T) (*Manager, *store.Store, *fakeExec, *fakeStarter, string) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "conductor.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	fe := &fakeExec{}
	starter := &fakeStarter{pid: 4242}
	root := t.TempDir()
	m := New(Deps{
		Store:         s,
		Adapter:       tmux.NewAdapter(fe, "tmux"),
		WorkspaceRoot: root,
		TmuxBin:       "tmux",
		TtydBin:       "ttyd",
		TtydHost:      "http://localhost",
		TtydPortStart: 7680,
		DefaultCLI:    "codex",
		StartProc:     starter.start,
		Logger:        logging.Discard(),
	})
	return m, s, fe, starter, root
}

func TestCreateWorkerProvisionsEverything(t *testing.T) {
	m, s, fe, starter, root := newTestManager(t)

	var ensured []string
	m.deps.EnsureRuntime = func(_ context.Context, workerID, session, workspace string) {
		ensured = append(ensured, workerID)
		if session == "" || workspace == "" {
			t.Errorf("ensure runtime got empty args: %q %q", session, workspace)
		}
	}

	w, err := m.CreateWorker(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	if w.Status != db.WorkerStatusIdle || w.Label != "alpha" {
		t.Fatalf("worker = %+v", w)
	}
	if w.TmuxSession != "worker_"+w.ID[:8] {
		t.Fatalf("session = %q", w.TmuxSession)
	}

	for _, sub := range []string{"specs", "logs"} {
		if _, err := os.Stat(filepath.Join(root, w.ID, sub)); err != nil {
			t.Fatalf("missing %s dir: %v", sub, err)
		}
	}

	// tmux new-session detached with the workspace as cwd.
	if len(fe.calls) != 1 {
		t.Fatalf("tmux calls = %+v", fe.calls)
	}
	args := strings.Join(fe.calls[0].args, " ")
	if !strings.Contains(args, "new-session -d -s "+w.TmuxSession) || !strings.Contains(args, filepath.Join(root, w.ID)) {
		t.Fatalf("tmux args = %q", args)
	}

	// ttyd attached to the session on the first port.
	if len(starter.argvs) != 1 {
		t.Fatalf("ttyd starts = %+v", starter.argvs)
	}
	wantArgv := []string{"ttyd", "-p", "7680", "tmux", "attach", "-t", w.TmuxSession}
	if strings.Join(starter.argvs[0], " ") != strings.Join(wantArgv, " ") {
		t.Fatalf("ttyd argv = %v", starter.argvs[0])
	}
	if w.TtydURL != "http://localhost:7680" || w.TtydPID != 4242 {
		t.Fatalf("ttyd url=%q pid=%d", w.TtydURL, w.TtydPID)
	}

	// worker.json metadata.
	raw, err := os.ReadFile(filepath.Join(root, w.ID, "worker.json"))
	if err != nil {
		t.Fatalf("read worker.json: %v", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("worker.json not json: %v", err)
	}
	if meta["id"] != w.ID || meta["label"] != "alpha" || meta["cli_type"] != "codex" {
		t.Fatalf("meta = %+v", meta)
	}
	if meta["tmux_session"] != w.TmuxSession {
		t.Fatalf("meta session = %v", meta["tmux_session"])
	}

	// Row persisted, runtime ensured.
	stored, _ := s.GetWorker(w.ID)
	if stored == nil || stored.TtydURL != w.TtydURL {
		t.Fatalf("stored = %+v", stored)
	}
	if len(ensured) != 1 || ensured[0] != w.ID {
		t.Fatalf("ensured = %v", ensured)
	}
}

func TestCreateWorkerToleratesMissingTtyd(t *testing.T) {
	m, _, _, starter, _ := newTestManager(t)
	starter.err = errors.New("exec: \"ttyd\": executable file not found in $PATH")

	w, err := m.CreateWorker(context.Background(), "")
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	if w.TtydURL != "" || w.TtydPID != 0 {
		t.Fatalf("expected no ttyd, got url=%q pid=%d", w.TtydURL, w.TtydPID)
	}
}

func TestCreateWorkerPortsAdvance(t *testing.T) {
	m, _, _, starter, _ := newTestManager(t)

	first, err := m.CreateWorker(context.Background(), "")
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	second, err := m.CreateWorker(context.Background(), "")
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	if first.TtydURL != "http://localhost:7680" || second.TtydURL != "http://localhost:7681" {
		t.Fatalf("urls = %q %q", first.TtydURL, second.TtydURL)
	}
	if len(starter.argvs) != 2 || starter.argvs[1][2] != "7681" {
		t.Fatalf("argvs = %v", starter.argvs)
	}
}

func TestCreateWorkerFailsWhenTmuxFails(t *testing.T) {
	m, s, fe, _, _ := newTestManager(t)
	fe.fail = map[string]error{"new-session": errors.New("no server")}

	if _, err := m.CreateWorker(context.Background(), ""); err == nil {
		t.Fatalf("expected error when tmux session cannot start")
	}
	workers, _ := s.ListWorkers()
	if len(workers) != 0 {
		t.Fatalf("no row expected, got %+v", workers)
	}
}

func TestNullLabelInMetadata(t *testing.T) {
	m, _, _, _, root := newTestManager(t)

	w, err := m.CreateWorker(context.Background(), "")
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	raw, _ := os.ReadFile(filepath.Join(root, w.ID, "worker.json"))
	var meta map[string]any
	_ = json.Unmarshal(raw, &meta)
	if meta["label"] != nil {
		t.Fatalf("label = %v, want null", meta["label"])
	}
}
