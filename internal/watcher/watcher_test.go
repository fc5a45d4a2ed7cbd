package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"conductor/internal/classifier"
	"conductor/internal/config"
	"conductor/internal/logging"
	"conductor/internal/statusstore"
	"conductor/internal/tmux"
)

type fakePanes struct {
	panes      []tmux.PaneInfo
	captures   map[string]string
	captureErr error
}

func (f *fakePanes) ListAllPanes() ([]tmux.PaneInfo, error) {
	return f.panes, nil
}

func (f *fakePanes) CapturePane(target string) (string, error) {
	if f.captureErr != nil {
		return "", f.captureErr
	}
	return f.captures[target], nil
}

type fakeClassifier struct {
	threshold int
	calls     int
	result    classifier.Result
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, _ classifier.Meta) classifier.Result {
	f.calls++
	return f.result
}

func (f *fakeClassifier) Pack() classifier.Pack {
	return classifier.Pack{StabilityPolls: f.threshold}
}

func newTestWatcher(t *testing.T, panes *fakePanes, fc *fakeClassifier) (*Watcher, string) {
	t.Helper()
	root := t.TempDir()
	store, err := statusstore.Open(filepath.Join(t.TempDir(), "status.db"))
	if err != nil {
		t.Fatalf("open status store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.WorkspaceRoot = root
	w := New(cfg, panes, store, logging.Discard())
	w.classifierFor = func(string) paneClassifier { return fc }
	clock := 100.0
	w.now = func() float64 {
		clock++
		return clock
	}
	return w, root
}

func seedWorker(t *testing.T, root, id, session string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	meta := map[string]any{
		"id":           id,
		"label":        "test",
		"tmux_session": session,
		"workspace":    dir,
		"cli_type":     "codex",
	}
	raw, _ := json.MarshalIndent(meta, "", "  ")
	if err := os.WriteFile(filepath.Join(dir, "worker.json"), raw, 0o644); err != nil {
		t.Fatalf("write worker.json: %v", err)
	}
	return dir
}

func paneForSession(session string) tmux.PaneInfo {
	return tmux.PaneInfo{PaneID: "%7", SessionName: session, WindowIndex: "0", PaneIndex: "0", CurrentPath: "/tmp"}
}

func TestStableSnapshotClassifiedExactlyOnce(t *testing.T) {
	pane := paneForSession("worker_ab")
	panes := &fakePanes{
		panes:    []tmux.PaneInfo{pane},
		captures: map[string]string{pane.Target(): "$ "},
	}
	fc := &fakeClassifier{threshold: 2, result: classifier.Result{State: classifier.StateReady, Summary: "Idle prompt detected"}}
	w, root := newTestWatcher(t, panes, fc)
	seedWorker(t, root, "w1", "worker_ab")

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		w.PollOnce(ctx)
	}
	if fc.calls != 1 {
		t.Fatalf("classifier calls = %d, want exactly 1", fc.calls)
	}
	st := w.state[pane.PaneID]
	if st == nil || st.State != classifier.StateReady {
		t.Fatalf("pane state = %+v", st)
	}

	history, err := w.store.TailHistory(pane.PaneID, 100)
	if err != nil {
		t.Fatalf("tail history: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("history rows = %d, want one per cycle", len(history))
	}
}

func TestHashChangeResetsStabilityAndForcesBusy(t *testing.T) {
	pane := paneForSession("worker_ab")
	panes := &fakePanes{
		panes:    []tmux.PaneInfo{pane},
		captures: map[string]string{pane.Target(): "one"},
	}
	fc := &fakeClassifier{threshold: 2, result: classifier.Result{State: classifier.StateReady}}
	w, root := newTestWatcher(t, panes, fc)
	seedWorker(t, root, "w1", "worker_ab")

	ctx := context.Background()
	w.PollOnce(ctx)
	w.PollOnce(ctx)
	w.PollOnce(ctx) // classifies at stable_count 2

	panes.captures[pane.Target()] = "two"
	w.PollOnce(ctx)

	st := w.state[pane.PaneID]
	if st.StableCount != 0 {
		t.Fatalf("stable_count = %d, want 0 after change", st.StableCount)
	}
	if st.State != classifier.StateBusy || st.Summary != "Pane output changing" {
		t.Fatalf("state = %+v, want BUSY", st)
	}

	// Re-stabilize at the new hash: one more classification, not more.
	w.PollOnce(ctx)
	w.PollOnce(ctx)
	if fc.calls != 2 {
		t.Fatalf("classifier calls = %d, want 2", fc.calls)
	}
}

func TestPanesOfUnknownSessionsIgnored(t *testing.T) {
	pane := paneForSession("stranger")
	panes := &fakePanes{
		panes:    []tmux.PaneInfo{pane},
		captures: map[string]string{pane.Target(): "hello"},
	}
	fc := &fakeClassifier{threshold: 1}
	w, root := newTestWatcher(t, panes, fc)
	seedWorker(t, root, "w1", "worker_ab")

	w.PollOnce(context.Background())
	if len(w.state) != 0 {
		t.Fatalf("expected no tracked panes, got %+v", w.state)
	}
}

func TestDisappearedPaneDropped(t *testing.T) {
	pane := paneForSession("worker_ab")
	panes := &fakePanes{
		panes:    []tmux.PaneInfo{pane},
		captures: map[string]string{pane.Target(): "x"},
	}
	fc := &fakeClassifier{threshold: 1}
	w, root := newTestWatcher(t, panes, fc)
	seedWorker(t, root, "w1", "worker_ab")

	ctx := context.Background()
	w.PollOnce(ctx)
	if len(w.state) != 1 {
		t.Fatalf("expected tracked pane, got %+v", w.state)
	}

	panes.panes = nil
	w.PollOnce(ctx)
	if len(w.state) != 0 {
		t.Fatalf("expected purge, got %+v", w.state)
	}
}

func TestCaptureFailureSkipsCycleForPane(t *testing.T) {
	pane := paneForSession("worker_ab")
	panes := &fakePanes{
		panes:      []tmux.PaneInfo{pane},
		captures:   map[string]string{},
		captureErr: errors.New("no such pane"),
	}
	fc := &fakeClassifier{threshold: 1}
	w, root := newTestWatcher(t, panes, fc)
	seedWorker(t, root, "w1", "worker_ab")

	w.PollOnce(context.Background())
	history, err := w.store.TailHistory(pane.PaneID, 10)
	if err != nil {
		t.Fatalf("tail history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no writes for failed capture, got %+v", history)
	}
}

func TestStatusFileWrittenEachCycle(t *testing.T) {
	pane := paneForSession("worker_ab")
	panes := &fakePanes{
		panes:    []tmux.PaneInfo{pane},
		captures: map[string]string{pane.Target(): "text"},
	}
	fc := &fakeClassifier{threshold: 1, result: classifier.Result{State: classifier.StateReady, Summary: "ok"}}
	w, root := newTestWatcher(t, panes, fc)
	dir := seedWorker(t, root, "w1", "worker_ab")

	w.PollOnce(context.Background())

	raw, err := os.ReadFile(filepath.Join(dir, "status.json"))
	if err != nil {
		t.Fatalf("read status.json: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("parse status.json: %v", err)
	}
	if payload["worker_id"] != "w1" || payload["pane_id"] != "%7" {
		t.Fatalf("payload = %+v", payload)
	}
	if payload["tmux_target"] != "worker_ab:0.0" {
		t.Fatalf("target = %v", payload["tmux_target"])
	}
	if payload["state"] != "BUSY" {
		t.Fatalf("first cycle should report BUSY churn, got %v", payload["state"])
	}
}

func TestLoadWorkersSkipsMalformed(t *testing.T) {
	root := t.TempDir()
	seedWorker(t, root, "w1", "worker_ok")

	bad := filepath.Join(root, "broken")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bad, "worker.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	workers := LoadWorkers(root, "codex")
	if len(workers) != 1 {
		t.Fatalf("workers = %+v, want only worker_ok", workers)
	}
	if meta, ok := workers["worker_ok"]; !ok || meta.WorkerID != "w1" || meta.CLIType != "codex" {
		t.Fatalf("meta = %+v", meta)
	}
}
