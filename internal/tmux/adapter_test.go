package tmux

import (
	"strings"
	"testing"
)

type FakeExec struct {
	OutputText string
	LastArgs   string
	RunCalls   []string
}

func (f *FakeExec) Output(name string, args ...string) ([]byte, error) {
	f.LastArgs = strings.Join(append([]string{name}, args...), " ")
	return []byte(f.OutputText), nil
}

func (f *FakeExec) Run(name string, args ...string) error {
	f.LastArgs = strings.Join(append([]string{name}, args...), " ")
	f.RunCalls = append(f.RunCalls, f.LastArgs)
	return nil
}

func TestAdapter_SendLine_PressesEnterSeparately(t *testing.T) {
	f := &FakeExec{}
	a := NewAdapter(f, "")
	if err := a.SendLine("worker_ab:0", "bash run.sh spec.json"); err != nil {
		t.Fatalf("send line failed: %v", err)
	}
	if len(f.RunCalls) != 2 {
		t.Fatalf("expected 2 send-keys commands, got %d: %#v", len(f.RunCalls), f.RunCalls)
	}
	if f.RunCalls[0] != "tmux send-keys -t worker_ab:0 bash run.sh spec.json" {
		t.Fatalf("unexpected text command: %s", f.RunCalls[0])
	}
	if f.RunCalls[1] != "tmux send-keys -t worker_ab:0 C-m" {
		t.Fatalf("unexpected enter command: %s", f.RunCalls[1])
	}
}

func TestAdapter_CapturePane_JoinsWrappedLines(t *testing.T) {
	f := &FakeExec{OutputText: "ok"}
	a := NewAdapter(f, "")
	got, err := a.CapturePane("worker_ab:0")
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if got != "ok" {
		t.Fatalf("unexpected capture: %q", got)
	}
	if f.LastArgs != "tmux capture-pane -p -J -t worker_ab:0" {
		t.Fatalf("unexpected command: %s", f.LastArgs)
	}
}

func TestAdapter_ListAllPanes_ParsesTabSeparatedFields(t *testing.T) {
	f := &FakeExec{OutputText: "%1\tworker_ab\t0\t0\t/tmp/ws\tcodex\n" +
		"garbage line without tabs\n" +
		"%2\tmain\t1\t2\t/home/dev\tbash\n\n"}
	a := NewAdapter(f, "")
	panes, err := a.ListAllPanes()
	if err != nil {
		t.Fatalf("list panes failed: %v", err)
	}
	if f.LastArgs != "tmux list-panes -a -F "+paneListFormat {
		t.Fatalf("unexpected command: %s", f.LastArgs)
	}
	if len(panes) != 2 {
		t.Fatalf("expected 2 panes, got %d: %#v", len(panes), panes)
	}
	first := panes[0]
	if first.PaneID != "%1" || first.SessionName != "worker_ab" || first.CurrentPath != "/tmp/ws" || first.Title != "codex" {
		t.Fatalf("unexpected first pane: %#v", first)
	}
	if got := panes[1].Target(); got != "main:1.2" {
		t.Fatalf("unexpected target: %q", got)
	}
}

func TestAdapter_NewSession_StartsDetached(t *testing.T) {
	f := &FakeExec{}
	a := NewAdapter(f, "")
	if err := a.NewSession("worker_ab", "/tmp/ws"); err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	if f.LastArgs != "tmux new-session -d -s worker_ab -c /tmp/ws" {
		t.Fatalf("unexpected command: %s", f.LastArgs)
	}
}

func TestAdapter_CustomBinaryPath(t *testing.T) {
	f := &FakeExec{OutputText: ""}
	a := NewAdapter(f, "/opt/tmux/bin/tmux")
	if _, err := a.CapturePane("s:0"); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if !strings.HasPrefix(f.LastArgs, "/opt/tmux/bin/tmux ") {
		t.Fatalf("binary not honored: %s", f.LastArgs)
	}
}

func TestSessionTarget_FirstWindow(t *testing.T) {
	if got := SessionTarget("worker_12345678"); got != "worker_12345678:0" {
		t.Fatalf("unexpected target: %q", got)
	}
}

func TestPaneReader_ReturnsOnlyFreshOutput(t *testing.T) {
	f := &FakeExec{OutputText: "hello\n"}
	r := NewPaneReader(NewAdapter(f, ""), "worker_ab:0")

	got, err := r.ReadNew()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != "hello\n" {
		t.Fatalf("first read = %q", got)
	}

	f.OutputText = "hello\nworld\n"
	got, err = r.ReadNew()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != "world\n" {
		t.Fatalf("second read = %q", got)
	}

	got, err = r.ReadNew()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != "" {
		t.Fatalf("idle read = %q, want empty", got)
	}
}

func TestPaneReader_ResetsWhenCaptureShrinks(t *testing.T) {
	f := &FakeExec{OutputText: "a long scrollback full of output\n"}
	r := NewPaneReader(NewAdapter(f, ""), "worker_ab:0")
	if _, err := r.ReadNew(); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	f.OutputText = "fresh\n"
	got, err := r.ReadNew()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != "fresh\n" {
		t.Fatalf("after clear read = %q, want whole capture", got)
	}
}
