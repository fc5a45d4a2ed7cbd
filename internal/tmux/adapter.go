package tmux

import (
	"fmt"
	"strings"
)

// paneListFormat is the tab separated field list used to enumerate every
// pane on the server in one call.
const paneListFormat = "#{pane_id}\t#{session_name}\t#{window_index}\t#{pane_index}\t#{pane_current_path}\t#{pane_title}"

// Adapter wraps the tmux binary. All pane addressing uses tmux target
// syntax (session:window.pane).
type Adapter struct {
	exec Exec
	bin  string
}

func NewAdapter(e Exec, bin string) *Adapter {
	if bin == "" {
		bin = "tmux"
	}
	return &Adapter{exec: e, bin: bin}
}

// PaneInfo describes one pane as reported by list-panes. Window and pane
// indexes stay strings because they are only ever recombined into targets.
type PaneInfo struct {
	PaneID      string
	SessionName string
	WindowIndex string
	PaneIndex   string
	CurrentPath string
	Title       string
}

func (p PaneInfo) Target() string {
	return fmt.Sprintf("%s:%s.%s", p.SessionName, p.WindowIndex, p.PaneIndex)
}

// SessionTarget addresses the first window of a session, where worker
// shells run.
func SessionTarget(session string) string {
	return session + ":0"
}

// SendLine types text into the pane and presses Enter. The Enter key goes
// in a second send-keys call so tmux never interprets the text itself.
func (a *Adapter) SendLine(target, text string) error {
	if err := a.exec.Run(a.bin, "send-keys", "-t", target, text); err != nil {
		return err
	}
	return a.exec.Run(a.bin, "send-keys", "-t", target, "C-m")
}

// CapturePane returns the visible pane content with wrapped lines joined.
func (a *Adapter) CapturePane(target string) (string, error) {
	out, err := a.exec.Output(a.bin, "capture-pane", "-p", "-J", "-t", target)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ListAllPanes enumerates every pane on the server. Lines that do not
// split into the expected six fields are skipped.
func (a *Adapter) ListAllPanes() ([]PaneInfo, error) {
	out, err := a.exec.Output(a.bin, "list-panes", "-a", "-F", paneListFormat)
	if err != nil {
		return nil, err
	}
	panes := []PaneInfo{}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 6 {
			continue
		}
		panes = append(panes, PaneInfo{
			PaneID:      fields[0],
			SessionName: fields[1],
			WindowIndex: fields[2],
			PaneIndex:   fields[3],
			CurrentPath: fields[4],
			Title:       fields[5],
		})
	}
	return panes, nil
}

// NewSession starts a detached session whose first window runs a shell in
// dir.
func (a *Adapter) NewSession(name, dir string) error {
	return a.exec.Run(a.bin, "new-session", "-d", "-s", name, "-c", dir)
}

// HasSession reports whether a session with the given name exists.
func (a *Adapter) HasSession(name string) bool {
	return a.exec.Run(a.bin, "has-session", "-t", name) == nil
}
