package tmux

// PaneReader is a handle bound to one pane that reads its text
// incrementally across polls and can type into it.
type PaneReader struct {
	adapter  *Adapter
	target   string
	lastSize int
}

func NewPaneReader(a *Adapter, target string) *PaneReader {
	return &PaneReader{adapter: a, target: target}
}

func (r *PaneReader) Target() string {
	return r.target
}

// ReadNew returns the pane text that appeared since the previous call.
// When the capture shrinks the pane was cleared or rewritten, so the
// cursor resets and the whole capture comes back at once.
func (r *PaneReader) ReadNew() (string, error) {
	text, err := r.adapter.CapturePane(r.target)
	if err != nil {
		return "", err
	}
	if len(text) < r.lastSize {
		r.lastSize = 0
	}
	fresh := text[r.lastSize:]
	r.lastSize = len(text)
	return fresh, nil
}

func (r *PaneReader) SendLine(text string) error {
	return r.adapter.SendLine(r.target, text)
}
