package tmux

import (
	"fmt"
	"os/exec"
	"strings"
)

// Exec runs external commands. The real implementation appends trailing
// stderr text to the error so callers can log why tmux rejected an
// operation.
type Exec interface {
	Output(name string, args ...string) ([]byte, error)
	Run(name string, args ...string) error
}

type RealExec struct{}

func (r *RealExec) Output(name string, args ...string) ([]byte, error) {
	out, err := exec.Command(name, args...).CombinedOutput()
	return out, wrapExecErr(err, out)
}

func (r *RealExec) Run(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	return wrapExecErr(err, out)
}

func wrapExecErr(err error, out []byte) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}
