package workermgr

import (
	"os/exec"
)

// startDetached spawns argv[0] with its output discarded and does not wait.
// The child keeps running after the conductor exits.
func startDetached(argv []string) (int64, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := int64(cmd.Process.Pid)
	// Reap the child in the background so it never turns into a zombie.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
