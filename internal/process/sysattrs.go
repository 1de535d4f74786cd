package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// configureSysProcAttr puts the child in its own process group so that a
// shell-wrapped command and everything it spawns receive the termination signal.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the process group led by pid.
// A group that is already gone is not an error.
func terminateGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGTERM)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
