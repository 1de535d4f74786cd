package detector

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// DefaultCommandTimeout bounds one run of a CommandDetector.
const DefaultCommandTimeout = 5 * time.Second

// CommandDetector reports ready when Command, run by /bin/sh, exits 0.
// A typical display check is "xdpyinfo -display :99".
type CommandDetector struct {
	Command string
	Env     []string      // added to the caller's environment
	Timeout time.Duration // default 5s
}

var _ ContextDetector = CommandDetector{}

func (d CommandDetector) Alive() (bool, error) {
	return d.Probe(context.Background())
}

// Probe runs Command once, killing it when ctx ends or Timeout passes.
// A non-zero exit means "not ready" and is not an error.
func (d CommandDetector) Probe(ctx context.Context) (bool, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// #nosec G204
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", d.Command)
	if len(d.Env) > 0 {
		cmd.Env = append(os.Environ(), d.Env...)
	}
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return false, nil
	}
	return false, err
}

func (d CommandDetector) Describe() string { return "cmd:" + d.Command }
