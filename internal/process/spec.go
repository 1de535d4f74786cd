package process

import (
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/seleniumrun/internal/detector"
)

const (
	DefaultReadyAttempts = 45
	DefaultReadyInterval = time.Second
)

// Spec describes a background service to launch.
type Spec struct {
	Name          string            // service kind, used in logs and metrics (e.g. "xvfb")
	Command       string            // command line; wrapped in /bin/sh -c when it needs a shell
	Env           []string          // full child environment; empty inherits the caller's
	TempDir       string            // where the output capture and PID side files live; default os.TempDir()
	ReadyAttempts int               // readiness checks before giving up (default 45)
	ReadyInterval time.Duration     // pause between checks (default 1s)
	Ready         detector.Detector // nil means ready as soon as the process is spawned
}

func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("process requires name")
	}
	if strings.TrimSpace(s.Command) == "" {
		return errors.New("process " + s.Name + " requires command")
	}
	if s.ReadyAttempts < 0 {
		return errors.New("process " + s.Name + ": ready attempts cannot be negative")
	}
	return nil
}

func (s *Spec) readyAttempts() int {
	if s.ReadyAttempts <= 0 {
		return DefaultReadyAttempts
	}
	return s.ReadyAttempts
}

func (s *Spec) readyInterval() time.Duration {
	if s.ReadyInterval <= 0 {
		return DefaultReadyInterval
	}
	return s.ReadyInterval
}

// BuildCommand constructs an *exec.Cmd for the given spec.Command. Plain
// argv lines run directly; anything with shell metacharacters or quoting
// runs under /bin/sh -c.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~\\") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}
