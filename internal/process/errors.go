package process

import (
	"errors"
	"fmt"
)

// ErrNotStarted reports a background service that never became ready.
var ErrNotStarted = errors.New("background service did not start")

var errExited = errors.New("process exited before becoming ready")

// StartError carries the captured output of a service that failed to start.
type StartError struct {
	Name     string
	Attempts int
	Output   string
	Err      error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("%s: %v (after %d readiness checks)", e.Name, e.Err, e.Attempts)
}

func (e *StartError) Unwrap() []error { return []error{ErrNotStarted, e.Err} }
