package detector

import "context"

// Detector is a readiness or liveness predicate for a background service.
// Implementations may check a PID file, a command or an HTTP endpoint.
// It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the service is detected as up.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

// ContextDetector is a Detector whose check can be bound to a context, so a
// canceled launch does not wait out a slow check.
type ContextDetector interface {
	Detector
	Probe(ctx context.Context) (bool, error)
}
