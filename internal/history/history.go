// Package history exports run events (service starts, test results, run
// outcome) to analytics stores.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of run event.
type EventType string

const (
	EventServiceStart EventType = "service_start"
	EventServiceStop  EventType = "service_stop"
	EventTestResult   EventType = "test_result"
	EventRunFinished  EventType = "run_finished"
)

// Record is the payload of an event. Fields that do not apply to an event
// type are left zero.
type Record struct {
	RunID    string        `json:"run_id"`
	Name     string        `json:"name"`   // test class or service kind
	Kind     string        `json:"kind"`   // "test", "xvfb", "selenium", "ffmpeg", "run"
	Status   string        `json:"status"` // passed|failed|error|started|stopped
	PID      int           `json:"pid,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

// Event is one entry exported to a sink.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Nop discards every event. It is the sink used when history is disabled.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }

// Close releases s when it holds resources.
func Close(s Sink) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
