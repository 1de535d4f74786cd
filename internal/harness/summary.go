package harness

import (
	"encoding/json"
	"os"
	"time"
)

const (
	StatusPassed = "passed"
	StatusFailed = "failed"
	StatusError  = "error"
)

// Result is the outcome of one test.
type Result struct {
	Name     string        `json:"name"`
	Source   string        `json:"source"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	JUnit    string        `json:"junit"`
	Video    string        `json:"video,omitempty"`
}

// Summary describes one run.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Server is "external" or "owned".
	Server     string   `json:"server"`
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	Discovered int      `json:"discovered"`
	Skipped    []string `json:"skipped,omitempty"`
	Results    []Result `json:"results"`
	Error      string   `json:"error,omitempty"`
}

// Count returns how many results have status.
func (s *Summary) Count(status string) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// WriteJSON stores the summary at path.
func (s *Summary) WriteJSON(path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
