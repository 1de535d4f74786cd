// Package service launches the out-of-process collaborators a browser test
// run needs: a virtual X display, a Selenium RC server and a screen recorder.
package service

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/seleniumrun/internal/detector"
	"github.com/loykin/seleniumrun/internal/process"
)

// Managed is the capability shared by every service the harness launched
// and therefore has to release.
type Managed interface {
	Output() string
	PID() int
	Release()
}

// Screen is a virtual display handle.
type Screen interface {
	Display() string // X display name, e.g. ":99"
	Width() int
	Height() int
}

// Endpoint is where a Selenium server can be reached.
type Endpoint interface {
	Host() string
	Port() int
}

// DisplayService is a display the harness owns.
type DisplayService interface {
	Screen
	Managed
}

// ServerService is a Selenium server the harness owns.
type ServerService interface {
	Endpoint
	Managed
}

// Common holds the process-level knobs shared by all launch options.
type Common struct {
	TempDir       string
	ReadyAttempts int
	ReadyInterval time.Duration
	Logger        *slog.Logger
}

func (c Common) spec(name, command string, env []string, ready detector.Detector) process.Spec {
	return process.Spec{
		Name:          name,
		Command:       command,
		Env:           env,
		TempDir:       c.TempDir,
		ReadyAttempts: c.ReadyAttempts,
		ReadyInterval: c.ReadyInterval,
		Ready:         ready,
	}
}

func (c Common) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
