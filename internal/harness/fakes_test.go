package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loykin/seleniumrun/internal/config"
	"github.com/loykin/seleniumrun/internal/history"
	"github.com/loykin/seleniumrun/internal/service"
)

const validTest = `<?php
require_once 'PHPUnit/Extensions/SeleniumTestCase.php';
class Example extends PHPUnit_Extensions_SeleniumTestCase
{
  protected function setUp()
  {
    $this->setBrowser("*chrome");
    $this->setBrowserUrl("http://example.com/");
  }
}
`

// journal records lifecycle steps in order.
type journal struct {
	mu    sync.Mutex
	steps []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.steps = append(j.steps, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.steps...)
}

func (j *journal) count(prefix string) int {
	n := 0
	for _, s := range j.list() {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

type fakeManaged struct {
	kind     string
	pid      int
	j        *journal
	released int
}

func (m *fakeManaged) Output() string { return "" }
func (m *fakeManaged) PID() int       { return m.pid }
func (m *fakeManaged) Release() {
	m.released++
	m.j.add("release %s", m.kind)
}

type fakeDisplay struct {
	*fakeManaged
	number int
}

func (d *fakeDisplay) Display() string { return fmt.Sprintf(":%d", d.number) }
func (d *fakeDisplay) Width() int      { return 1200 }
func (d *fakeDisplay) Height() int     { return 2000 }

type fakeServer struct {
	*fakeManaged
	port int
}

func (s *fakeServer) Host() string { return "127.0.0.1" }
func (s *fakeServer) Port() int    { return s.port }

type fakeLauncher struct {
	j          *journal
	running    bool
	displayErr error
	serverErr  error

	displayOpts service.DisplayOptions
	serverOpts  service.ServerOptions
	recorders   []service.RecorderOptions
	managed     []*fakeManaged
}

func (l *fakeLauncher) Probe(_ context.Context, host string, port int, _ service.ProbeOptions) bool {
	l.j.add("probe %s:%d", host, port)
	return l.running
}

func (l *fakeLauncher) track(kind string) *fakeManaged {
	m := &fakeManaged{kind: kind, pid: 1000 + len(l.managed), j: l.j}
	l.managed = append(l.managed, m)
	return m
}

func (l *fakeLauncher) LaunchDisplay(_ context.Context, opts service.DisplayOptions) (service.DisplayService, error) {
	l.displayOpts = opts
	if l.displayErr != nil {
		return nil, l.displayErr
	}
	l.j.add("launch display :%d", opts.Number)
	return &fakeDisplay{fakeManaged: l.track("display"), number: opts.Number}, nil
}

func (l *fakeLauncher) LaunchServer(_ context.Context, screen service.Screen, opts service.ServerOptions) (service.ServerService, error) {
	l.serverOpts = opts
	if l.serverErr != nil {
		return nil, l.serverErr
	}
	l.j.add("launch server %s", screen.Display())
	return &fakeServer{fakeManaged: l.track("server"), port: opts.Port}, nil
}

func (l *fakeLauncher) LaunchRecorder(_ context.Context, _ service.Screen, opts service.RecorderOptions) (service.Managed, error) {
	l.recorders = append(l.recorders, opts)
	l.j.add("launch recorder %s", filepath.Base(opts.File))
	return l.track("recorder"), nil
}

// fakeRunner returns canned output per test file and records what it ran.
type fakeRunner struct {
	j       *journal
	outputs map[string]string
	err     error
	dirs    []string
}

func (r *fakeRunner) Run(_ context.Context, dir, file, resultsFile string) (string, error) {
	r.dirs = append(r.dirs, dir)
	r.j.add("run %s -> %s", file, filepath.Base(resultsFile))
	if r.err != nil {
		return "", r.err
	}
	if out, ok := r.outputs[file]; ok {
		return out, nil
	}
	return "OK (1 test, 1 assertion)", nil
}

type memorySink struct {
	mu     sync.Mutex
	events []history.Event
	err    error
}

func (s *memorySink) Send(_ context.Context, e history.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *memorySink) ofType(t history.EventType) []history.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []history.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	c := config.Default()
	root := t.TempDir()
	c.TestsDir = filepath.Join(root, "tests")
	c.ResultsDir = filepath.Join(root, "results")
	c.BaseURL = "http://app.local/"
	c.Tests.ScratchDir = filepath.Join(root, "scratch")
	c.Selenium.ProbeDelay = 0
	c.Readiness.Interval = 10 * time.Millisecond
	require.NoError(t, os.MkdirAll(c.TestsDir, 0o755))
	require.NoError(t, os.MkdirAll(c.Tests.ScratchDir, 0o755))
	return c
}

var errBoom = errors.New("boom")
