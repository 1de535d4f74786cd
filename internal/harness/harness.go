// Package harness drives one browser test run: it finds or starts a Selenium
// server, materializes every discovered test and runs them one at a time.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/seleniumrun/internal/config"
	"github.com/loykin/seleniumrun/internal/env"
	"github.com/loykin/seleniumrun/internal/history"
	"github.com/loykin/seleniumrun/internal/metrics"
	"github.com/loykin/seleniumrun/internal/service"
	"github.com/loykin/seleniumrun/internal/testdef"
)

// State is a step of the run state machine.
type State string

const (
	StateInit          State = "init"
	StateProbeServer   State = "probe_server"
	StateUseExternal   State = "use_external"
	StateLaunchLocal   State = "launch_local"
	StateDiscoverTests State = "discover_tests"
	StateRunNext       State = "run_next"
	StateDone          State = "done"
)

const summaryFile = "summary.json"

type Harness struct {
	cfg      config.Config
	log      *slog.Logger
	launcher Launcher
	runner   testdef.Runner
	sink     history.Sink
	runID    string
	now      func() time.Time

	state State
}

type Option func(*Harness)

func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.log = l
		}
	}
}

// WithLauncher replaces the process launcher.
func WithLauncher(l Launcher) Option { return func(h *Harness) { h.launcher = l } }

// WithRunner replaces the test runner (phpunit by default).
func WithRunner(r testdef.Runner) Option { return func(h *Harness) { h.runner = r } }

// WithSink sends run events to s.
func WithSink(s history.Sink) Option { return func(h *Harness) { h.sink = s } }

func WithRunID(id string) Option { return func(h *Harness) { h.runID = id } }

func New(cfg config.Config, opts ...Option) *Harness {
	h := &Harness{
		cfg:      cfg,
		log:      slog.Default(),
		launcher: ProcessLauncher{},
		sink:     history.Nop{},
		now:      time.Now,
		state:    StateInit,
	}
	for _, o := range opts {
		o(h)
	}
	if h.runID == "" {
		h.runID = uuid.NewString()
	}
	if h.runner == nil {
		h.runner = testdef.PHPUnitRunner{Command: cfg.Runner.Command, Args: cfg.Runner.Args, Logger: h.log}
	}
	h.log = h.log.With("run_id", h.runID)
	return h
}

// State returns the current step of the run.
func (h *Harness) State() State { return h.state }

// Run executes every valid test under the configured tests directory. Every
// launched service is released before Run returns, whatever the outcome.
func (h *Harness) Run(ctx context.Context) (sum *Summary, err error) {
	if err := h.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	resultsDir, err := filepath.Abs(h.cfg.ResultsDir)
	if err != nil {
		return nil, err
	}
	sum = &Summary{RunID: h.runID, StartedAt: h.now()}
	defer func() {
		h.finish(ctx, sum, resultsDir, err)
	}()

	if err := resetDir(resultsDir); err != nil {
		return sum, fmt.Errorf("prepare results dir: %w", err)
	}

	h.transition(StateProbeServer)
	host, port := h.cfg.Selenium.Host, h.cfg.Selenium.Port
	probe := service.ProbeOptions{
		Delay:          h.cfg.Selenium.ProbeDelay,
		ConnectTimeout: h.cfg.Selenium.ProbeTimeout,
		StatusPath:     h.cfg.Selenium.StatusPath,
		Logger:         h.log,
	}

	var (
		endpoint service.Endpoint
		screen   service.Screen
	)
	if h.launcher.Probe(ctx, host, port, probe) {
		h.transition(StateUseExternal)
		h.log.Info("using running selenium server", "host", host, "port", port)
		endpoint = service.NewExternalServer(host, port)
		sum.Server = "external"
	} else {
		h.transition(StateLaunchLocal)
		display, err := h.launcher.LaunchDisplay(ctx, h.displayOptions())
		if err != nil {
			return sum, fmt.Errorf("launch display: %w", err)
		}
		h.started("xvfb", display)
		defer h.release("xvfb", display)

		envs, err := h.cfg.ServiceEnv()
		if err != nil {
			return sum, fmt.Errorf("service env: %w", err)
		}
		server, err := h.launcher.LaunchServer(ctx, display, h.serverOptions(resultsDir, envs))
		if err != nil {
			return sum, fmt.Errorf("launch selenium: %w", err)
		}
		h.started("selenium", server)
		defer h.release("selenium", server)

		endpoint, screen = server, display
		sum.Server = "owned"
	}
	sum.Host, sum.Port = endpoint.Host(), endpoint.Port()

	h.transition(StateDiscoverTests)
	defs, err := h.materialize(endpoint, resultsDir, sum)
	defer func() {
		for _, d := range defs {
			d.Close()
		}
	}()
	if err != nil {
		return sum, err
	}
	metrics.SetDiscovered(len(defs))
	sum.Discovered = len(defs)
	if len(defs) == 0 {
		h.log.Warn("no tests found", "dir", h.cfg.TestsDir, "suffix", h.cfg.Tests.Suffix)
		h.transition(StateDone)
		return sum, nil
	}

	h.transition(StateRunNext)
	for _, d := range defs {
		res, err := h.runOne(ctx, d, screen, resultsDir)
		sum.Results = append(sum.Results, res)
		if err != nil {
			return sum, err
		}
	}
	h.transition(StateDone)
	return sum, nil
}

// materialize builds a Definition for every discovered source, skipping the
// ones that are not Selenium tests.
func (h *Harness) materialize(endpoint service.Endpoint, resultsDir string, sum *Summary) ([]*testdef.Definition, error) {
	paths, err := discover(h.cfg.TestsDir, h.cfg.Tests.Suffix, h.log)
	if err != nil {
		return nil, fmt.Errorf("discover tests: %w", err)
	}
	overrides, err := filepath.Abs(h.cfg.Tests.OverridesFile)
	if err != nil {
		return nil, err
	}
	opts := testdef.Options{
		Browser:        h.cfg.Tests.Browser,
		ResultsDir:     resultsDir,
		ArtifactURL:    h.cfg.Tests.ArtifactURL,
		OverridesFile:  overrides,
		OverridesClass: h.cfg.Tests.OverridesClass,
		ScratchDir:     h.cfg.Tests.ScratchDir,
		Runner:         h.runner,
		Logger:         h.log,
	}
	var defs []*testdef.Definition
	for _, p := range paths {
		d, err := testdef.New(endpoint, p, h.cfg.BaseURL, opts)
		var pathErr *fs.PathError
		switch {
		case errors.Is(err, testdef.ErrInvalidTest):
			h.log.Debug("skipping non-selenium file", "path", p)
			sum.Skipped = append(sum.Skipped, p)
			continue
		case errors.As(err, &pathErr) && pathErr.Path == p:
			h.log.Warn("skipping unreadable test", "path", p, "error", err)
			sum.Skipped = append(sum.Skipped, p)
			continue
		}
		if err != nil {
			return defs, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func (h *Harness) runOne(ctx context.Context, d *testdef.Definition, screen service.Screen, resultsDir string) (res Result, err error) {
	defer d.Close()
	res = Result{
		Name:   d.Name(),
		Source: d.Source(),
		JUnit:  filepath.Join(resultsDir, d.Name()+".xml"),
	}

	if screen != nil && h.cfg.Recorder.Enabled {
		res.Video = filepath.Join(resultsDir, d.Name()+".mp4")
		rec, err := h.launcher.LaunchRecorder(ctx, screen, h.recorderOptions(res.Video))
		if err != nil {
			res.Status = StatusError
			return res, fmt.Errorf("launch recorder for %s: %w", d.Name(), err)
		}
		h.started("ffmpeg", rec)
		defer h.release("ffmpeg", rec)
	}

	h.log.Info("running test", "name", d.Name(), "source", d.Source())
	start := h.now()
	out, runErr := d.Run(ctx, res.JUnit)
	res.Duration = h.now().Sub(start)
	h.log.Info("test output", "name", d.Name(), "output", out)

	sig := h.cfg.Tests.FailureSignature
	switch {
	case runErr != nil:
		res.Status = StatusError
		err = fmt.Errorf("run %s: %w", d.Name(), runErr)
	case sig != "" && strings.Contains(out, sig):
		res.Status = StatusError
		err = &SignatureError{Test: d.Name(), Signature: sig}
	default:
		res.Status = classify(out)
	}
	metrics.ObserveTest(res.Status, res.Duration.Seconds())
	h.emit(ctx, history.EventTestResult, history.Record{
		Name:     res.Name,
		Kind:     "test",
		Status:   res.Status,
		Duration: res.Duration,
		Detail:   errString(err),
	})
	return res, err
}

// classify reads PHPUnit's final status line.
func classify(out string) string {
	if strings.Contains(out, "FAILURES!") || strings.Contains(out, "ERRORS!") {
		return StatusFailed
	}
	return StatusPassed
}

func (h *Harness) finish(ctx context.Context, sum *Summary, resultsDir string, err error) {
	sum.FinishedAt = h.now()
	status := StatusPassed
	if err != nil {
		sum.Error = err.Error()
		status = StatusError
		h.log.Error("run failed", "error", err)
	}
	h.log.Info("run finished",
		"server", sum.Server,
		"tests", len(sum.Results),
		"passed", sum.Count(StatusPassed),
		"failed", sum.Count(StatusFailed),
		"skipped", len(sum.Skipped),
		"elapsed", sum.FinishedAt.Sub(sum.StartedAt))
	if _, statErr := os.Stat(resultsDir); statErr == nil {
		if werr := sum.WriteJSON(filepath.Join(resultsDir, summaryFile)); werr != nil {
			h.log.Warn("write summary", "error", werr)
		}
	}
	h.emit(context.WithoutCancel(ctx), history.EventRunFinished, history.Record{
		Name:     "run",
		Kind:     "run",
		Status:   status,
		Duration: sum.FinishedAt.Sub(sum.StartedAt),
		Detail:   errString(err),
	})
}

func (h *Harness) transition(to State) {
	from := h.state
	h.state = to
	metrics.RecordStateTransition(string(from), string(to))
	h.log.Debug("harness state", "from", from, "to", to)
}

func (h *Harness) started(kind string, m service.Managed) {
	h.emit(context.Background(), history.EventServiceStart, history.Record{Name: kind, Kind: kind, Status: "started", PID: m.PID()})
}

func (h *Harness) release(kind string, m service.Managed) {
	pid := m.PID()
	m.Release()
	h.emit(context.Background(), history.EventServiceStop, history.Record{Name: kind, Kind: kind, Status: "stopped", PID: pid})
}

// emit never fails the run; history is best effort.
func (h *Harness) emit(ctx context.Context, t history.EventType, rec history.Record) {
	rec.RunID = h.runID
	if err := h.sink.Send(ctx, history.Event{Type: t, OccurredAt: h.now(), Record: rec}); err != nil {
		h.log.Warn("history sink", "event", t, "error", err)
	}
}

func (h *Harness) common() service.Common {
	return service.Common{
		ReadyAttempts: h.cfg.Readiness.Attempts,
		ReadyInterval: h.cfg.Readiness.Interval,
		Logger:        h.log,
	}
}

func (h *Harness) displayOptions() service.DisplayOptions {
	return service.DisplayOptions{
		Common: h.common(),
		Binary: h.cfg.Display.Binary,
		Number: h.cfg.DisplayNumber(),
		Width:  h.cfg.Display.Width,
		Height: h.cfg.Display.Height,
		Depth:  h.cfg.Display.Depth,

		ReadyCommand: h.cfg.Display.ReadyCommand,
	}
}

func (h *Harness) serverOptions(resultsDir string, envs []string) service.ServerOptions {
	base := env.New()
	for _, kv := range envs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			base.Set(k, v)
		}
	}
	return service.ServerOptions{
		Common:          h.common(),
		Java:            h.cfg.Selenium.Java,
		Jar:             h.cfg.Selenium.Jar,
		Port:            h.cfg.Selenium.Port,
		ProfileTemplate: h.cfg.Selenium.ProfileTemplate,
		LogFile:         filepath.Join(resultsDir, "selenium.log"),
		StatusPath:      h.cfg.Selenium.StatusPath,
		BaseEnv:         base,
	}
}

func (h *Harness) recorderOptions(file string) service.RecorderOptions {
	return service.RecorderOptions{
		Common:        h.common(),
		Binary:        h.cfg.Recorder.Binary,
		File:          file,
		FrameRate:     h.cfg.Recorder.FrameRate,
		Codec:         h.cfg.Recorder.Codec,
		Quality:       h.cfg.Recorder.Quality,
		PreStopGrace:  h.cfg.Recorder.PreStopGrace,
		PostStopGrace: h.cfg.Recorder.PostStopGrace,
	}
}

// resetDir recreates dir empty.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
