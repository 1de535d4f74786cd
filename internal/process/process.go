package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/loykin/seleniumrun/internal/detector"
	"github.com/loykin/seleniumrun/internal/metrics"
)

// Process is one launched background service. It owns the OS process, the
// file capturing its combined stdout/stderr and the PID side file.
// Release must be called by whoever launched it.
type Process struct {
	spec Spec
	log  *slog.Logger

	mu       sync.Mutex
	pid      int
	outPath  string
	pidPath  string
	waitDone chan struct{}
	signaled bool
	released bool
	lastOut  string
}

type Option func(*Process)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(p *Process) {
		if l != nil {
			p.log = l
		}
	}
}

// Launch spawns spec.Command detached from the caller and blocks until
// spec.Ready reports ready. A service that does not become ready within
// spec.ReadyAttempts checks is released and reported as a *StartError
// wrapping ErrNotStarted.
func Launch(ctx context.Context, spec Spec, opts ...Option) (*Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	p := &Process{spec: spec, log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	if err := p.start(); err != nil {
		p.Release()
		metrics.IncServiceFailure(spec.Name)
		return nil, err
	}
	if err := p.awaitReady(ctx); err != nil {
		p.Release()
		metrics.IncServiceFailure(spec.Name)
		return nil, err
	}
	metrics.IncServiceStart(spec.Name)
	return p, nil
}

func (p *Process) start() error {
	dir := p.spec.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	out, err := os.CreateTemp(dir, "background-service-*.out")
	if err != nil {
		return &StartError{Name: p.spec.Name, Err: err}
	}
	p.mu.Lock()
	p.outPath = out.Name()
	p.mu.Unlock()

	cmd := p.spec.BuildCommand()
	if len(p.spec.Env) > 0 {
		cmd.Env = p.spec.Env
	}
	cmd.Stdout = out
	cmd.Stderr = out
	configureSysProcAttr(cmd)

	p.log.Info("starting background service", "name", p.spec.Name, "command", p.spec.Command)
	err = cmd.Start()
	// the child holds its own descriptor
	_ = out.Close()
	if err != nil {
		return &StartError{Name: p.spec.Name, Err: err}
	}

	pid := cmd.Process.Pid
	pidPath := strings.TrimSuffix(p.outPath, ".out") + ".pid"
	done := make(chan struct{})
	p.mu.Lock()
	p.pid = pid
	p.pidPath = pidPath
	p.waitDone = done
	p.mu.Unlock()

	if err := os.WriteFile(pidPath, detector.FormatPIDFile(pid), 0o600); err != nil {
		p.log.Warn("write pid file", "name", p.spec.Name, "path", pidPath, "error", err)
	}

	// reap the child so it never lingers as a zombie
	go func() {
		werr := cmd.Wait()
		p.log.Debug("background service exited", "name", p.spec.Name, "pid", pid, "error", werr)
		close(done)
	}()
	return nil
}

func (p *Process) awaitReady(ctx context.Context) error {
	attempts := p.spec.readyAttempts()
	interval := p.spec.readyInterval()
	began := time.Now()
	for i := 0; i < attempts; i++ {
		if p.spec.Ready == nil {
			metrics.ObserveReady(p.spec.Name, time.Since(began).Seconds())
			return nil
		}
		if p.exited() {
			return p.startError(i, errExited)
		}
		ok, err := p.check(ctx)
		if ok {
			p.log.Info("background service ready", "name", p.spec.Name, "pid", p.PID(), "checks", i+1)
			metrics.ObserveReady(p.spec.Name, time.Since(began).Seconds())
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			p.log.Debug("readiness check failed", "name", p.spec.Name, "detector", p.spec.Ready.Describe(), "error", err)
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return p.startError(attempts, fmt.Errorf("not ready after %d checks", attempts))
}

// check runs one readiness check, bound to ctx when the detector supports it.
func (p *Process) check(ctx context.Context) (bool, error) {
	if cd, ok := p.spec.Ready.(detector.ContextDetector); ok {
		return cd.Probe(ctx)
	}
	return p.spec.Ready.Alive()
}

func (p *Process) startError(attempts int, cause error) error {
	out := p.Output()
	p.log.Error("background service failed", "name", p.spec.Name, "error", cause, "output", out)
	return &StartError{Name: p.spec.Name, Attempts: attempts, Output: out, Err: cause}
}

func (p *Process) exited() bool {
	p.mu.Lock()
	done := p.waitDone
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Name returns the service kind.
func (p *Process) Name() string { return p.spec.Name }

// PID returns the process identifier, or 0 when nothing was spawned.
func (p *Process) PID() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// PIDFile returns the path of the PID side file.
func (p *Process) PIDFile() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pidPath
}

// Done is closed once the OS process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitDone
}

// Output returns everything the process has written so far. After Release
// it returns the content captured at release time.
func (p *Process) Output() string {
	p.mu.Lock()
	path, released, last := p.outPath, p.released, p.lastOut
	p.mu.Unlock()
	if released || path == "" {
		return last
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

// Signal sends the termination signal once. It does not wait for exit.
func (p *Process) Signal() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signalLocked()
}

// Signaled reports whether the termination signal was sent.
func (p *Process) Signaled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaled
}

func (p *Process) signalLocked() error {
	if p.released || p.signaled || p.pid <= 0 {
		return nil
	}
	if p.goneLocked() {
		p.log.Debug("background service already gone", "name", p.spec.Name, "pid", p.pid)
		return nil
	}
	p.signaled = true
	p.log.Info("stopping background service", "name", p.spec.Name, "pid", p.pid)
	return terminateGroup(p.pid)
}

// goneLocked reports whether the PID side file names a process that has
// exited or whose PID now belongs to someone else. A missing side file proves
// nothing.
func (p *Process) goneLocked() bool {
	if p.pidPath == "" {
		return false
	}
	if _, err := os.Stat(p.pidPath); err != nil {
		return false
	}
	alive, err := detector.PIDFileDetector{PIDFile: p.pidPath}.Alive()
	return err == nil && !alive
}

// Release signals the process if that has not happened yet, removes the PID
// side file and the output capture file. It is safe to call repeatedly, on a
// nil *Process, and on a process whose launch never completed.
func (p *Process) Release() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	if err := p.signalLocked(); err != nil {
		p.log.Warn("signal background service", "name", p.spec.Name, "pid", p.pid, "error", err)
	}
	p.released = true
	if p.outPath != "" {
		if b, err := os.ReadFile(p.outPath); err == nil {
			p.lastOut = string(b)
		}
	}
	outPath, pidPath := p.outPath, p.pidPath
	p.mu.Unlock()

	removeQuiet(pidPath)
	removeQuiet(outPath)
}

func removeQuiet(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
