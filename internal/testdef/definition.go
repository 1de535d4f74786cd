// Package testdef turns a Selenium RC test source into an isolated, runnable
// copy bound to a server, a target URL and a browser.
package testdef

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrInvalidTest marks a source that is not a Selenium test case.
var ErrInvalidTest = errors.New("not a selenium test")

const (
	DefaultBrowser        = "*firefox"
	DefaultOverridesFile  = "overrides.php"
	DefaultOverridesClass = "Harness_Overrides"

	screenshotSuffix = "artifact/results/"
	scratchPrefix    = "seleniumrun-"
)

// Endpoint is the server a test is bound to.
type Endpoint interface {
	Host() string
	Port() int
}

type Options struct {
	Browser        string
	ResultsDir     string
	ArtifactURL    string
	OverridesFile  string
	OverridesClass string
	// ScratchDir is where materialized copies live. Empty means os.TempDir().
	ScratchDir string
	Runner     Runner
	Logger     *slog.Logger
}

func (o *Options) withDefaults() {
	if o.Browser == "" {
		o.Browser = DefaultBrowser
	}
	if o.OverridesFile == "" {
		o.OverridesFile = DefaultOverridesFile
	}
	if o.OverridesClass == "" {
		o.OverridesClass = DefaultOverridesClass
	}
	if o.ScratchDir == "" {
		o.ScratchDir = os.TempDir()
	}
	if o.Runner == nil {
		o.Runner = PHPUnitRunner{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Definition is one materialized test. Close removes the copy.
type Definition struct {
	name   string
	source string
	dir    string
	path   string
	runner Runner
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New reads sourcePath, rewrites it for server and targetURL and writes the
// result to a fresh scratch directory. A source without the Selenium test
// marker yields ErrInvalidTest and leaves nothing on disk.
func New(server Endpoint, sourcePath, targetURL string, opts Options) (*Definition, error) {
	opts.withDefaults()
	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read test %s: %w", sourcePath, err)
	}
	text := string(raw)
	if !strings.Contains(text, Marker) {
		return nil, fmt.Errorf("%s: %w", sourcePath, ErrInvalidTest)
	}

	name := className(sourcePath)
	b := Binding{
		Class:          name,
		OverridesFile:  opts.OverridesFile,
		OverridesClass: opts.OverridesClass,
		ScreenshotPath: opts.ResultsDir,
		ScreenshotURL:  opts.ArtifactURL + screenshotSuffix,
		Browser:        opts.Browser,
		TargetURL:      targetURL,
		Host:           server.Host(),
		Port:           server.Port(),
	}
	text = Apply(text, Rewrites(b))

	dir := filepath.Join(opts.ScratchDir, scratchPrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	path := filepath.Join(dir, name+".php")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write test %s: %w", path, err)
	}
	opts.Logger.Debug("materialized test", "name", name, "source", sourcePath, "path", path)
	return &Definition{
		name:   name,
		source: sourcePath,
		dir:    dir,
		path:   path,
		runner: opts.Runner,
		log:    opts.Logger,
	}, nil
}

// IsTest reports whether the file at path is a Selenium test case, without
// materializing it.
func IsTest(path string) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return strings.Contains(string(raw), Marker), nil
}

func className(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Name is the class name derived from the source filename.
func (d *Definition) Name() string { return d.name }

// Source is the original test file.
func (d *Definition) Source() string { return d.source }

// Path is the materialized copy.
func (d *Definition) Path() string { return d.path }

// Run executes the materialized test from inside its scratch directory and
// returns the runner's raw output.
func (d *Definition) Run(ctx context.Context, resultsFile string) (string, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return "", fmt.Errorf("test %s already closed", d.name)
	}
	return d.runner.Run(ctx, d.dir, filepath.Base(d.path), resultsFile)
}

// Close removes the materialized file and its scratch directory. It is safe
// to call more than once and on a nil *Definition.
func (d *Definition) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.log.Warn("remove materialized test", "path", d.path, "error", err)
	}
	if err := os.RemoveAll(d.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.log.Warn("remove scratch dir", "dir", d.dir, "error", err)
	}
}
