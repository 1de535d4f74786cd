// Package seleniumrun runs a directory of Selenium RC tests against a
// Selenium server it either finds running or starts itself on a virtual
// display, recording a video of every test.
package seleniumrun

import (
	"context"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/seleniumrun/internal/config"
	"github.com/loykin/seleniumrun/internal/harness"
	"github.com/loykin/seleniumrun/internal/history"
	"github.com/loykin/seleniumrun/internal/history/factory"
	"github.com/loykin/seleniumrun/internal/logger"
	"github.com/loykin/seleniumrun/internal/metrics"
	"github.com/loykin/seleniumrun/internal/process"
	"github.com/loykin/seleniumrun/internal/service"
	"github.com/loykin/seleniumrun/internal/testdef"
)

// Re-export core types for external consumers.

type Config = config.Config

type LogConfig = logger.Config

type Summary = harness.Summary

type Result = harness.Result

type HistorySink = history.Sink

type Runner = testdef.Runner

type ProbeOptions = service.ProbeOptions

type Option = harness.Option

var (
	ErrNotStarted       = process.ErrNotStarted
	ErrInvalidTest      = testdef.ErrInvalidTest
	ErrFailureSignature = harness.ErrFailureSignature
)

const (
	StatusPassed = harness.StatusPassed
	StatusFailed = harness.StatusFailed
	StatusError  = harness.StatusError
)

// Harness is a thin facade over internal/harness.Harness.
type Harness struct{ inner *harness.Harness }

func New(c Config, opts ...Option) *Harness { return &Harness{inner: harness.New(c, opts...)} }

func (h *Harness) Run(ctx context.Context) (*Summary, error) { return h.inner.Run(ctx) }

func WithLogger(l *slog.Logger) Option       { return harness.WithLogger(l) }
func WithRunner(r Runner) Option             { return harness.WithRunner(r) }
func WithHistory(s HistorySink) Option       { return harness.WithSink(s) }
func WithRunID(id string) Option             { return harness.WithRunID(id) }
func DefaultConfig() Config                  { return config.Default() }
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// NewLogger builds the run logger described by c on top of console.
func NewLogger(c LogConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	return logger.New(c, console)
}

// NewHistorySink opens the sink selected by dsn.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// CloseHistorySink releases s if it holds a connection.
func CloseHistorySink(s HistorySink) error { return history.Close(s) }

// IsRunning reports whether a Selenium server answers on host:port.
func IsRunning(ctx context.Context, host string, port int, opts ProbeOptions) bool {
	return service.IsRunning(ctx, host, port, opts)
}

// Discover lists the files under dir whose name ends with suffix.
func Discover(dir, suffix string) ([]string, error) { return harness.Discover(dir, suffix) }

// IsTest reports whether path holds a Selenium test case.
func IsTest(path string) (bool, error) { return testdef.IsTest(path) }

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// WriteMetrics writes everything g gathers to path in the Prometheus text format.
func WriteMetrics(path string, g prometheus.Gatherer) error { return metrics.WriteTextfile(path, g) }
