package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/seleniumrun"
)

type command struct {
	out    io.Writer
	errOut io.Writer
}

func loadConfig(g GlobalFlags) (seleniumrun.Config, error) {
	cfg, err := seleniumrun.LoadConfig(g.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.NoColor {
		cfg.Log.Color = false
	}
	return cfg, nil
}

// applyRunArgs maps the positional arguments
// tests-dir results-dir base-url selenium-host selenium-port and the run
// flags onto cfg.
func applyRunArgs(cfg *seleniumrun.Config, args []string, f RunFlags) error {
	targets := []*string{&cfg.TestsDir, &cfg.ResultsDir, &cfg.BaseURL, &cfg.Selenium.Host}
	for i, a := range args {
		if i < len(targets) {
			*targets[i] = a
			continue
		}
		port, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Errorf("invalid selenium port %q", a)
		}
		cfg.Selenium.Port = port
	}
	if f.Browser != "" {
		cfg.Tests.Browser = f.Browser
	}
	if f.NoRecord {
		cfg.Recorder.Enabled = false
	}
	if f.ArtifactURL != "" {
		cfg.Tests.ArtifactURL = f.ArtifactURL
	}
	if f.HistoryDSN != "" {
		cfg.History.DSN = f.HistoryDSN
	}
	if f.MetricsFile != "" {
		cfg.Metrics.File = f.MetricsFile
	}
	return nil
}

func (c command) logger(cfg seleniumrun.Config) (*slog.Logger, io.Closer, error) {
	return seleniumrun.NewLogger(cfg.Log, c.errOut)
}

func (c command) Run(ctx context.Context, g GlobalFlags, f RunFlags, args []string) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if err := applyRunArgs(&cfg, args, f); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, closer, err := c.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	if err := seleniumrun.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		log.Warn("register metrics", "error", err)
	}

	opts := []seleniumrun.Option{seleniumrun.WithLogger(log)}
	if cfg.History.DSN != "" {
		sink, err := seleniumrun.NewHistorySink(cfg.History.DSN)
		if err != nil {
			log.Warn("history disabled", "error", err)
		} else {
			defer func() { _ = seleniumrun.CloseHistorySink(sink) }()
			opts = append(opts, seleniumrun.WithHistory(sink))
		}
	}

	sum, runErr := seleniumrun.New(cfg, opts...).Run(ctx)

	if cfg.Metrics.File != "" {
		if err := seleniumrun.WriteMetrics(cfg.Metrics.File, prometheus.DefaultGatherer); err != nil {
			log.Warn("write metrics", "file", cfg.Metrics.File, "error", err)
		}
	}
	if sum != nil {
		_, _ = fmt.Fprintf(c.out, "%d tests: %d passed, %d failed, %d errors, %d skipped (%s server %s:%d)\n",
			len(sum.Results),
			sum.Count(seleniumrun.StatusPassed),
			sum.Count(seleniumrun.StatusFailed),
			sum.Count(seleniumrun.StatusError),
			len(sum.Skipped),
			sum.Server, sum.Host, sum.Port)
	}
	return runErr
}

// probeTarget resolves where and after which delay to probe: flags win over
// the config.
func probeTarget(cfg seleniumrun.Config, f ProbeFlags) (string, int, time.Duration) {
	host, port, delay := cfg.Selenium.Host, cfg.Selenium.Port, cfg.Selenium.ProbeDelay
	if f.Host != "" {
		host = f.Host
	}
	if f.Port != 0 {
		port = f.Port
	}
	if f.DelaySet {
		delay = f.Delay
	}
	return host, port, delay
}

func (c command) Probe(ctx context.Context, g GlobalFlags, f ProbeFlags) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	host, port, delay := probeTarget(cfg, f)
	log, closer, err := c.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ok := seleniumrun.IsRunning(ctx, host, port, seleniumrun.ProbeOptions{
		Delay:          delay,
		ConnectTimeout: cfg.Selenium.ProbeTimeout,
		StatusPath:     cfg.Selenium.StatusPath,
		Logger:         log,
	})
	if !ok {
		return fmt.Errorf("selenium is not running at %s:%d", host, port)
	}
	_, _ = fmt.Fprintf(c.out, "selenium is running at %s:%d\n", host, port)
	return nil
}

func (c command) Discover(g GlobalFlags, f DiscoverFlags, args []string) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	dir := cfg.TestsDir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("tests directory is required")
	}
	paths, err := seleniumrun.Discover(dir, cfg.Tests.Suffix)
	if err != nil {
		return err
	}
	for _, p := range paths {
		ok, err := seleniumrun.IsTest(p)
		if err != nil {
			return err
		}
		switch {
		case ok:
			_, _ = fmt.Fprintln(c.out, p)
		case f.All:
			_, _ = fmt.Fprintf(c.out, "%s (skipped: not a selenium test)\n", p)
		}
	}
	return nil
}
