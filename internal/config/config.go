package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/seleniumrun/internal/logger"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. SELENIUMRUN_SELENIUM_PORT for selenium.port.
const EnvPrefix = "SELENIUMRUN"

// Config is everything one harness run needs.
type Config struct {
	TestsDir   string `mapstructure:"tests_dir"`
	ResultsDir string `mapstructure:"results_dir"`
	BaseURL    string `mapstructure:"base_url"`

	// Env and EnvFiles are extra variables handed to launched services.
	// Entries in Env win over EnvFiles.
	Env      []string `mapstructure:"env"`
	EnvFiles []string `mapstructure:"env_files"`

	Selenium  SeleniumConfig  `mapstructure:"selenium"`
	Display   DisplayConfig   `mapstructure:"display"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Tests     TestsConfig     `mapstructure:"tests"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Log       logger.Config   `mapstructure:"log"`
	History   HistoryConfig   `mapstructure:"history"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type SeleniumConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Java            string        `mapstructure:"java"`
	Jar             string        `mapstructure:"jar"`
	ProfileTemplate string        `mapstructure:"profile_template"`
	StatusPath      string        `mapstructure:"status_path"`
	ProbeDelay      time.Duration `mapstructure:"probe_delay"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
}

type DisplayConfig struct {
	Binary string `mapstructure:"binary"`
	// Number 0 means "same as the selenium port".
	Number int `mapstructure:"number"`
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
	Depth  int `mapstructure:"depth"`
	// ReadyCommand, when set, must exit 0 before the display counts as up.
	ReadyCommand string `mapstructure:"ready_command"`
}

type RecorderConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Binary        string        `mapstructure:"binary"`
	FrameRate     int           `mapstructure:"frame_rate"`
	Codec         string        `mapstructure:"codec"`
	Quality       int           `mapstructure:"quality"`
	PreStopGrace  time.Duration `mapstructure:"pre_stop_grace"`
	PostStopGrace time.Duration `mapstructure:"post_stop_grace"`
}

type ReadinessConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

type TestsConfig struct {
	Suffix           string `mapstructure:"suffix"`
	Browser          string `mapstructure:"browser"`
	ScratchDir       string `mapstructure:"scratch_dir"`
	OverridesFile    string `mapstructure:"overrides_file"`
	OverridesClass   string `mapstructure:"overrides_class"`
	ArtifactURL      string `mapstructure:"artifact_url"`
	FailureSignature string `mapstructure:"failure_signature"`
}

type RunnerConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

type HistoryConfig struct {
	// DSN selects the sink: sqlite://, postgres://, clickhouse://,
	// opensearch+http(s)://. Empty disables history.
	DSN string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	// File receives Prometheus text-format metrics after the run.
	File string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tests_dir", "")
	v.SetDefault("results_dir", "")
	v.SetDefault("base_url", "")
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})

	v.SetDefault("selenium.host", "127.0.0.1")
	v.SetDefault("selenium.port", 4444)
	v.SetDefault("selenium.java", "java")
	v.SetDefault("selenium.jar", "~/selenium-server/selenium-server-standalone.jar")
	v.SetDefault("selenium.profile_template", "")
	v.SetDefault("selenium.status_path", "/selenium-server/driver/?cmd=testComplete")
	v.SetDefault("selenium.probe_delay", 5*time.Second)
	v.SetDefault("selenium.probe_timeout", 2*time.Second)

	v.SetDefault("display.binary", "/usr/bin/Xvfb")
	v.SetDefault("display.number", 0)
	v.SetDefault("display.width", 1200)
	v.SetDefault("display.height", 2000)
	v.SetDefault("display.depth", 24)
	v.SetDefault("display.ready_command", "")

	v.SetDefault("recorder.enabled", true)
	v.SetDefault("recorder.binary", "ffmpeg")
	v.SetDefault("recorder.frame_rate", 50)
	v.SetDefault("recorder.codec", "mpeg4")
	v.SetDefault("recorder.quality", 1)
	v.SetDefault("recorder.pre_stop_grace", 3*time.Second)
	v.SetDefault("recorder.post_stop_grace", 5*time.Second)

	v.SetDefault("readiness.attempts", 45)
	v.SetDefault("readiness.interval", time.Second)

	v.SetDefault("tests.suffix", "Test.php")
	v.SetDefault("tests.browser", "*firefox")
	v.SetDefault("tests.scratch_dir", "")
	v.SetDefault("tests.overrides_file", "overrides.php")
	v.SetDefault("tests.overrides_class", "Harness_Overrides")
	v.SetDefault("tests.artifact_url", "")
	v.SetDefault("tests.failure_signature", "PHPUnit_Framework_Exception")

	v.SetDefault("runner.command", "phpunit")
	v.SetDefault("runner.args", []string{"--verbose", "--process-isolation"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("history.dsn", "")
	v.SetDefault("metrics.file", "")
}

// Default returns the configuration with every default applied and nothing
// read from files or the environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return c
}

// Load builds a Config from defaults, the optional TOML file at path and
// SELENIUMRUN_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// Validate reports missing or out-of-range settings.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.TestsDir) == "" {
		errs = append(errs, errors.New("tests_dir is required"))
	}
	if strings.TrimSpace(c.ResultsDir) == "" {
		errs = append(errs, errors.New("results_dir is required"))
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if c.Selenium.Host == "" {
		errs = append(errs, errors.New("selenium.host is required"))
	}
	if c.Selenium.Port < 1 || c.Selenium.Port > 65535 {
		errs = append(errs, fmt.Errorf("selenium.port %d out of range", c.Selenium.Port))
	}
	if c.Display.Number < 0 {
		errs = append(errs, fmt.Errorf("display.number %d must not be negative", c.Display.Number))
	}
	if c.Readiness.Attempts < 1 {
		errs = append(errs, errors.New("readiness.attempts must be at least 1"))
	}
	if c.Tests.Suffix == "" {
		errs = append(errs, errors.New("tests.suffix is required"))
	}
	if c.Runner.Command == "" {
		errs = append(errs, errors.New("runner.command is required"))
	}
	return errors.Join(errs...)
}

// DisplayNumber is the X display to launch: display.number, or the selenium
// port when unset.
func (c Config) DisplayNumber() int {
	if c.Display.Number > 0 {
		return c.Display.Number
	}
	return c.Selenium.Port
}

// ServiceEnv returns the extra "K=V" entries for launched services: env_files
// in order, then env. The result is sorted by key.
func (c Config) ServiceEnv() ([]string, error) {
	m := make(map[string]string)
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			m[k] = v
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines; blank lines and # comments are skipped.
func loadEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			m[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return m, nil
}
