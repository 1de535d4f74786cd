package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", c.Selenium.Host)
	assert.Equal(t, 4444, c.Selenium.Port)
	assert.Equal(t, 5*time.Second, c.Selenium.ProbeDelay)
	assert.Equal(t, 2*time.Second, c.Selenium.ProbeTimeout)
	assert.Equal(t, "/selenium-server/driver/?cmd=testComplete", c.Selenium.StatusPath)
	assert.Equal(t, 1200, c.Display.Width)
	assert.Equal(t, 2000, c.Display.Height)
	assert.True(t, c.Recorder.Enabled)
	assert.Equal(t, 3*time.Second, c.Recorder.PreStopGrace)
	assert.Equal(t, 5*time.Second, c.Recorder.PostStopGrace)
	assert.Equal(t, 45, c.Readiness.Attempts)
	assert.Equal(t, time.Second, c.Readiness.Interval)
	assert.Equal(t, "Test.php", c.Tests.Suffix)
	assert.Equal(t, "*firefox", c.Tests.Browser)
	assert.Equal(t, "PHPUnit_Framework_Exception", c.Tests.FailureSignature)
	assert.Equal(t, []string{"--verbose", "--process-isolation"}, c.Runner.Args)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, Default(), c)
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, "seleniumrun.toml", `
tests_dir = "/src/tests"
results_dir = "/tmp/results"
base_url = "http://app.local/"

[selenium]
port = 5555
probe_delay = "250ms"

[display]
number = 99
ready_command = "xdpyinfo"

[recorder]
enabled = false
pre_stop_grace = "1s"

[tests]
browser = "*chrome"
artifact_url = "https://ci.local/job/42/"

[runner]
args = ["--debug"]

[history]
dsn = "sqlite:///tmp/history.db"
`)
	c, err := Load(p)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "/src/tests", c.TestsDir)
	assert.Equal(t, 5555, c.Selenium.Port)
	assert.Equal(t, 250*time.Millisecond, c.Selenium.ProbeDelay)
	assert.Equal(t, "127.0.0.1", c.Selenium.Host, "unset keys keep defaults")
	assert.Equal(t, 99, c.DisplayNumber())
	assert.Equal(t, "xdpyinfo", c.Display.ReadyCommand)
	assert.False(t, c.Recorder.Enabled)
	assert.Equal(t, time.Second, c.Recorder.PreStopGrace)
	assert.Equal(t, "*chrome", c.Tests.Browser)
	assert.Equal(t, []string{"--debug"}, c.Runner.Args)
	assert.Equal(t, "sqlite:///tmp/history.db", c.History.DSN)
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, "c.toml", "[selenium]\nport = 5555\n")
	t.Setenv("SELENIUMRUN_SELENIUM_PORT", "6666")
	t.Setenv("SELENIUMRUN_TESTS_BROWSER", "*googlechrome")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 6666, c.Selenium.Port)
	assert.Equal(t, "*googlechrome", c.Tests.Browser)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	p := writeFile(t, "bad.toml", "[selenium\nport = ")
	_, err = Load(p)
	require.Error(t, err)

	p = writeFile(t, "types.toml", "[selenium]\nport = \"not-a-number\"\n")
	_, err = Load(p)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := Default()
	err := c.Validate()
	require.Error(t, err)
	for _, want := range []string{"tests_dir", "results_dir", "base_url"} {
		assert.Contains(t, err.Error(), want)
	}

	c.TestsDir, c.ResultsDir, c.BaseURL = "t", "r", "http://x/"
	require.NoError(t, c.Validate())

	c.Selenium.Port = 0
	assert.ErrorContains(t, c.Validate(), "selenium.port")
	c.Selenium.Port = 4444
	c.Readiness.Attempts = 0
	assert.ErrorContains(t, c.Validate(), "readiness.attempts")
}

func TestDisplayNumberFollowsPort(t *testing.T) {
	c := Default()
	assert.Equal(t, 4444, c.DisplayNumber())
	c.Selenium.Port = 4445
	assert.Equal(t, 4445, c.DisplayNumber())
}

func TestServiceEnv(t *testing.T) {
	dotenv := writeFile(t, ".env", "A=1\n#comment\n\nB = two\nSHARED=file\n")
	c := Default()
	c.EnvFiles = []string{dotenv}
	c.Env = []string{"SHARED=top", "C=3", "broken"}

	got, err := c.ServiceEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=two", "C=3", "SHARED=top"}, got)

	c.EnvFiles = []string{filepath.Join(t.TempDir(), "nope.env")}
	_, err = c.ServiceEnv()
	require.Error(t, err)
}
