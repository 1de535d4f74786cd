package main

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/seleniumrun"
)

const seleniumTest = `<?php
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

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

func seleniumStub(t *testing.T) (string, int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	t.Cleanup(srv.Close)
	host, p, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return host, port
}

func TestApplyRunArgs(t *testing.T) {
	cfg := seleniumrun.DefaultConfig()
	err := applyRunArgs(&cfg, []string{"/tests", "/results", "http://site/", "grid", "5555"}, RunFlags{
		Browser:     "*googlechrome",
		NoRecord:    true,
		ArtifactURL: "https://ci/job/1/",
		MetricsFile: "/tmp/m.prom",
	})
	require.NoError(t, err)
	assert.Equal(t, "/tests", cfg.TestsDir)
	assert.Equal(t, "/results", cfg.ResultsDir)
	assert.Equal(t, "http://site/", cfg.BaseURL)
	assert.Equal(t, "grid", cfg.Selenium.Host)
	assert.Equal(t, 5555, cfg.Selenium.Port)
	assert.Equal(t, "*googlechrome", cfg.Tests.Browser)
	assert.False(t, cfg.Recorder.Enabled)
	assert.Equal(t, "https://ci/job/1/", cfg.Tests.ArtifactURL)
	assert.Equal(t, "/tmp/m.prom", cfg.Metrics.File)

	cfg = seleniumrun.DefaultConfig()
	require.NoError(t, applyRunArgs(&cfg, []string{"/tests"}, RunFlags{}))
	assert.Equal(t, "127.0.0.1", cfg.Selenium.Host, "missing args keep config values")
	assert.True(t, cfg.Recorder.Enabled)

	err = applyRunArgs(&cfg, []string{"a", "b", "c", "d", "http"}, RunFlags{})
	assert.ErrorContains(t, err, "invalid selenium port")
}

func TestRunMissingArgs(t *testing.T) {
	t.Setenv("SELENIUMRUN_TESTS_DIR", "")
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tests_dir")
}

func TestProbeCommand(t *testing.T) {
	host, port := seleniumStub(t)
	out, err := execute(t, "probe", "--delay", "0s", "--host", host, "--port", strconv.Itoa(port))
	require.NoError(t, err)
	assert.Contains(t, out, "selenium is running")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closed := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	_, err = execute(t, "probe", "--delay", "0s", "--host", "127.0.0.1", "--port", strconv.Itoa(closed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestProbeTarget(t *testing.T) {
	cfg := seleniumrun.DefaultConfig()
	cfg.Selenium.ProbeDelay = 250 * time.Millisecond

	host, port, delay := probeTarget(cfg, ProbeFlags{})
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, 4444, port)
	assert.Equal(t, 250*time.Millisecond, delay, "unset --delay falls back to selenium.probe_delay")

	host, port, delay = probeTarget(cfg, ProbeFlags{Host: "grid", Port: 5555, DelaySet: true})
	assert.Equal(t, "grid", host)
	assert.Equal(t, 5555, port)
	assert.Zero(t, delay, "explicit --delay 0 wins")
}

func TestProbeCommandUsesConfiguredDelay(t *testing.T) {
	host, port := seleniumStub(t)
	cfgPath := filepath.Join(t.TempDir(), "seleniumrun.toml")
	writeFile(t, cfgPath, "[selenium]\nprobe_delay = \"300ms\"\n", 0o644)

	start := time.Now()
	out, err := execute(t, "probe", "--config", cfgPath, "--host", host, "--port", strconv.Itoa(port))
	require.NoError(t, err)
	assert.Contains(t, out, "selenium is running")
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestDiscoverCommand(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "LoginTest.php")
	invalid := filepath.Join(dir, "lib", "HelperTest.php")
	writeFile(t, valid, seleniumTest, 0o644)
	writeFile(t, invalid, "<?php class Helper {}", 0o644)
	writeFile(t, filepath.Join(dir, "README.md"), "docs", 0o644)

	out, err := execute(t, "discover", dir)
	require.NoError(t, err)
	assert.Equal(t, valid+"\n", out)

	out, err = execute(t, "discover", "--all", dir)
	require.NoError(t, err)
	assert.Contains(t, out, invalid+" (skipped")

	_, err = execute(t, "discover")
	require.Error(t, err)
}

// Runs the whole pipeline against a stub Selenium server and a shell script
// standing in for phpunit.
func TestRunAgainstExternalServer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	host, port := seleniumStub(t)
	root := t.TempDir()
	tests := filepath.Join(root, "tests")
	results := filepath.Join(root, "results")
	metricsFile := filepath.Join(root, "metrics.prom")
	historyDB := filepath.Join(root, "history.db")
	phpunit := filepath.Join(root, "phpunit")
	writeFile(t, filepath.Join(tests, "LoginTest.php"), seleniumTest, 0o644)
	writeFile(t, phpunit, "#!/bin/sh\necho 'OK (1 test, 1 assertion)'\n", 0o755)

	cfgPath := filepath.Join(root, "seleniumrun.toml")
	writeFile(t, cfgPath, `
[selenium]
probe_delay = "0s"

[tests]
scratch_dir = "`+root+`"

[runner]
command = "`+phpunit+`"

[log]
color = false
level = "warn"
`, 0o644)

	out, err := execute(t, "run", "--config", cfgPath,
		"--metrics-file", metricsFile,
		"--history-dsn", "sqlite://"+historyDB,
		tests, results, "http://app.local/", host, strconv.Itoa(port))
	require.NoError(t, err)
	assert.Contains(t, out, "1 tests: 1 passed, 0 failed, 0 errors, 0 skipped (external server")

	_, err = os.Stat(filepath.Join(results, "summary.json"))
	assert.NoError(t, err)
	m, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(m), "seleniumrun_test_results_total")
	_, err = os.Stat(historyDB)
	assert.NoError(t, err)
}
