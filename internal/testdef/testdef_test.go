package testdef

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTest = `<?php
require_once 'PHPUnit/Extensions/SeleniumTestCase.php';

class Example extends PHPUnit_Extensions_SeleniumTestCase
{
  protected $captureScreenshotOnFailure = TRUE;
  protected $screenshotPath = '/var/www/screenshots';
  protected $screenshotUrl = 'http://localhost/screenshots';

  protected function setUp()
  {
    $this->setBrowser("*chrome");
    $this->setBrowserUrl("http://change-this-to-the-site-you-are-testing/");
  }

  public function testMyTestCase()
  {
    $this->open("/");
  }
}
`

type endpoint struct {
	host string
	port int
}

func (e endpoint) Host() string { return e.host }
func (e endpoint) Port() int    { return e.port }

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestNewRewritesAllRegions(t *testing.T) {
	src := writeSource(t, t.TempDir(), "LoginTest.php", sampleTest)
	scratch := t.TempDir()

	d, err := New(endpoint{"10.0.0.5", 5555}, src, "http://app.local/", Options{
		Browser:        "*googlechrome",
		ResultsDir:     "/tmp/results",
		ArtifactURL:    "https://ci.local/job/7/",
		OverridesFile:  "/opt/harness/overrides.php",
		OverridesClass: "Harness_Overrides",
		ScratchDir:     scratch,
	})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, "LoginTest", d.Name())
	assert.Equal(t, src, d.Source())
	assert.Equal(t, "LoginTest.php", filepath.Base(d.Path()))
	assert.True(t, strings.HasPrefix(d.Path(), scratch))

	b, err := os.ReadFile(d.Path())
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, "require_once '/opt/harness/overrides.php';")
	assert.Contains(t, out, "class LoginTest extends Harness_Overrides")
	assert.NotContains(t, out, Marker)
	assert.Contains(t, out, "protected $screenshotPath = '/tmp/results';")
	assert.Contains(t, out, "protected $screenshotUrl = 'https://ci.local/job/7/artifact/results/';")
	assert.Contains(t, out, "$this->setBrowser('*googlechrome');")
	assert.Contains(t, out,
		"$this->setBrowserUrl('http://app.local/');$this->setHost('10.0.0.5');$this->setPort(5555);")
	assert.NotContains(t, out, "change-this-to-the-site")
}

func TestNewDefaultBrowser(t *testing.T) {
	src := writeSource(t, t.TempDir(), "HomeTest.php", sampleTest)
	d, err := New(endpoint{"127.0.0.1", 4444}, src, "http://x/", Options{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	defer d.Close()

	b, err := os.ReadFile(d.Path())
	require.NoError(t, err)
	assert.Contains(t, string(b), "$this->setBrowser('*firefox');")
}

func TestNewRejectsInvalidSource(t *testing.T) {
	src := writeSource(t, t.TempDir(), "HelperTest.php", "<?php\nclass Helper {}\n")
	scratch := t.TempDir()

	d, err := New(endpoint{"127.0.0.1", 4444}, src, "http://x/", Options{ScratchDir: scratch})
	assert.Nil(t, d)
	assert.True(t, errors.Is(err, ErrInvalidTest))

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "invalid test must not create scratch files")
}

func TestNewMissingSource(t *testing.T) {
	_, err := New(endpoint{"h", 1}, filepath.Join(t.TempDir(), "NopeTest.php"), "u", Options{ScratchDir: t.TempDir()})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidTest))
}

func TestCloseRoundTrip(t *testing.T) {
	src := writeSource(t, t.TempDir(), "CartTest.php", sampleTest)
	scratch := t.TempDir()
	d, err := New(endpoint{"h", 1}, src, "u", Options{ScratchDir: scratch})
	require.NoError(t, err)

	d.Close()
	d.Close()
	var nilDef *Definition
	nilDef.Close()

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = d.Run(context.Background(), "/tmp/x.xml")
	assert.Error(t, err)
}

type cacheWritingRunner struct{}

func (cacheWritingRunner) Run(_ context.Context, dir, _, _ string) (string, error) {
	if err := os.WriteFile(filepath.Join(dir, ".phpunit.result.cache"), []byte("{}"), 0o600); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(dir, "tmp", "sessions"), 0o700); err != nil {
		return "", err
	}
	return "OK (1 test)", nil
}

func TestCloseRemovesRunnerLeftovers(t *testing.T) {
	src := writeSource(t, t.TempDir(), "CacheTest.php", sampleTest)
	scratch := t.TempDir()
	d, err := New(endpoint{"h", 1}, src, "u", Options{ScratchDir: scratch, Runner: cacheWritingRunner{}})
	require.NoError(t, err)

	_, err = d.Run(context.Background(), filepath.Join(t.TempDir(), "CacheTest.xml"))
	require.NoError(t, err)
	d.Close()

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSameBasenameGetsDistinctScratch(t *testing.T) {
	root := t.TempDir()
	a := writeSource(t, filepath.Join(root, "a"), "LoginTest.php", sampleTest)
	b := writeSource(t, filepath.Join(root, "b"), "LoginTest.php", sampleTest)
	scratch := t.TempDir()

	da, err := New(endpoint{"h", 1}, a, "u", Options{ScratchDir: scratch})
	require.NoError(t, err)
	defer da.Close()
	db, err := New(endpoint{"h", 1}, b, "u", Options{ScratchDir: scratch})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, da.Name(), db.Name())
	assert.NotEqual(t, da.Path(), db.Path())

	db.Close()
	_, err = os.Stat(da.Path())
	assert.NoError(t, err, "closing one definition must not affect another")
}

type recordingRunner struct {
	dir, file, results string
}

func (r *recordingRunner) Run(_ context.Context, dir, file, resultsFile string) (string, error) {
	r.dir, r.file, r.results = dir, file, resultsFile
	return "OK (1 test)", nil
}

func TestRunUsesScratchDir(t *testing.T) {
	src := writeSource(t, t.TempDir(), "SearchTest.php", sampleTest)
	rr := &recordingRunner{}
	d, err := New(endpoint{"h", 1}, src, "u", Options{ScratchDir: t.TempDir(), Runner: rr})
	require.NoError(t, err)
	defer d.Close()

	out, err := d.Run(context.Background(), "/tmp/results/SearchTest.xml")
	require.NoError(t, err)
	assert.Equal(t, "OK (1 test)", out)
	assert.Equal(t, filepath.Dir(d.Path()), rr.dir)
	assert.Equal(t, "SearchTest.php", rr.file)
	assert.Equal(t, "/tmp/results/SearchTest.xml", rr.results)
}

func TestPHPUnitRunnerArgv(t *testing.T) {
	got := PHPUnitRunner{}.argv("LoginTest.php", "/r/LoginTest.xml")
	assert.Equal(t, []string{"phpunit", "--verbose", "--process-isolation", "--log-junit", "/r/LoginTest.xml", "LoginTest.php"}, got)

	got = PHPUnitRunner{Command: "vendor/bin/phpunit", Args: []string{}}.argv("A.php", "a.xml")
	assert.Equal(t, []string{"vendor/bin/phpunit", "--log-junit", "a.xml", "A.php"}, got)
}

func TestPHPUnitRunnerFailingTestIsNotAnError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	bin := filepath.Join(t.TempDir(), "phpunit")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho \"cwd=$(pwd) args=$*\"\nexit 1\n"), 0o755))
	dir := t.TempDir()

	out, err := PHPUnitRunner{Command: bin}.Run(context.Background(), dir, "LoginTest.php", "/r/LoginTest.xml")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Base(dir)+" args=")
	assert.Contains(t, out, "--log-junit /r/LoginTest.xml LoginTest.php")

	_, err = PHPUnitRunner{Command: filepath.Join(t.TempDir(), "missing")}.Run(context.Background(), dir, "A.php", "a.xml")
	require.Error(t, err)
}

func TestIsTest(t *testing.T) {
	dir := t.TempDir()
	ok, err := IsTest(writeSource(t, dir, "LoginTest.php", sampleTest))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsTest(writeSource(t, dir, "HelperTest.php", "<?php"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = IsTest(filepath.Join(dir, "missing.php"))
	assert.Error(t, err)
}
