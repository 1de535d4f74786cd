package testdef

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
)

// Runner executes a materialized test file found in dir and returns its
// combined output. A failing test is not an error; only failing to run is.
type Runner interface {
	Run(ctx context.Context, dir, file, resultsFile string) (string, error)
}

var DefaultPHPUnitArgs = []string{"--verbose", "--process-isolation"}

// PHPUnitRunner runs tests with the phpunit CLI, writing JUnit XML to the
// results file.
type PHPUnitRunner struct {
	Command string   // default "phpunit"
	Args    []string // default DefaultPHPUnitArgs
	Logger  *slog.Logger
}

func (r PHPUnitRunner) argv(file, resultsFile string) []string {
	command := r.Command
	if command == "" {
		command = "phpunit"
	}
	args := r.Args
	if args == nil {
		args = DefaultPHPUnitArgs
	}
	argv := append([]string{command}, args...)
	return append(argv, "--log-junit", resultsFile, file)
}

func (r PHPUnitRunner) Run(ctx context.Context, dir, file, resultsFile string) (string, error) {
	argv := r.argv(file, resultsFile)
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("running test", "command", argv, "dir", dir)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return string(out), nil
	}
	return string(out), err
}
