package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := buildRoot()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	NoColor    bool
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	probeFlags := &ProbeFlags{}
	discoverFlags := &DiscoverFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags, runFlags),
		createProbeCommand(globalFlags, probeFlags),
		createDiscoverCommand(globalFlags, discoverFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "seleniumrun",
		Short: "Run Selenium RC test suites on a disposable virtual display",
		Long: `seleniumrun discovers Selenium RC tests, reuses a running Selenium server
or starts Xvfb and a local server, and runs every test with a screen recording.

Examples:
  seleniumrun run ./tests ./results http://staging.local/
  seleniumrun run ./tests ./results http://staging.local/ grid.local 4444
  seleniumrun probe --host grid.local --port 4444
  seleniumrun discover ./tests`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level override (debug|info|warn|error)")
	root.PersistentFlags().BoolVar(&flags.NoColor, "no-color", false, "disable colored console output")
	return root
}

func createRunCommand(g *GlobalFlags, f *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [tests-dir results-dir base-url [selenium-host [selenium-port]]]",
		Short: "Run every Selenium test found in a directory",
		Long: `Run discovers files ending in the test suffix below tests-dir, rewrites them to
target base-url and the Selenium server, and writes one JUnit XML file (and one
video when the display is owned) per test into results-dir, which is recreated.
Positional arguments override the config file.`,
		Args: cobra.RangeArgs(0, 5),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := command{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
			return c.Run(cmd.Context(), *g, *f, args)
		},
	}
	cmd.Flags().StringVar(&f.Browser, "browser", "", "browser identifier, e.g. *firefox")
	cmd.Flags().BoolVar(&f.NoRecord, "no-record", false, "do not record test videos")
	cmd.Flags().StringVar(&f.ArtifactURL, "artifact-url", "", "CI build URL used for screenshot links")
	cmd.Flags().StringVar(&f.HistoryDSN, "history-dsn", "", "history sink DSN (sqlite://, postgres://, clickhouse://, opensearch://)")
	cmd.Flags().StringVar(&f.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	return cmd
}

func createProbeCommand(g *GlobalFlags, f *ProbeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether a Selenium server answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := command{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
			f.DelaySet = cmd.Flags().Changed("delay")
			return c.Probe(cmd.Context(), *g, *f)
		},
	}
	cmd.Flags().StringVar(&f.Host, "host", "", "selenium host (default from config)")
	cmd.Flags().IntVar(&f.Port, "port", 0, "selenium port (default from config)")
	cmd.Flags().DurationVar(&f.Delay, "delay", 0, "wait before probing (default selenium.probe_delay)")
	return cmd
}

func createDiscoverCommand(g *GlobalFlags, f *DiscoverFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover [tests-dir]",
		Short: "List the Selenium tests a run would execute",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := command{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
			return c.Discover(*g, *f, args)
		},
	}
	cmd.Flags().BoolVar(&f.All, "all", false, "also list matching files that are not Selenium tests")
	return cmd
}
