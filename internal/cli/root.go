// Package cli implements the cmdkit command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kbukum/cmdkit/config"
	"github.com/kbukum/cmdkit/logger"
	"github.com/kbukum/cmdkit/observability"
	"github.com/kbukum/cmdkit/signals"
	"github.com/kbukum/cmdkit/version"
)

// app carries the state shared by every subcommand of one execution.
type app struct {
	configFile string
	quiet      bool
	logLevel   string
	noColor    bool

	stdout io.Writer
	stderr io.Writer

	cfg      *config.Config
	log      *logger.Logger
	registry *signals.Registry
	shutdown observability.ShutdownFunc
	exit     func(code int)
	once     sync.Once
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:   stdout,
		stderr:   stderr,
		registry: signals.Default,
		exit:     os.Exit,
	}
}

// NewRootCommand creates the root cobra command writing to the process's
// standard streams.
func NewRootCommand() *cobra.Command {
	return newApp(os.Stdout, os.Stderr).rootCommand()
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cmdkit",
		Short: "Supervised execution of external commands",
		Long: `cmdkit runs external commands under supervision: output and error
lines are streamed as they arrive, exit codes are checked against an
accepted set, failed runs are retried, and termination signals are
forwarded to the child.

Commands can be given ad hoc after "--" or as named profiles in
cmdkit.yml.`,
		Version:       version.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "configuration file (default: search for cmdkit.yml)")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "do not echo command output; log errors only")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(a.runCommand())
	cmd.AddCommand(a.rsyncCommand())
	cmd.AddCommand(a.spawnCommand())
	cmd.AddCommand(a.configCommand())
	cmd.AddCommand(a.versionCommand())

	return cmd
}

// setup loads the configuration and installs logging and telemetry.
func (a *app) setup(ctx context.Context) error {
	var opts []config.LoaderOption
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	if a.logLevel != "" {
		logCfg.Level = a.logLevel
	}
	if a.quiet {
		logCfg.Level = "error"
	}
	if a.noColor || !isTerminal(a.stderr) {
		logCfg.NoColor = true
	}
	if err := logCfg.Validate(); err != nil {
		return invalidFlag("log-level", err)
	}

	a.cfg = cfg
	a.log = logger.NewWithWriter(a.stderr, &logCfg, cfg.Name).
		WithFields(logger.Fields("run_id", uuid.NewString()))
	logger.SetGlobalLogger(a.log)
	logger.Register("process", a.log.WithComponent("process"))

	a.shutdown, err = observability.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	a.registry.SetBase(syscall.SIGTERM, signals.HandlerFunc(a.terminate))
	if cfg.File != "" {
		a.log.Debug("configuration loaded", logger.Fields("config_file", cfg.File))
	}
	return nil
}

// terminate is the SIGTERM base disposition while a command runs: it runs
// after the forwarding handlers and flushes telemetry before exiting.
func (a *app) terminate(os.Signal) {
	a.close(context.Background())
	a.exit(128 + int(syscall.SIGTERM))
}

// close flushes telemetry and restores the default SIGTERM disposition.
// Only the first call has an effect.
func (a *app) close(ctx context.Context) {
	a.once.Do(func() {
		a.registry.SetBase(syscall.SIGTERM, nil)
		if a.shutdown == nil {
			return
		}
		if err := a.shutdown(ctx); err != nil && a.log != nil {
			a.log.WithError(err).Warn("telemetry shutdown failed")
		}
	})
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	return execute(ctx, newApp(os.Stdout, os.Stderr), args)
}

func execute(ctx context.Context, a *app, args []string) int {
	root := a.rootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	a.close(context.WithoutCancel(ctx))

	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}
