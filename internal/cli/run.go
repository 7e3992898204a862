package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/cmdkit/config"
	goerrors "github.com/kbukum/cmdkit/errors"
	"github.com/kbukum/cmdkit/internal/lockfile"
	"github.com/kbukum/cmdkit/logger"
	"github.com/kbukum/cmdkit/process"
	"github.com/kbukum/cmdkit/signals"
)

func (a *app) runCommand() *cobra.Command {
	var (
		f     policyFlags
		shell bool
		env   []string
		path  string
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "run <profile> [args...] | run -- <command> [args...]",
		Short: "Run a profile or an ad hoc command under supervision",
		Long: `Run a command and stream its output and error lines.

The first argument names a profile from the configuration file. When it
does not, or when the arguments start after "--", they are the command
line itself. Flags set here override the profile.

Without --check the command's exit code becomes cmdkit's exit code. With
--check, exit codes outside --allow fail the run and are retried up to
--retry times.

Examples:
  cmdkit run nightly
  cmdkit run nightly -- --verbose
  cmdkit run --check --allow 0,1 --retry 3 --retry-sleep 10s -- ping -c1 db1
  cmdkit run --shell -- 'pg_dump main | gzip > /backup/main.gz'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, profile, extra, err := a.resolveProfile(cmd, args)
			if err != nil {
				return err
			}

			opts := profile.Options()
			if cmd.Flags().Changed("shell") {
				opts = append(opts, process.WithShell(shell))
			}
			if len(env) > 0 {
				merged, err := mergeEnvFlags(profile.EnvMap(), env)
				if err != nil {
					return err
				}
				opts = append(opts, process.WithEnv(merged))
			}
			if path != "" {
				opts = append(opts, process.WithPath(path))
			}
			if dir != "" {
				opts = append(opts, process.WithDir(dir))
			}
			opts = append(opts, f.options(cmd, profile.RetryTimes, profile.RetrySleep)...)
			opts = append(opts, a.commandOptions()...)

			c, err := process.New(profile.Command, opts...)
			if err != nil {
				return err
			}
			callOpts, checkOverride, err := f.callOptions(cmd, profile.Overrides)
			if err != nil {
				return err
			}

			lock := profile.LockFile
			if cmd.Flags().Changed("lock-file") {
				lock = f.lockFile
			}
			checked := profile.Check
			if checkOverride != nil {
				checked = *checkOverride
			}
			if cmd.Flags().Changed("check") {
				checked = f.check
			}
			a.log.Debug("running", logger.Fields("profile", name, logger.FieldCommand, c.Path()))
			return a.supervise(cmd.Context(), c, extra, callOpts, supervision{
				checked:  checked,
				lockFile: lock,
				forward:  f.forwardSignals(cmd, profile.ForwardSignals),
			})
		},
	}

	f.register(cmd)
	flags := cmd.Flags()
	flags.BoolVar(&shell, "shell", false, "run the command line through /bin/sh -c")
	flags.StringArrayVar(&env, "env", nil, "set KEY=VALUE in the command's environment")
	flags.StringVar(&path, "path", "", "search path used to find the command")
	flags.StringVar(&dir, "dir", "", "working directory of the command")

	return cmd
}

// resolveProfile picks the profile named by the first argument, or builds
// an ad hoc one from the command line.
func (a *app) resolveProfile(cmd *cobra.Command, args []string) (string, config.CommandProfile, []string, error) {
	dash := cmd.ArgsLenAtDash()
	if dash == 0 {
		return args[0], config.CommandProfile{Command: args[0]}, args[1:], nil
	}
	if p, ok := a.cfg.Profile(args[0]); ok {
		return args[0], p, args[1:], nil
	}
	if dash > 0 {
		return "", config.CommandProfile{}, nil, goerrors.InvalidInput("profile",
			fmt.Sprintf("no profile named %q (known: %s)", args[0], strings.Join(a.cfg.ProfileNames(), ", ")))
	}
	return args[0], config.CommandProfile{Command: args[0]}, args[1:], nil
}

// commandOptions wires the command to cmdkit's logger and signal registry.
func (a *app) commandOptions() []process.Option {
	log := logger.Get("process")
	return []process.Option{
		process.WithLogger(log),
		process.WithRetryObserver(process.LogRetryObserver(log)),
		process.WithSignalRegistry(a.registry),
	}
}

// runner is satisfied by *process.Command and *process.Rsync.
type runner interface {
	Run(ctx context.Context, args []string, opts ...process.CallOption) (int, error)
	EnableSignalForwarding(sig os.Signal) *signals.Registration
}

type supervision struct {
	// checked means the exit code was already judged by the command's
	// policy, so an accepted non-zero code is a success.
	checked  bool
	lockFile string
	forward  []string
}

// supervise holds the lock, forwards signals and runs the command with
// its output echoed to the terminal. Unchecked non-zero exit codes become
// cmdkit's exit code.
func (a *app) supervise(ctx context.Context, r runner, args []string, callOpts []process.CallOption, s supervision) error {
	sigs, err := signals.ParseAll(s.forward)
	if err != nil {
		return invalidFlag("forward", err)
	}

	if s.lockFile != "" {
		lock, err := lockfile.Acquire(s.lockFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				a.log.WithError(err).Warn("failed to release lock")
			}
		}()
	}

	for _, sig := range sigs {
		reg := r.EnableSignalForwarding(sig)
		defer reg.Revert()
	}

	out, errs := a.sinks()
	opts := append([]process.CallOption{process.OutHandler(out), process.ErrHandler(errs)}, callOpts...)

	code, err := r.Run(ctx, args, opts...)
	if err != nil {
		return err
	}
	if code != 0 && !s.checked {
		return &ExitError{Code: shellStatus(code)}
	}
	if code != 0 {
		a.log.Info("accepted exit code", logger.Fields(logger.FieldExitCode, code))
	}
	return nil
}

func mergeEnvFlags(base map[string]string, pairs []string) (map[string]string, error) {
	merged := make(map[string]string, len(base)+len(pairs))
	for k, v := range base {
		merged[k] = v
	}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, goerrors.InvalidInput("env", fmt.Sprintf("%q is not KEY=VALUE", pair))
		}
		merged[k] = v
	}
	return merged, nil
}
