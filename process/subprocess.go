package process

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"go.opentelemetry.io/otel/attribute"

	goerrors "github.com/kbukum/cmdkit/errors"
	"github.com/kbukum/cmdkit/logger"
	"github.com/kbukum/cmdkit/observability"
)

// SubInvocationConfig describes a detached run of the controlling program.
type SubInvocationConfig struct {
	// Command is the program to run. Empty means the current executable.
	Command string
	// Subcommand is the operation the child performs.
	Subcommand string
	// ConfigFile is passed to the child with -c. It is required.
	ConfigFile string
	// Args follow the subcommand.
	Args []string
	// KeepDescriptors leaves the child's stdout and stderr attached to the
	// controller's. Stdin always reads from /dev/null.
	KeepDescriptors bool
	// Logger defaults to the "process" component logger.
	Logger *logger.Logger
}

// SubInvocation spawns a detached copy of the controlling program.
type SubInvocation struct {
	argv []string
	keep bool
	log  *logger.Logger
}

// NewSubInvocation validates cfg and composes the child command line
// [command -c config -q subcommand args...].
func NewSubInvocation(cfg SubInvocationConfig) (*SubInvocation, error) {
	if cfg.ConfigFile == "" {
		return nil, goerrors.MissingField("config_file")
	}
	command := cfg.Command
	if command == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, goerrors.Internal(err)
		}
		command = exe
	}

	argv := []string{command, "-c", cfg.ConfigFile, "-q"}
	if cfg.Subcommand != "" {
		argv = append(argv, cfg.Subcommand)
	}
	argv = append(argv, cfg.Args...)

	log := cfg.Logger
	if log == nil {
		log = logger.Get("process")
	}
	return &SubInvocation{argv: argv, keep: cfg.KeepDescriptors, log: log}, nil
}

// Argv returns a copy of the child's argument vector.
func (s *SubInvocation) Argv() []string { return append([]string(nil), s.argv...) }

// Start launches the child in a new session and returns its pid without
// waiting for it. The child is reaped in the background.
func (s *SubInvocation) Start(ctx context.Context) (int, error) {
	_, span := observability.StartSpan(ctx, observability.SpanSubInvocation)
	defer span.End()

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, goerrors.SpawnFailed(s.argv[0], err)
	}
	defer devnull.Close()

	cmd := exec.Command(s.argv[0], s.argv[1:]...) //nolint:gosec // argv is built by NewSubInvocation
	cmd.Stdin = devnull
	if s.keep {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = devnull
		cmd.Stderr = devnull
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	s.log.Debug("starting sub-invocation", logger.Fields(logger.FieldArgs, s.argv))
	if err := cmd.Start(); err != nil {
		span.RecordError(err)
		return 0, goerrors.SpawnFailed(s.argv[0], err)
	}

	pid := cmd.Process.Pid
	span.SetAttributes(attribute.Int(observability.AttrPID, pid))
	s.log.Debug("sub-invocation started", logger.Fields(logger.FieldPID, pid))

	go func() { _ = cmd.Wait() }()
	return pid, nil
}
