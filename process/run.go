package process

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	goerrors "github.com/kbukum/cmdkit/errors"
	"github.com/kbukum/cmdkit/logger"
)

// Execute runs a single attempt, streaming output and error lines to the
// resolved handlers, and returns the exit code.
//
// When the exit-code check is enabled and the code is not accepted the
// error is COMMAND_FAILED. Canceling ctx sends SIGTERM to the child's
// process group, followed by SIGKILL after the grace period.
func (c *Command) Execute(ctx context.Context, args []string, opts ...CallOption) (int, error) {
	inv := c.resolve(args, opts)
	inv.id = uuid.NewString()

	code, d, err := c.attempt(ctx, inv, 0)
	if err != nil {
		return code, err
	}
	c.setResult(&Result{ExitCode: code, Duration: d})

	if inv.check && !inv.accepts(code) {
		return code, goerrors.CommandFailed(c.name, inv.args, code, "", "")
	}
	return code, nil
}

// attempt spawns the child once and drains it to completion. Attempts on
// one Command are serialized.
func (c *Command) attempt(ctx context.Context, inv *invocation, n int) (int, time.Duration, error) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	if err := ctx.Err(); err != nil {
		return -1, 0, goerrors.Canceled(c.name, err)
	}

	ctx, span := c.telemetry.startAttempt(ctx, c.name, inv, n)
	start := time.Now()
	code, err := c.launch(ctx, inv)
	d := time.Since(start)
	c.telemetry.endAttempt(ctx, span, c.name, code, err, d)

	return code, d, err
}

// launch starts the child with its output and error bound to pipes, drains
// both and reaps the child.
func (c *Command) launch(ctx context.Context, inv *invocation) (int, error) {
	cmd := c.build(inv)
	log := c.log.WithFields(logger.Fields(
		logger.FieldInvocationID, inv.id,
		logger.FieldCommand, c.name,
	))

	outR, outW, err := os.Pipe()
	if err != nil {
		return -1, goerrors.SpawnFailed(c.name, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(outR, outW)
		return -1, goerrors.SpawnFailed(c.name, err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	warnIgnoredSIGPIPE(log)
	log.Debug("starting command", logger.Fields(logger.FieldArgs, cmd.Args))

	if err := cmd.Start(); err != nil {
		closeAll(outR, outW, errR, errW)
		return -1, goerrors.SpawnFailed(c.name, err)
	}
	closeAll(outW, errW)
	c.setProcess(cmd.Process)
	stop := c.watch(ctx, cmd.Process, log)

	drainErr := drain(
		NewLineReader(outR, inv.outHandler),
		NewLineReader(errR, inv.errHandler),
	)
	if drainErr != nil {
		log.Warn("output stream failed, killing command", logger.Fields(logger.FieldError, drainErr.Error()))
		_ = cmd.Process.Kill()
		closeAll(outR, errR)
	}

	waitErr := cmd.Wait()
	stop()
	c.setProcess(nil)

	code := exitCode(cmd.ProcessState)
	log.Debug("command exited", logger.Fields(
		logger.FieldPID, cmd.Process.Pid,
		logger.FieldExitCode, code,
	))

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		log.Warn("wait reported an error", logger.Fields(logger.FieldError, waitErr.Error()))
	}

	switch {
	case drainErr != nil:
		return code, goerrors.StreamFailed(c.name, drainErr)
	case ctx.Err() != nil:
		return code, goerrors.Canceled(c.name, ctx.Err()).WithDetail("exit_code", code)
	}
	return code, nil
}

// build composes the exec.Cmd for one invocation. Cancellation is handled
// by watch, so the command is not bound to a context.
func (c *Command) build(inv *invocation) *exec.Cmd {
	var cmd *exec.Cmd
	if c.shell {
		cmd = exec.Command("/bin/sh", "-c", FullCommandQuote(c.name, inv.args))
	} else {
		cmd = exec.Command(c.path, inv.args...) //nolint:gosec // running arbitrary commands is the purpose of this package
	}
	cmd.Dir = c.dir
	cmd.Env = c.env

	// The child gets its own process group so a cancellation reaches the
	// whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Stdin is copied on exec's own goroutine and closed once written, so a
	// large input never blocks the draining loop. No input means /dev/null.
	if len(inv.stdin) > 0 {
		cmd.Stdin = bytes.NewReader(inv.stdin)
	}
	if !inv.closeFDs {
		cmd.ExtraFiles = c.inherit
	}
	return cmd
}

// watch terminates the child's process group once ctx is done. The returned
// function stops the watcher and waits for it to exit.
func (c *Command) watch(ctx context.Context, p *os.Process, log *logger.Logger) func() {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		select {
		case <-done:
			return
		case <-ctx.Done():
		}

		log.Info("context done, terminating command", logger.Fields(logger.FieldPID, p.Pid))
		signalGroup(p, syscall.SIGTERM)

		timer := time.NewTimer(c.grace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			log.Warn("grace period expired, killing command", logger.Fields(logger.FieldPID, p.Pid))
			signalGroup(p, syscall.SIGKILL)
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

func signalGroup(p *os.Process, sig syscall.Signal) {
	if err := syscall.Kill(-p.Pid, sig); err != nil {
		_ = p.Signal(sig)
	}
}

func (c *Command) setProcess(p *os.Process) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proc = p
}

func (c *Command) setResult(r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = r
}

// exitCode extracts the exit status, reporting -signum for a child killed
// by a signal.
func exitCode(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return ps.ExitCode()
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

var sigpipeOnce sync.Once

// warnIgnoredSIGPIPE reports an ignored SIGPIPE, which every child would
// inherit.
func warnIgnoredSIGPIPE(log *logger.Logger) {
	sigpipeOnce.Do(func() {
		if signal.Ignored(syscall.SIGPIPE) {
			log.Warn("SIGPIPE is ignored by this process and will be ignored by its children")
		}
	})
}
