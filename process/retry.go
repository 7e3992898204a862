package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	goerrors "github.com/kbukum/cmdkit/errors"
	"github.com/kbukum/cmdkit/logger"
	"github.com/kbukum/cmdkit/resilience"
)

// GetOutput runs the command and returns its captured output and error
// text. Lines are collected in memory instead of going to the default
// handlers; per-call handlers, when given, still see every line.
//
// A rejected exit code is retried up to the configured budget, notifying
// the retry observer before every pause. With no budget the COMMAND_FAILED
// error is returned as is; once at least one retry happened the error is
// MAX_RETRY_EXCEEDED wrapping the last failure.
func (c *Command) GetOutput(ctx context.Context, args []string, opts ...CallOption) (string, string, error) {
	res, err := c.getOutput(ctx, args, opts)
	if res == nil {
		return "", "", err
	}
	return res.Out, res.Err, err
}

// Run behaves like GetOutput and returns the exit code of the last attempt.
func (c *Command) Run(ctx context.Context, args []string, opts ...CallOption) (int, error) {
	res, err := c.getOutput(ctx, args, opts)
	if res == nil {
		return -1, err
	}
	return res.ExitCode, err
}

func (c *Command) getOutput(ctx context.Context, args []string, opts []CallOption) (*Result, error) {
	id := uuid.NewString()
	var last *Result

	cfg := resilience.RetryConfig{
		Times:         c.retryTimes,
		Delay:         c.retryDelay,
		BackoffFactor: c.backoff,
		RetryIf:       IsCommandFailed,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			c.telemetry.recordRetry(ctx, c.name)
			c.notifyRetry(RetryContext{
				Command: c,
				Args:    append([]string(nil), args...),
				Options: opts,
				Attempt: attempt,
				Err:     err,
			})
		},
	}

	res, err := resilience.Retry(ctx, cfg, func(attempt int) (*Result, error) {
		r, err := c.getOutputOnce(ctx, id, args, opts, attempt)
		if r != nil {
			last = r
		}
		return r, err
	})
	if err == nil {
		return res, nil
	}

	var exhausted *resilience.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		err = goerrors.MaxRetryExceeded(exhausted.Attempts, exhausted.Last)
	case goerrors.CodeOf(err) == "" && ctx.Err() != nil:
		err = goerrors.Canceled(c.name, err)
	}
	c.telemetry.recordFailure(ctx, c.name, err)
	return last, err
}

// getOutputOnce runs one attempt with in-memory collectors and applies the
// exit-code policy.
func (c *Command) getOutputOnce(ctx context.Context, id string, args []string, opts []CallOption, attempt int) (*Result, error) {
	inv := c.resolve(args, opts)
	inv.id = id

	out, errs := &Collector{}, &Collector{}
	if inv.customOut {
		inv.outHandler = MultiHandler(out, inv.outHandler)
	} else {
		inv.outHandler = out
	}
	if inv.customErr {
		inv.errHandler = MultiHandler(errs, inv.errHandler)
	} else {
		inv.errHandler = errs
	}

	code, d, err := c.attempt(ctx, inv, attempt)
	if goerrors.CodeOf(err) == goerrors.ErrCodeStreamFailed || goerrors.CodeOf(err) == goerrors.ErrCodeSpawnFailed {
		return nil, err
	}

	res := &Result{
		Out:      out.String(),
		Err:      errs.String(),
		ExitCode: code,
		Attempt:  attempt,
		Duration: d,
	}
	c.setResult(res)

	if c.log.Enabled(zerolog.DebugLevel) {
		c.log.Debug("command output", logger.Fields(
			logger.FieldInvocationID, id,
			"stdout", res.Out,
			"stderr", res.Err,
		))
	}

	if err != nil {
		return res, err
	}
	if inv.check && !inv.accepts(code) {
		return res, goerrors.CommandFailed(c.name, inv.args, code, res.Out, res.Err).
			WithDetail("attempt", attempt)
	}
	return res, nil
}

// notifyRetry calls the observer. A panicking observer is logged and does
// not stop the retry loop.
func (c *Command) notifyRetry(rc RetryContext) {
	if c.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("retry observer panicked", logger.Fields(
				logger.FieldCommand, c.name,
				logger.FieldAttempt, rc.Attempt,
				"panic", fmt.Sprint(r),
			))
		}
	}()
	c.observer.ObserveRetry(rc)
}

// IsCommandFailed reports whether err is a rejected exit code.
func IsCommandFailed(err error) bool {
	return goerrors.CodeOf(err) == goerrors.ErrCodeCommandFailed
}

// IsMaxRetryExceeded reports whether err means the retry budget ran out.
func IsMaxRetryExceeded(err error) bool {
	return goerrors.CodeOf(err) == goerrors.ErrCodeMaxRetryExceeded
}

// ExitCodeOf returns the exit code recorded in a COMMAND_FAILED or
// MAX_RETRY_EXCEEDED error.
func ExitCodeOf(err error) (int, bool) {
	appErr, ok := goerrors.AsAppError(err)
	if !ok {
		return 0, false
	}
	code, ok := appErr.Details["exit_code"].(int)
	return code, ok
}
