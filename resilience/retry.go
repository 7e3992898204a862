package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrRetriesExhausted is matched by every *ExhaustedError.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExhaustedError is returned once at least one retry happened and the
// operation still failed when the budget ran out.
type ExhaustedError struct {
	// Attempts is the total number of attempts made, including the first.
	Attempts int
	// Last is the error returned by the final attempt.
	Last error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Last)
}

// Unwrap exposes both ErrRetriesExhausted and the last failure to errors.Is/As.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Last}
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// Times is the retry budget: the maximum number of additional attempts
	// after the first failure. Zero disables retrying.
	Times int
	// Delay is the pause before the first retry.
	Delay time.Duration
	// BackoffFactor multiplies the delay after each retry. Values <= 1 keep
	// the delay fixed.
	BackoffFactor float64
	// MaxDelay caps the delay. Zero means no cap.
	MaxDelay time.Duration
	// RetryIf determines if an error should be retried. Nil retries everything
	// except context cancellation.
	RetryIf func(error) bool
	// OnRetry is called before each retry sleep with the zero-based index
	// of the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryIf retries all errors except context cancellation.
func DefaultRetryIf(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Retry executes fn until it succeeds, the error is not retryable, or the
// retry budget is spent. fn receives the zero-based attempt index.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(attempt int) (T, error)) (T, error) {
	var zero T

	if cfg.RetryIf == nil {
		cfg.RetryIf = DefaultRetryIf
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	for attempt := 0; ; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}

		if !cfg.RetryIf(err) {
			return result, err
		}

		if attempt >= cfg.Times {
			if attempt == 0 {
				return result, err
			}
			return result, &ExhaustedError{Attempts: attempt + 1, Last: err}
		}

		delay := calculateDelay(attempt, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if sleepErr := cfg.Sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

// RetryFunc executes a function that returns only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func(attempt int) error) error {
	_, err := Retry(ctx, cfg, func(attempt int) (struct{}, error) {
		return struct{}{}, fn(attempt)
	})
	return err
}

// calculateDelay returns the pause after the given zero-based attempt.
func calculateDelay(attempt int, cfg RetryConfig) time.Duration {
	if cfg.Delay <= 0 {
		return 0
	}
	delay := float64(cfg.Delay)
	if cfg.BackoffFactor > 1 {
		delay *= math.Pow(cfg.BackoffFactor, float64(attempt))
	}
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
