// Package resilience provides the retry loop used by the command engine.
//
// Retry runs an operation, and while the error is retryable and the retry
// budget is not spent, notifies an observer, sleeps, and tries again. It
// reports two different failure kinds:
//
//   - the original error, unchanged, when no retry was ever attempted
//     (the budget was zero or the error was not retryable);
//   - an *ExhaustedError wrapping the last error once at least one retry
//     happened and the budget ran out. errors.Is(err, ErrRetriesExhausted)
//     matches it.
//
//	out, err := resilience.Retry(ctx, resilience.RetryConfig{Times: 2, Delay: time.Second},
//	    func(attempt int) (string, error) { return fetch() })
package resilience
