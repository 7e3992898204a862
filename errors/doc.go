// Package errors provides the unified error type used across cmdkit.
// Every failure surfaced by the command engine is an AppError carrying a
// machine-readable code, a retryable flag, structured details, and the
// underlying cause, so callers can tell configuration mistakes, exit-code
// policy failures, and exhausted retry budgets apart with errors.As.
package errors
