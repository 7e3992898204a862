package process

import "time"

// Result holds the outcome of one completed attempt.
type Result struct {
	// Out is the captured standard output, lines joined with "\n".
	Out string
	// Err is the captured standard error, lines joined with "\n".
	Err string
	// ExitCode is the exit status. A child killed by a signal reports the
	// negated signal number.
	ExitCode int
	// Attempt is the zero-based index of the attempt that produced the result.
	Attempt int
	// Duration is how long the attempt ran.
	Duration time.Duration
}
