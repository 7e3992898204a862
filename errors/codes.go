package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Configuration errors. Raised before any process is spawned and never retried.
const (
	// ErrCodeCommandNotFound indicates the executable could not be resolved on the search path.
	ErrCodeCommandNotFound ErrorCode = "COMMAND_NOT_FOUND"
	// ErrCodeMissingField indicates a mandatory argument was not supplied.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeInvalidOverride indicates an unknown or malformed per-call override.
	ErrCodeInvalidOverride ErrorCode = "INVALID_OVERRIDE"
	// ErrCodeInvalidInput indicates invalid configuration input.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Execution errors
const (
	// ErrCodeCommandFailed indicates the exit code was outside the accepted set.
	ErrCodeCommandFailed ErrorCode = "COMMAND_FAILED"
	// ErrCodeMaxRetryExceeded indicates the retry budget was exhausted.
	ErrCodeMaxRetryExceeded ErrorCode = "MAX_RETRY_EXCEEDED"
	// ErrCodeSpawnFailed indicates the child process could not be started.
	ErrCodeSpawnFailed ErrorCode = "SPAWN_FAILED"
	// ErrCodeStreamFailed indicates the output draining loop failed.
	ErrCodeStreamFailed ErrorCode = "STREAM_FAILED"
	// ErrCodeCanceled indicates the invocation was interrupted by its context.
	ErrCodeCanceled ErrorCode = "CANCELED"
	// ErrCodeLocked indicates another run holds the profile lock.
	ErrCodeLocked ErrorCode = "LOCKED"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeCommandFailed: true,
	ErrCodeLocked:        true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
