package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code" yaml:"code"`
	// Message is a human-readable error message.
	Message string `json:"message" yaml:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable" yaml:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-" yaml:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Configuration failures ---

// CommandNotFound creates an AppError for an executable missing from the search path.
func CommandNotFound(command, searchPath string) *AppError {
	details := map[string]any{"command": command}
	if searchPath != "" {
		details["path"] = searchPath
	}
	return &AppError{
		Code: ErrCodeCommandNotFound, Message: fmt.Sprintf("%s not in PATH", command),
		Retryable: false, Details: details,
	}
}

// MissingField creates a new AppError for a missing required field.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: fmt.Sprintf("Missing required field: %s", field),
		Retryable: false,
		Details:   map[string]any{"field": field},
	}
}

// InvalidOverride creates an AppError for a rejected per-call override.
func InvalidOverride(reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidOverride, Message: fmt.Sprintf("Invalid override: %s", reason),
		Retryable: false,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		Retryable: false,
	}
}

// --- Execution failures ---

// CommandFailed creates an AppError for an exit code outside the accepted set.
// The captured output and error text are kept in Details.
func CommandFailed(command string, args []string, exitCode int, stdout, stderr string) *AppError {
	return &AppError{
		Code:      ErrCodeCommandFailed,
		Message:   fmt.Sprintf("%s exited with code %d", commandLine(command, args), exitCode),
		Retryable: true,
		Details: map[string]any{
			"command":   command,
			"args":      args,
			"exit_code": exitCode,
			"stdout":    stdout,
			"stderr":    stderr,
		},
	}
}

// MaxRetryExceeded creates an AppError for an exhausted retry budget. The
// details of the last failure are copied so the outer error is self-contained.
func MaxRetryExceeded(attempts int, last error) *AppError {
	e := &AppError{
		Code:      ErrCodeMaxRetryExceeded,
		Message:   fmt.Sprintf("still failing after %d attempts", attempts),
		Retryable: false,
		Cause:     last,
		Details:   map[string]any{"attempts": attempts},
	}
	if lastApp, ok := AsAppError(last); ok {
		e.WithDetails(lastApp.Details)
		e.Details["attempts"] = attempts
	}
	return e
}

// SpawnFailed creates an AppError for a child process that could not be started.
func SpawnFailed(command string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeSpawnFailed, Message: fmt.Sprintf("unable to start %s", command),
		Retryable: false, Cause: cause,
		Details: map[string]any{"command": command},
	}
}

// StreamFailed creates an AppError for a fatal failure of the output draining loop.
func StreamFailed(command string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStreamFailed, Message: fmt.Sprintf("reading output of %s failed", command),
		Retryable: false, Cause: cause,
		Details: map[string]any{"command": command},
	}
}

// Canceled creates an AppError for an invocation interrupted by its context.
func Canceled(command string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeCanceled, Message: fmt.Sprintf("%s was interrupted", command),
		Retryable: false, Cause: cause,
		Details: map[string]any{"command": command},
	}
}

// Locked creates an AppError for a lock file held by another run.
func Locked(path string) *AppError {
	return &AppError{
		Code: ErrCodeLocked, Message: fmt.Sprintf("lock %s is held by another process", path),
		Retryable: true,
		Details:   map[string]any{"lock_file": path},
	}
}

// Internal creates a new AppError for an internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		Retryable: false, Cause: cause,
	}
}

// --- Lookup helpers ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost AppError in the chain, or "" if none.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// commandLine renders a command and its arguments for messages.
func commandLine(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}
