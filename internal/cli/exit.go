package cli

import (
	"errors"
	"fmt"

	goerrors "github.com/kbukum/cmdkit/errors"
	"github.com/kbukum/cmdkit/process"
)

// Exit statuses for failures that have no child exit code.
const (
	exitFailure  = 1
	exitUsage    = 2
	exitLocked   = 75
	exitNotFound = 127
)

// ExitError makes cmdkit exit with Code. Err, when set, is reported first.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitCode maps an error to the status cmdkit exits with. Child exit codes
// pass through; a child killed by a signal maps to 128+signal like a shell.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if code, ok := process.ExitCodeOf(err); ok {
		return shellStatus(code)
	}
	switch goerrors.CodeOf(err) {
	case goerrors.ErrCodeInvalidInput, goerrors.ErrCodeInvalidOverride, goerrors.ErrCodeMissingField:
		return exitUsage
	case goerrors.ErrCodeLocked:
		return exitLocked
	case goerrors.ErrCodeCommandNotFound:
		return exitNotFound
	case goerrors.ErrCodeCanceled:
		return 128 + 15
	}
	return exitFailure
}

func shellStatus(code int) int {
	switch {
	case code < 0:
		return 128 - code
	case code == 0:
		return exitFailure
	}
	return code
}

func invalidFlag(name string, err error) error {
	return goerrors.InvalidInput(name, err.Error()).WithCause(err)
}
