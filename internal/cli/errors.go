package cli

import "fmt"

// ExitError carries the process exit code a command wants the shell to see.
//
// Commands return it from RunE instead of calling os.Exit, so the whole
// command tree stays runnable inside tests. [Execute] translates the code
// into the real os.Exit at the outermost layer.
//
// Codes: 0 success, 1 failure, 3 run suspended at an approval gate (the
// caller is expected to record a verdict and resume).
type ExitError struct {
	Code int
}

// Error formats as "exit status N", the shape os/exec reports, so shell
// scripts and tests read it the same way.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError wraps an exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError reports whether err carries an exit code, and which one.
func IsExitError(err error) (int, bool) {
	if exitErr, ok := err.(*ExitError); ok {
		return exitErr.Code, true
	}
	return 0, false
}
