package errors

// ExitCode is a child process exit code surfaced to callers. Codes at
// or above 70 are reserved for failures of the supervision machinery
// itself, so they never collide with the conventional 0-63 range of
// well-behaved tools.
type ExitCode int

const (
	// CouldNotExecExitCode is reported when the child could not be
	// launched at all (bad path, bad permissions, handle setup failure).
	CouldNotExecExitCode ExitCode = 110

	// StatusUnknownExitCode is reported when the child was launched but
	// its exit status could not be determined by the reaper.
	StatusUnknownExitCode ExitCode = 111
)

// ExitCodeError pairs an error with the exit code a wrapping binary
// should terminate with.
type ExitCodeError struct {
	code ExitCode
	error
}

func NewError(err error, exitCode ExitCode) *ExitCodeError {
	if err == nil {
		return nil
	}
	return &ExitCodeError{exitCode, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return 0
	}
	return e.code
}
