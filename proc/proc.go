// Package proc includes the platform-independent description of a child
// process's termination, shared by the subprocess launcher and the reaper.
package proc

import "fmt"

// ExitStatus describes how a child process terminated: either it exited
// on its own with a code, or the OS terminated it with a signal.
// Platforms that cannot make the distinction report an exit with the
// best obtainable code.
//
// "Status could not be determined" is not an ExitStatus; it travels as
// an error on the status future instead, so callers can never confuse
// an unknown status with a clean exit.
type ExitStatus struct {
	signaled bool
	code     int
	signal   int
}

// Exited builds the status of a child that terminated normally.
func Exited(code int) ExitStatus {
	return ExitStatus{code: code}
}

// Signaled builds the status of a child terminated by a signal.
func Signaled(signal int) ExitStatus {
	return ExitStatus{signaled: true, signal: signal}
}

// ExitCode returns the exit code and true if the child exited normally.
func (s ExitStatus) ExitCode() (int, bool) {
	return s.code, !s.signaled
}

// Signal returns the terminating signal and true if the child was
// killed by a signal.
func (s ExitStatus) Signal() (int, bool) {
	return s.signal, s.signaled
}

func (s ExitStatus) IsSignaled() bool {
	return s.signaled
}

// Success reports whether the child exited normally with code 0.
func (s ExitStatus) Success() bool {
	return !s.signaled && s.code == 0
}

func (s ExitStatus) String() string {
	if s.signaled {
		return fmt.Sprintf("signaled(%d)", s.signal)
	}
	return fmt.Sprintf("exited(%d)", s.code)
}
