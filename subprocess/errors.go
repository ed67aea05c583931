package subprocess

// Phase names the launch stage an error came from: resolving the I/O
// policies, creating the process, or registering with the reaper.
type Phase string

const (
	PhaseIOPolicy Phase = "io-policy"
	PhaseCreate   Phase = "process-creation"
	PhaseRegister Phase = "reap-registration"
)

// LaunchError tags a synchronous launch failure with its phase; the
// underlying OS diagnostic is preserved in Err. By the time a
// LaunchError is returned every handle opened for the launch has been
// closed and no process identifier exists.
type LaunchError struct {
	Phase Phase
	Err   error
}

func (e *LaunchError) Error() string {
	return string(e.Phase) + ": " + e.Err.Error()
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Cause supports pkg/errors cause chains.
func (e *LaunchError) Cause() error {
	return e.Err
}
