// Package subprocess launches child operating system processes, wires
// their standard streams according to a declarative per-stream policy
// (Inherit, Path, Pipe), and reports termination through a future.
//
// Launch errors (policy resolution, process creation, reap
// registration) are synchronous; everything after a successful return
// arrives only through the status future. Discarding the status future
// is cooperative: it stops the caller's observation but neither kills
// the child nor prevents the internal completion step from running.
package subprocess

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/common/stats"
	"github.com/flotillaproject/flotilla/future"
	"github.com/flotillaproject/flotilla/proc"
	"github.com/flotillaproject/flotilla/reaper"
)

// Subprocess is the caller's handle on a launched child: its pid, the
// parent-side ends of any piped streams, and the status future.
// Immutable after creation except for the promise backing Status.
//
// The parent-side stream handles are owned by the entity and must be
// closed by the caller (CloseStreams), independent of process
// termination.
type Subprocess struct {
	pid    int
	stdin  *os.File
	stdout *os.File
	stderr *os.File
	status *future.Future[proc.ExitStatus]
}

func (p *Subprocess) Pid() int {
	return p.pid
}

// Stdin returns the parent write end of the child's stdin pipe, or nil
// unless the stdin policy was Pipe.
func (p *Subprocess) Stdin() *os.File {
	return p.stdin
}

// Stdout returns the parent read end of the child's stdout pipe, or nil
// unless the stdout policy was Pipe.
func (p *Subprocess) Stdout() *os.File {
	return p.stdout
}

// Stderr returns the parent read end of the child's stderr pipe, or nil
// unless the stderr policy was Pipe.
func (p *Subprocess) Stderr() *os.File {
	return p.stderr
}

// Status resolves when the child terminates: with its ExitStatus, or
// with an error when the status could not be determined. Callers must
// not treat a failed status as "exited successfully", nor as "still
// running".
func (p *Subprocess) Status() *future.Future[proc.ExitStatus] {
	return p.status
}

// CloseStreams closes whichever parent-side pipe ends are still open.
// Closing them does not affect the child's own stream handles; they are
// independent duplicates.
func (p *Subprocess) CloseStreams() error {
	var first error
	for _, f := range []*os.File{p.stdin, p.stdout, p.stderr} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.stdin, p.stdout, p.stderr = nil, nil, nil
	return first
}

// Launcher launches subprocesses against one reaper and one stats
// scope.
type Launcher struct {
	reaper *reaper.Reaper
	stat   stats.StatsReceiver
}

func NewLauncher(r *reaper.Reaper, stat stats.StatsReceiver) *Launcher {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Launcher{reaper: r, stat: stat.Scope("launcher")}
}

var (
	defaultLauncherOnce sync.Once
	defaultLauncher     *Launcher
)

// Launch runs on a process-wide launcher backed by the default reaper.
func Launch(path string, args []string, env map[string]string, stdin, stdout, stderr IO) (*Subprocess, error) {
	defaultLauncherOnce.Do(func() {
		defaultLauncher = NewLauncher(reaper.Default(), stats.CurrentStatsReceiver)
	})
	return defaultLauncher.Launch(path, args, env, stdin, stdout, stderr)
}

// Launch resolves the three I/O policies, creates the child with the
// prepared stream handles attached, and registers it with the reaper
// before returning. args does not include argv[0]; a zero-length args
// is a bare path invocation. A nil env inherits the current process
// environment; a non-nil env replaces it entirely.
//
// Any failure rolls back every handle opened so far and returns a
// LaunchError naming the phase; no Subprocess or pid is produced.
func (l *Launcher) Launch(path string, args []string, env map[string]string, stdin, stdout, stderr IO) (*Subprocess, error) {
	defer l.stat.Latency("launchLatency_ms").UpdateSince(time.Now())

	fds := &fdSet{}
	launched := false
	defer func() {
		if !launched {
			fds.closeAll()
		}
	}()

	// Resolution order matters: every handle lands in fds as it is
	// created, so a failure on the third stream still rolls back the
	// first two.
	childIn, parentIn, err := stdin.resolveInput(fds)
	if err != nil {
		return nil, l.launchFailure(PhaseIOPolicy, err)
	}
	childOut, parentOut, err := stdout.resolveOutput(fds, roleChildStdout)
	if err != nil {
		return nil, l.launchFailure(PhaseIOPolicy, err)
	}
	childErr, parentErr, err := stderr.resolveOutput(fds, roleChildStderr)
	if err != nil {
		return nil, l.launchFailure(PhaseIOPolicy, err)
	}

	exe, err := exec.LookPath(path)
	if err != nil {
		return nil, l.launchFailure(PhaseCreate, err)
	}

	argv := append([]string{exe}, args...)
	pid, err := startProcess(exe, argv, environ(env), childIn, childOut, childErr)
	if err != nil {
		return nil, l.launchFailure(PhaseCreate, errors.Wrapf(err, "creating process %q", exe))
	}

	// The child now holds private copies of its stream handles.
	fds.closeChildEnds()

	sub := &Subprocess{
		pid:    pid,
		stdin:  fds.release(parentIn),
		stdout: fds.release(parentOut),
		stderr: fds.release(parentErr),
	}

	// Register interest before returning so no window exists in which
	// the child could terminate without a registered observer.
	reaped, err := l.reaper.Reap(pid)
	if err != nil {
		sub.CloseStreams()
		return nil, l.launchFailure(PhaseRegister, err)
	}

	// The status promise is owned jointly by this closure and the
	// entity: complete runs even if the caller drops every reference to
	// sub, and sub.Status stays observable even after the reaper's
	// registration is long gone.
	promise := future.NewPromise[proc.ExitStatus]()
	sub.status = promise.Future()
	reaped.OnAny(func(f *future.Future[proc.ExitStatus]) {
		complete(f, promise, pid)
	})

	l.stat.Counter("launches").Inc(1)
	log.WithFields(log.Fields{"pid": pid, "path": exe}).Info("Launched subprocess")
	launched = true
	return sub, nil
}

func (l *Launcher) launchFailure(phase Phase, err error) error {
	l.stat.Counter("launchFailures", string(phase)).Inc(1)
	return &LaunchError{Phase: phase, Err: err}
}

// complete is the one place the public status promise is fulfilled. It
// converts the reaper's result into the caller-visible status and runs
// exactly once per launch.
func complete(reaped *future.Future[proc.ExitStatus], promise *future.Promise[proc.ExitStatus], pid int) {
	st, done, err := reaped.TryGet()
	if !done {
		// OnAny only fires on terminal futures.
		panic("subprocess: completion invoked on a pending reap")
	}
	if err != nil {
		promise.Fail(err)
		log.WithFields(log.Fields{"pid": pid, "error": err}).Error("Subprocess status unknown")
		return
	}
	if !promise.Set(st) {
		// The caller discarded interest; the result is dropped.
		log.WithFields(log.Fields{"pid": pid, "status": st.String()}).Debug("Subprocess status dropped")
		return
	}
	log.WithFields(log.Fields{"pid": pid, "status": st.String()}).Info("Subprocess completed")
}

// environ serializes env into KEY=VALUE entries, inheriting the current
// process environment when env is nil.
func environ(env map[string]string) []string {
	if env == nil {
		return os.Environ()
	}
	entries := make([]string, 0, len(env))
	for k, v := range env {
		entries = append(entries, k+"="+v)
	}
	return entries
}
