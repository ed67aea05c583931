//go:build !windows

package reaper

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/flotillaproject/flotilla/proc"
)

// watcher holds the per-pid wait state. On POSIX there is none beyond
// the pid itself; the non-blocking waitpid both detects termination and
// consumes the status.
type watcher struct {
	pid int
}

func newWatcher(pid int) (*watcher, error) {
	return &watcher{pid: pid}, nil
}

func (w *watcher) close() {}

// poll runs waitpid(pid, WNOHANG). Exited and signaled children are
// distinguished; a pid that is not a live child of this process (never
// existed, or already reaped elsewhere) is a wait error.
func (w *watcher) poll() (bool, proc.ExitStatus, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(w.pid, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return true, proc.ExitStatus{}, errors.Wrapf(err, "wait4(%d)", w.pid)
		}
		if wpid == 0 {
			// Still running.
			return false, proc.ExitStatus{}, nil
		}
		if ws.Exited() {
			return true, proc.Exited(ws.ExitStatus()), nil
		}
		if ws.Signaled() {
			return true, proc.Signaled(int(ws.Signal())), nil
		}
		// Stopped or continued; not a termination. Keep watching.
		return false, proc.ExitStatus{}, nil
	}
}
