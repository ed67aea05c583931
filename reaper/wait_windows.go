//go:build windows

package reaper

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"github.com/flotillaproject/flotilla/proc"
)

// watcher holds the process handle opened for waiting. The handle only
// grants query/wait capability; closing it has no effect on the child.
type watcher struct {
	pid    int
	handle windows.Handle
}

func newWatcher(pid int) (*watcher, error) {
	h, err := windows.OpenProcess(
		windows.PROCESS_QUERY_LIMITED_INFORMATION|windows.SYNCHRONIZE,
		false,
		uint32(pid))
	if err != nil {
		return nil, errors.Wrapf(err, "opening process %d for wait", pid)
	}
	return &watcher{pid: pid, handle: h}, nil
}

func (w *watcher) close() {
	windows.CloseHandle(w.handle)
	w.handle = windows.InvalidHandle
}

// poll waits on the process handle with a zero timeout. The platform
// cannot distinguish signal-style termination, so every result is
// reported as an exit with the best obtainable code.
func (w *watcher) poll() (bool, proc.ExitStatus, error) {
	ev, err := windows.WaitForSingleObject(w.handle, 0)
	if err != nil {
		return true, proc.ExitStatus{}, errors.Wrapf(err, "waiting on process %d", w.pid)
	}
	switch ev {
	case windows.WAIT_TIMEOUT:
		return false, proc.ExitStatus{}, nil
	case windows.WAIT_OBJECT_0:
		var code uint32
		if err := windows.GetExitCodeProcess(w.handle, &code); err != nil {
			return true, proc.ExitStatus{}, errors.Wrapf(err, "querying exit code of process %d", w.pid)
		}
		return true, proc.Exited(int(code)), nil
	default:
		return true, proc.ExitStatus{}, errors.Errorf("unexpected wait result %#x for process %d", ev, w.pid)
	}
}
