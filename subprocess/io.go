package subprocess

import (
	"os"

	"github.com/pkg/errors"
)

// fdRole records what a tracked handle is for, mirroring which side of
// the launch ends up owning it.
type fdRole int

const (
	roleChildStdin fdRole = iota
	roleChildStdout
	roleChildStderr
	roleParentRead
	roleParentWrite
)

func (r fdRole) childFacing() bool {
	return r <= roleChildStderr
}

func (r fdRole) String() string {
	switch r {
	case roleChildStdin:
		return "child-stdin"
	case roleChildStdout:
		return "child-stdout"
	case roleChildStderr:
		return "child-stderr"
	case roleParentRead:
		return "parent-read"
	case roleParentWrite:
		return "parent-write"
	}
	return "unknown"
}

type fdEntry struct {
	file  *os.File
	role  fdRole
	owned bool
}

// fdSet owns the raw handles opened while resolving the three I/O
// policies of a single launch. Every owned handle is closed exactly
// once on any exit path; ownership is transferred out (to the child or
// to the caller) with closeChildEnds/release rather than by calling
// Close inline in error branches. Inherited handles are tracked but
// never owned, so they are never closed here.
type fdSet struct {
	entries []fdEntry
}

func (s *fdSet) track(f *os.File, role fdRole, owned bool) *os.File {
	s.entries = append(s.entries, fdEntry{file: f, role: role, owned: owned})
	return f
}

// closeAll closes every handle the set still owns. Safe to call on any
// partially resolved set and after closeChildEnds.
func (s *fdSet) closeAll() {
	for i := range s.entries {
		e := &s.entries[i]
		if e.owned && e.file != nil {
			e.file.Close()
			e.file = nil
		}
	}
}

// closeChildEnds closes the child-facing handles once the child holds
// its private copies.
func (s *fdSet) closeChildEnds() {
	for i := range s.entries {
		e := &s.entries[i]
		if e.owned && e.role.childFacing() && e.file != nil {
			e.file.Close()
			e.file = nil
		}
	}
}

// release transfers ownership of a parent-facing handle out of the set.
// Returns its argument for wiring convenience; nil passes through.
func (s *fdSet) release(f *os.File) *os.File {
	if f == nil {
		return nil
	}
	for i := range s.entries {
		if s.entries[i].file == f {
			s.entries[i].owned = false
		}
	}
	return f
}

// openCount reports how many handles the set still owns.
func (s *fdSet) openCount() int {
	n := 0
	for i := range s.entries {
		if s.entries[i].owned && s.entries[i].file != nil {
			n++
		}
	}
	return n
}

// IO declaratively describes how one standard stream of a child process
// is connected. Resolution yields exactly one child-facing handle and
// at most one parent-facing handle, every one of them registered with
// the launch's fdSet as it is created.
type IO interface {
	// resolveInput prepares the child's stdin slot.
	resolveInput(fds *fdSet) (child, parent *os.File, err error)
	// resolveOutput prepares the child's stdout or stderr slot.
	resolveOutput(fds *fdSet, role fdRole) (child, parent *os.File, err error)
}

type pipeIO struct{}

// Pipe connects the stream through a fresh pipe: the child end is
// handed to the child and closed in the parent afterward, the parent
// end is retained on the Subprocess for the caller.
func Pipe() IO {
	return pipeIO{}
}

func (pipeIO) resolveInput(fds *fdSet) (*os.File, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating stdin pipe")
	}
	// os.Pipe marks both ends close-on-exec; the platform startProcess
	// re-enables inheritance only for the end handed to the child, so
	// the parent end can never leak into further descendants.
	return fds.track(r, roleChildStdin, true), fds.track(w, roleParentWrite, true), nil
}

func (pipeIO) resolveOutput(fds *fdSet, role fdRole) (*os.File, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "creating %s pipe", role)
	}
	return fds.track(w, role, true), fds.track(r, roleParentRead, true), nil
}

type pathIO struct {
	path string
}

// Path redirects the stream to a named file: read-only (must exist) for
// stdin, create-or-truncate for stdout/stderr. The handle is opened by
// the subsystem and closed once the child has inherited it.
func Path(path string) IO {
	return pathIO{path: path}
}

func (p pathIO) resolveInput(fds *fdSet) (*os.File, *os.File, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening stdin redirect %q", p.path)
	}
	return fds.track(f, roleChildStdin, true), nil, nil
}

func (p pathIO) resolveOutput(fds *fdSet, role fdRole) (*os.File, *os.File, error) {
	f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %s redirect %q", role, p.path)
	}
	return fds.track(f, role, true), nil, nil
}

type inheritIO struct {
	file *os.File
}

// Inherit attaches a handle the caller already owns. It is used as-is
// and never closed by the subsystem.
func Inherit(f *os.File) IO {
	return inheritIO{file: f}
}

func (io inheritIO) resolveInput(fds *fdSet) (*os.File, *os.File, error) {
	if io.file == nil {
		return nil, nil, errors.New("no handle supplied for stdin")
	}
	if err := checkReadable(io.file); err != nil {
		return nil, nil, errors.Wrap(err, "validating inherited stdin handle")
	}
	return fds.track(io.file, roleChildStdin, false), nil, nil
}

func (io inheritIO) resolveOutput(fds *fdSet, role fdRole) (*os.File, *os.File, error) {
	if io.file == nil {
		return nil, nil, errors.Errorf("no handle supplied for %s", role)
	}
	if err := checkWritable(io.file); err != nil {
		return nil, nil, errors.Wrapf(err, "validating inherited %s handle", role)
	}
	return fds.track(io.file, role, false), nil, nil
}
