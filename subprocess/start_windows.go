//go:build windows

package subprocess

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// startProcess is the CreateProcess half of the platform seam. Windows
// takes a single command line rather than an argument vector, so argv
// is re-quoted such that the child's runtime parses back the same
// vector (see cmdline.go).
func startProcess(path string, argv, env []string, stdin, stdout, stderr *os.File) (int, error) {
	pathp, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	cmdline, err := windows.UTF16PtrFromString(makeCommandLine(argv))
	if err != nil {
		return 0, err
	}

	// The child-facing handles must be explicitly inheritable; pipe
	// parent ends were created non-inheritable and stay that way, so
	// further descendants can never capture them.
	handles := []windows.Handle{
		windows.Handle(stdin.Fd()),
		windows.Handle(stdout.Fd()),
		windows.Handle(stderr.Fd()),
	}
	for _, h := range handles {
		if err := windows.SetHandleInformation(h, windows.HANDLE_FLAG_INHERIT, windows.HANDLE_FLAG_INHERIT); err != nil {
			return 0, errors.Wrap(err, "marking stream handle inheritable")
		}
	}

	si := &windows.StartupInfo{
		Flags:     windows.STARTF_USESTDHANDLES,
		StdInput:  handles[0],
		StdOutput: handles[1],
		StdErr:    handles[2],
	}
	si.Cb = uint32(unsafe.Sizeof(*si))

	var pi windows.ProcessInformation
	err = windows.CreateProcess(
		pathp,
		cmdline,
		nil,  // default process security attributes
		nil,  // default primary thread security attributes
		true, // inherit the marked handles
		windows.CREATE_UNICODE_ENVIRONMENT,
		createEnvBlock(env),
		nil, // parent's current directory
		si,
		&pi)
	if err != nil {
		return 0, err
	}

	// The process and thread handles only grant query/wait capability,
	// which the reaper acquires for itself; close them right after
	// extracting the pid.
	windows.CloseHandle(pi.Thread)
	windows.CloseHandle(pi.Process)
	return int(pi.ProcessId), nil
}

// createEnvBlock lays KEY=VALUE entries out as the double-NUL
// terminated UTF-16 block CreateProcess expects.
func createEnvBlock(env []string) *uint16 {
	var block []uint16
	for _, entry := range env {
		u, err := windows.UTF16FromString(entry)
		if err != nil {
			// An entry with an embedded NUL cannot be represented.
			continue
		}
		block = append(block, u...)
	}
	block = append(block, 0)
	if len(block) == 1 {
		block = append(block, 0)
	}
	return &block[0]
}
