//go:build windows

package osutil

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// shellCommand maps a command line onto the platform shell invocation.
func shellCommand(command string) (string, []string) {
	return "cmd", []string{"/c", command}
}

// DiskUsage reports total and available bytes of the volume containing
// path.
func DiskUsage(path string) (total, available uint64, err error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, err
	}
	var availToCaller, totalBytes, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &availToCaller, &totalBytes, &totalFree); err != nil {
		return 0, 0, errors.Wrapf(err, "querying disk space for %q", path)
	}
	return totalBytes, availToCaller, nil
}
