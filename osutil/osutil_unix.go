//go:build !windows

package osutil

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// shellCommand maps a command line onto the platform shell invocation.
func shellCommand(command string) (string, []string) {
	return "/bin/sh", []string{"-c", command}
}

// DiskUsage reports total and available bytes of the filesystem
// containing path.
func DiskUsage(path string) (total, available uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, errors.Wrapf(err, "statfs %q", path)
	}
	bsize := uint64(st.Bsize)
	return uint64(st.Blocks) * bsize, uint64(st.Bavail) * bsize, nil
}
