//go:build !windows

package subprocess

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// checkReadable validates that an inherited handle can serve as the
// child's stdin.
func checkReadable(f *os.File) error {
	flags, err := unix.FcntlInt(f.Fd(), unix.F_GETFL, 0)
	if err != nil {
		return errors.Wrap(err, "querying handle flags")
	}
	switch flags & unix.O_ACCMODE {
	case unix.O_RDONLY, unix.O_RDWR:
		return nil
	}
	return errors.Errorf("handle %d is not open for reading", f.Fd())
}

// checkWritable validates that an inherited handle can serve as the
// child's stdout or stderr.
func checkWritable(f *os.File) error {
	flags, err := unix.FcntlInt(f.Fd(), unix.F_GETFL, 0)
	if err != nil {
		return errors.Wrap(err, "querying handle flags")
	}
	switch flags & unix.O_ACCMODE {
	case unix.O_WRONLY, unix.O_RDWR:
		return nil
	}
	return errors.Errorf("handle %d is not open for writing", f.Fd())
}
