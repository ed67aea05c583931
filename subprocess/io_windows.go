//go:build windows

package subprocess

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// Windows offers no cheap way to query the access rights granted on an
// arbitrary handle, so inherited handles are only checked for validity;
// a direction mismatch surfaces from the child's first read or write.
func checkReadable(f *os.File) error {
	return checkValid(f)
}

func checkWritable(f *os.File) error {
	return checkValid(f)
}

func checkValid(f *os.File) error {
	if _, err := windows.GetFileType(windows.Handle(f.Fd())); err != nil {
		return errors.Wrap(err, "querying handle type")
	}
	return nil
}
