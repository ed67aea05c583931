//go:build !windows

package subprocess

import (
	"os"
)

// startProcess is the fork/exec half of the platform seam: create the
// child with the three prepared stream handles attached and return its
// pid. argv includes argv[0]; env entries are KEY=VALUE.
func startProcess(path string, argv, env []string, stdin, stdout, stderr *os.File) (int, error) {
	p, err := os.StartProcess(path, argv, &os.ProcAttr{
		Files: []*os.File{stdin, stdout, stderr},
		Env:   env,
	})
	if err != nil {
		return 0, err
	}
	pid := p.Pid
	// Drop the os.Process immediately: the reaper owns the wait, and
	// holding the struct would pin a pidfd on platforms that use one.
	p.Release()
	return pid, nil
}
