// Package osutil collects the one-call OS shims the rest of the system
// needs: directory listing, symlink creation, filesystem usage, signal
// handler registration, and shell execution. Nothing here carries a
// state machine.
package osutil

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"

	"github.com/flotillaproject/flotilla/subprocess"
)

// Ls returns the names of the entries in dir.
func Ls(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %q", dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Symlink points link at target, replacing link if it already exists.
func Symlink(target, link string) error {
	err := os.Symlink(target, link)
	if err == nil {
		return nil
	}
	if !os.IsExist(err) {
		return errors.Wrapf(err, "linking %q to %q", link, target)
	}
	if err := os.Remove(link); err != nil {
		return errors.Wrapf(err, "replacing existing link %q", link)
	}
	return errors.Wrapf(os.Symlink(target, link), "linking %q to %q", link, target)
}

// OnSignal invokes handler each time one of sigs arrives, until the
// returned stop function is called.
func OnSignal(handler func(os.Signal), sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case s := <-ch:
				handler(s)
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// Shell runs one command line through the platform shell and returns
// its standard output. A launch failure, an undeterminable status, or
// an unsuccessful exit is an error; captured stderr is folded into the
// error text.
func Shell(ctx context.Context, command string) (string, error) {
	name, args := shellCommand(command)
	sub, err := subprocess.Launch(name, args, nil,
		subprocess.Inherit(os.Stdin), subprocess.Pipe(), subprocess.Pipe())
	if err != nil {
		return "", err
	}
	defer sub.CloseStreams()

	errCh := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(sub.Stderr())
		errCh <- string(b)
	}()
	out, _ := io.ReadAll(sub.Stdout())
	stderr := <-errCh

	st, err := sub.Status().Get(ctx)
	if err != nil {
		return string(out), errors.Wrapf(err, "shell %q", command)
	}
	if !st.Success() {
		return string(out), errors.Errorf("shell %q: %s: %s", command, st, strings.TrimSpace(stderr))
	}
	return string(out), nil
}
