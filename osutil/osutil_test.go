//go:build !windows

package osutil

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"
	"time"
)

func TestLs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b", "a"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	names, err := Ls(dir)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("got %v, want [a b]", names)
	}

	if _, err := Ls(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("listing a missing dir should fail")
	}
}

func TestSymlinkReplaces(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link")

	if err := Symlink("/tmp", link); err != nil {
		t.Fatal(err)
	}
	// Re-pointing an existing link must succeed in place.
	if err := Symlink(dir, link); err != nil {
		t.Fatal(err)
	}
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatal(err)
	}
	if target != dir {
		t.Fatalf("link points at %q, want %q", target, dir)
	}
}

func TestDiskUsage(t *testing.T) {
	total, available, err := DiskUsage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if total == 0 {
		t.Fatal("total bytes should be non-zero")
	}
	if available > total {
		t.Fatalf("available %d exceeds total %d", available, total)
	}
}

func TestOnSignal(t *testing.T) {
	got := make(chan os.Signal, 1)
	stop := OnSignal(func(s os.Signal) { got <- s }, syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-got:
		if s != syscall.SIGUSR1 {
			t.Fatalf("got %v, want SIGUSR1", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("signal handler never fired")
	}
}

func TestShell(t *testing.T) {
	out, err := Shell(context.Background(), "echo hi")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hi\n" {
		t.Fatalf("got %q, want %q", out, "hi\n")
	}

	if _, err := Shell(context.Background(), "exit 4"); err == nil {
		t.Fatal("non-zero exit should be an error")
	}
}
