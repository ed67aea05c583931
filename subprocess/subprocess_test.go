//go:build !windows

package subprocess

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/common/log/hooks"
	"github.com/flotillaproject/flotilla/common/stats"
	"github.com/flotillaproject/flotilla/reaper"
)

func init() {
	log.AddHook(hooks.NewContextHook())
	logrusLevel, _ := log.ParseLevel("debug")
	log.SetLevel(logrusLevel)
}

func getCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// countOpenFDs uses the platform's handle accounting to verify the
// zero-leak property. Skips where /proc isn't available.
func countOpenFDs(t *testing.T) int {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("no /proc handle accounting on this platform")
	}
	return len(entries)
}

func TestPipeEcho(t *testing.T) {
	sub, err := Launch("echo", []string{"hello"}, nil, Inherit(os.Stdin), Pipe(), Inherit(os.Stderr))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.CloseStreams()

	out, err := io.ReadAll(sub.Stdout())
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "hello\n" {
		t.Fatalf("got %q, want %q", out, "hello\n")
	}

	st, err := sub.Status().Get(getCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if !st.Success() {
		t.Fatalf("got %v, want exited(0)", st)
	}
}

func TestPathRedirectRoundTrip(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")
	errPath := filepath.Join(dir, "err.txt")

	sub, err := Launch("echo", []string{"roundtrip"}, nil, Inherit(os.Stdin), Path(outPath), Path(errPath))
	if err != nil {
		t.Fatal(err)
	}
	if st, err := sub.Status().Get(getCtx(t)); err != nil || !st.Success() {
		t.Fatalf("status %v, err %v", st, err)
	}

	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "roundtrip\n" {
		t.Fatalf("redirect file holds %q, want %q", b, "roundtrip\n")
	}
}

func TestStdinPipe(t *testing.T) {
	sub, err := Launch("cat", nil, nil, Pipe(), Pipe(), Inherit(os.Stderr))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.CloseStreams()

	if _, err := sub.Stdin().WriteString("hi\n"); err != nil {
		t.Fatal(err)
	}
	// Closing the parent's write end must not disturb the child's own
	// handles; cat sees EOF, echoes, and exits cleanly.
	if err := sub.Stdin().Close(); err != nil {
		t.Fatal(err)
	}

	out, err := io.ReadAll(sub.Stdout())
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "hi\n" {
		t.Fatalf("got %q, want %q", out, "hi\n")
	}
	if st, err := sub.Status().Get(getCtx(t)); err != nil || !st.Success() {
		t.Fatalf("status %v, err %v", st, err)
	}
}

func TestExplicitEnv(t *testing.T) {
	env := map[string]string{
		"FLOTILLA_TEST": "marker",
		"PATH":          os.Getenv("PATH"),
	}
	sub, err := Launch("sh", []string{"-c", "echo $FLOTILLA_TEST"}, env, Inherit(os.Stdin), Pipe(), Inherit(os.Stderr))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.CloseStreams()

	out, _ := io.ReadAll(sub.Stdout())
	if string(out) != "marker\n" {
		t.Fatalf("got %q, want %q", out, "marker\n")
	}
	if _, err := sub.Status().Get(getCtx(t)); err != nil {
		t.Fatal(err)
	}
}

func TestResolutionFailureClosesEverything(t *testing.T) {
	before := countOpenFDs(t)

	// The first two policies open four pipe ends; the third fails.
	// Everything already opened must be rolled back.
	_, err := Launch("cat", nil, nil, Pipe(), Pipe(), Path(filepath.Join(t.TempDir(), "no", "such", "dir", "x")))
	if err == nil {
		t.Fatal("launch should have failed")
	}
	le, ok := err.(*LaunchError)
	if !ok || le.Phase != PhaseIOPolicy {
		t.Fatalf("got %v, want io-policy LaunchError", err)
	}

	if after := countOpenFDs(t); after != before {
		t.Fatalf("handle leak: %d open before, %d after", before, after)
	}
}

func TestNonexistentExecutable(t *testing.T) {
	before := countOpenFDs(t)

	_, err := Launch("/no/such/binary-4c1f", nil, nil, Inherit(os.Stdin), Pipe(), Pipe())
	if err == nil {
		t.Fatal("launch should have failed")
	}
	le, ok := err.(*LaunchError)
	if !ok || le.Phase != PhaseCreate {
		t.Fatalf("got %v, want process-creation LaunchError", err)
	}

	if after := countOpenFDs(t); after != before {
		t.Fatalf("handle leak: %d open before, %d after", before, after)
	}
}

func TestInheritDirectionValidated(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "w"), os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	// A write-only handle cannot serve as the child's stdin.
	_, err = Launch("cat", nil, nil, Inherit(f), Pipe(), Pipe())
	le, ok := err.(*LaunchError)
	if !ok || le.Phase != PhaseIOPolicy {
		t.Fatalf("got %v, want io-policy LaunchError", err)
	}
}

func TestSignaledChild(t *testing.T) {
	sub, err := Launch("sleep", []string{"10"}, nil, Inherit(os.Stdin), Inherit(os.Stdout), Inherit(os.Stderr))
	if err != nil {
		t.Fatal(err)
	}
	if err := syscall.Kill(sub.Pid(), syscall.SIGKILL); err != nil {
		t.Fatal(err)
	}

	st, err := sub.Status().Get(getCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	sig, ok := st.Signal()
	if !ok || sig != int(syscall.SIGKILL) {
		t.Fatalf("got %v, want signaled(%d)", st, syscall.SIGKILL)
	}
}

func TestDiscardDoesNotStopCleanup(t *testing.T) {
	r := reaper.New(stats.NilStatsReceiver())
	defer r.Stop()
	l := NewLauncher(r, stats.NilStatsReceiver())

	sub, err := l.Launch("sleep", []string{"0.1"}, nil, Inherit(os.Stdin), Inherit(os.Stdout), Inherit(os.Stderr))
	if err != nil {
		t.Fatal(err)
	}
	if !sub.Status().Discard() {
		t.Fatal("discard should succeed on a pending status")
	}

	// The internal completion step still runs: the reap registration
	// drains even though nobody observes the result.
	deadline := time.Now().Add(5 * time.Second)
	for r.Pending() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("reap registration never drained; %d pending", r.Pending())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := sub.Status().Get(getCtx(t)); err == nil {
		t.Fatal("discarded status should not yield a value")
	}
}

func TestBarePathInvocation(t *testing.T) {
	// Zero-length args is a valid bare invocation.
	sub, err := Launch("true", nil, nil, Inherit(os.Stdin), Inherit(os.Stdout), Inherit(os.Stderr))
	if err != nil {
		t.Fatal(err)
	}
	if st, err := sub.Status().Get(getCtx(t)); err != nil || !st.Success() {
		t.Fatalf("status %v, err %v", st, err)
	}
}

func TestFdSetOwnership(t *testing.T) {
	fds := &fdSet{}
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	fds.track(r, roleChildStdin, true)
	fds.track(w, roleParentWrite, true)
	if fds.openCount() != 2 {
		t.Fatalf("openCount %d, want 2", fds.openCount())
	}

	fds.release(w)
	fds.closeAll()
	if fds.openCount() != 0 {
		t.Fatalf("openCount %d after closeAll, want 0", fds.openCount())
	}

	// The released handle must still be usable by its new owner; a
	// write sees EPIPE from the closed read end, never ErrClosed.
	if _, err := w.Write([]byte("x")); errors.Is(err, os.ErrClosed) {
		t.Fatal("released handle was closed by the registry")
	}
	w.Close()
}
