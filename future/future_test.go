package future

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestSetThenGet(t *testing.T) {
	p := NewPromise[int]()
	if !p.Set(42) {
		t.Fatal("first Set should succeed")
	}
	v, err := p.Future().Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
	if !p.Future().IsReady() {
		t.Fatal("future should be ready")
	}
}

func TestFailThenGet(t *testing.T) {
	p := NewPromise[int]()
	boom := errors.New("boom")
	if !p.Fail(boom) {
		t.Fatal("first Fail should succeed")
	}
	_, err := p.Future().Get(context.Background())
	if err != boom {
		t.Fatalf("got %v, want boom", err)
	}
}

func TestSecondFulfillmentDropped(t *testing.T) {
	p := NewPromise[int]()
	p.Set(1)
	if p.Set(2) {
		t.Fatal("second Set should report dropped")
	}
	if p.Fail(errors.New("late")) {
		t.Fatal("Fail after Set should report dropped")
	}
	v, _ := p.Future().Get(context.Background())
	if v != 1 {
		t.Fatalf("value changed to %d after dropped fulfillment", v)
	}
}

func TestOnAnyFiresExactlyOnce(t *testing.T) {
	p := NewPromise[string]()
	fired := 0
	p.Future().OnAny(func(f *Future[string]) { fired++ })
	p.Set("x")
	p.Set("y")
	if fired != 1 {
		t.Fatalf("callback fired %d times, want 1", fired)
	}

	// Attaching after resolution fires inline.
	late := 0
	p.Future().OnAny(func(f *Future[string]) { late++ })
	if late != 1 {
		t.Fatalf("late callback fired %d times, want 1", late)
	}
}

func TestDiscard(t *testing.T) {
	p := NewPromise[int]()
	fired := false
	p.Future().OnAny(func(f *Future[int]) { fired = !f.IsPending() })

	if !p.Future().Discard() {
		t.Fatal("Discard on pending future should succeed")
	}
	if !fired {
		t.Fatal("OnAny should fire on discard")
	}
	if p.Set(7) {
		t.Fatal("Set after Discard should report dropped")
	}
	_, err := p.Future().Get(context.Background())
	if err != ErrDiscarded {
		t.Fatalf("got %v, want ErrDiscarded", err)
	}
	if p.Future().Discard() {
		t.Fatal("second Discard should report false")
	}
}

func TestTryGetPending(t *testing.T) {
	p := NewPromise[int]()
	if _, done, _ := p.Future().TryGet(); done {
		t.Fatal("pending future should not be done")
	}
	if !p.Future().IsPending() {
		t.Fatal("future should be pending")
	}
}

func TestGetHonorsContext(t *testing.T) {
	p := NewPromise[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Future().Get(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestConcurrentObservers(t *testing.T) {
	p := NewPromise[int]()
	results := make(chan int, 10)
	for i := 0; i < 10; i++ {
		go func() {
			v, err := p.Future().Get(context.Background())
			if err != nil {
				results <- -1
				return
			}
			results <- v
		}()
	}
	p.Set(5)
	for i := 0; i < 10; i++ {
		if v := <-results; v != 5 {
			t.Fatalf("observer saw %d, want 5", v)
		}
	}
}
