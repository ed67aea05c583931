// Package future provides a one-shot asynchronous value container.
// The Promise side is fulfilled at most once; the Future side can be
// observed by any number of interested parties, each of which may also
// lose interest (Discard) without affecting the producer.
package future

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrDiscarded is returned by Get/TryGet when the future was discarded
// before it was fulfilled.
var ErrDiscarded = errors.New("future discarded")

type state int

const (
	pending state = iota
	ready
	failed
	discarded
)

// Future is the observer side of a Promise. The zero value is not
// usable; futures are obtained from Promise.Future.
type Future[T any] struct {
	mu        sync.Mutex
	state     state
	value     T
	err       error
	done      chan struct{}
	callbacks []func(*Future[T])
}

// Promise is the producer side. Set or Fail fulfills the associated
// Future exactly once; later calls are dropped.
type Promise[T any] struct {
	fut *Future[T]
}

func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{fut: &Future[T]{done: make(chan struct{})}}
}

func (p *Promise[T]) Future() *Future[T] {
	return p.fut
}

// Set fulfills the future with a value. Returns false if the future was
// already fulfilled, failed, or discarded; the value is then dropped.
func (p *Promise[T]) Set(v T) bool {
	return p.fut.complete(func(f *Future[T]) {
		f.state = ready
		f.value = v
	})
}

// Fail fulfills the future with an error. Returns false if the future
// was already terminal; the error is then dropped.
func (p *Promise[T]) Fail(err error) bool {
	return p.fut.complete(func(f *Future[T]) {
		f.state = failed
		f.err = err
	})
}

// complete runs the state transition under the lock, then fires
// callbacks outside it. Exactly one transition ever succeeds.
func (f *Future[T]) complete(transition func(*Future[T])) bool {
	f.mu.Lock()
	if f.state != pending {
		f.mu.Unlock()
		return false
	}
	transition(f)
	cbs := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	close(f.done)
	for _, cb := range cbs {
		cb(f)
	}
	return true
}

// Discard marks the caller's loss of interest. It is cooperative: the
// producer is not interrupted, but any value it later sets is dropped.
// Returns true if this call performed the transition.
func (f *Future[T]) Discard() bool {
	return f.complete(func(f *Future[T]) {
		f.state = discarded
	})
}

// OnAny registers a continuation that runs exactly once when the future
// becomes terminal (fulfilled, failed, or discarded). If the future is
// already terminal the continuation runs inline.
func (f *Future[T]) OnAny(cb func(*Future[T])) {
	f.mu.Lock()
	if f.state == pending {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	cb(f)
}

// Get blocks until the future is terminal or ctx is done. A discarded
// future yields ErrDiscarded.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	v, _, err := f.TryGet()
	return v, err
}

// TryGet returns (value, true, nil) if fulfilled, (zero, true, err) if
// failed or discarded, and (zero, false, nil) while still pending.
func (f *Future[T]) TryGet() (T, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	switch f.state {
	case pending:
		return zero, false, nil
	case ready:
		return f.value, true, nil
	case failed:
		return zero, true, f.err
	default:
		return zero, true, ErrDiscarded
	}
}

func (f *Future[T]) IsPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == pending
}

func (f *Future[T]) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == ready
}

func (f *Future[T]) IsFailed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == failed
}

func (f *Future[T]) IsDiscarded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == discarded
}
