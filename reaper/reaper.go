// Package reaper is an asynchronous per-pid wait service: given a
// process identifier it produces a future that resolves with the
// process's exit status, without blocking the caller or dedicating a
// thread per process.
//
// A single collector goroutine exclusively owns the registration table;
// registration, polling, and removal are all serialized through it.
// Waits are non-blocking platform calls driven on a backoff-controlled
// interval, so a terminated child is observed within maxReapInterval of
// exiting and an idle reaper does no polling at all.
package reaper

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/common/stats"
	"github.com/flotillaproject/flotilla/future"
	"github.com/flotillaproject/flotilla/proc"
)

// ErrDuplicateRegistration reports a second reap registration for a pid
// whose first registration is still live. This is a programming error
// in the caller's bookkeeping; tolerating it silently would lose or
// duplicate completion notifications.
var ErrDuplicateRegistration = errors.New("reaper: pid already has a live registration")

// ErrStopped is returned by Reap after Stop.
var ErrStopped = errors.New("reaper: stopped")

const (
	// maxReapInterval caps the poll backoff; a terminated child is
	// observed at most this long after it exits.
	maxReapInterval = 100 * time.Millisecond
	minReapInterval = time.Millisecond
)

type Reaper struct {
	reqCh   chan request
	quitCh  chan struct{}
	stat    stats.StatsReceiver
	pending atomic.Int64
}

type request struct {
	pid   int
	reply chan response
}

type response struct {
	fut *future.Future[proc.ExitStatus]
	err error
}

type registration struct {
	promise *future.Promise[proc.ExitStatus]
	watch   *watcher
}

// New starts a reaper with its own collector goroutine.
func New(stat stats.StatsReceiver) *Reaper {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	r := &Reaper{
		reqCh:  make(chan request),
		quitCh: make(chan struct{}),
		stat:   stat.Scope("reaper"),
	}
	go r.collect()
	return r
}

var (
	defaultOnce   sync.Once
	defaultReaper *Reaper
)

// Default returns the process-wide reaper shared by launchers that
// aren't handed their own.
func Default() *Reaper {
	defaultOnce.Do(func() {
		defaultReaper = New(stats.CurrentStatsReceiver)
	})
	return defaultReaper
}

// Reap registers interest in pid on the default reaper.
func Reap(pid int) (*future.Future[proc.ExitStatus], error) {
	return Default().Reap(pid)
}

// Reap returns a future that resolves when pid terminates: with its
// ExitStatus, or with an error when the status cannot be determined
// (unknown process, wait failure). The error case resolves promptly
// rather than hanging, and a child that terminated before Reap was
// called resolves on the first poll.
//
// At most one live registration may exist per pid; a second one fails
// fast with ErrDuplicateRegistration. Discarding the returned future
// does not abort the registration: the collector still reaps the child
// and then drops the result.
func (r *Reaper) Reap(pid int) (*future.Future[proc.ExitStatus], error) {
	req := request{pid: pid, reply: make(chan response, 1)}
	select {
	case r.reqCh <- req:
	case <-r.quitCh:
		return nil, ErrStopped
	}
	rsp := <-req.reply
	return rsp.fut, rsp.err
}

// Pending reports the number of live registrations.
func (r *Reaper) Pending() int {
	return int(r.pending.Load())
}

// Stop shuts the collector down; outstanding registrations resolve with
// an error. Call at most once. The process-wide Default reaper is never
// stopped; Stop exists for tests and embedded uses.
func (r *Reaper) Stop() {
	close(r.quitCh)
}

func (r *Reaper) collect() {
	regs := make(map[int]*registration)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minReapInterval
	b.MaxInterval = maxReapInterval
	b.MaxElapsedTime = 0 // poll until resolved, never give up
	b.Reset()

	timer := time.NewTimer(maxReapInterval)
	if !timer.Stop() {
		<-timer.C
	}
	// timerC stays nil while the table is empty so an idle reaper does
	// not poll.
	var timerC <-chan time.Time

	for {
		select {
		case <-r.quitCh:
			for pid, reg := range regs {
				reg.watch.close()
				reg.promise.Fail(errors.Errorf("reaper stopped while pid %d was registered", pid))
				r.pending.Add(-1)
			}
			return

		case req := <-r.reqCh:
			if _, ok := regs[req.pid]; ok {
				r.stat.Counter("duplicateRegistrations").Inc(1)
				log.WithFields(log.Fields{"pid": req.pid}).Error("Duplicate reap registration")
				req.reply <- response{err: ErrDuplicateRegistration}
				continue
			}

			promise := future.NewPromise[proc.ExitStatus]()
			reg := &registration{promise: promise}

			w, err := newWatcher(req.pid)
			if err != nil {
				// The process cannot even be opened for waiting; fail
				// the future rather than hang.
				r.stat.Counter("reapErrors").Inc(1)
				promise.Fail(err)
				req.reply <- response{fut: promise.Future()}
				continue
			}
			reg.watch = w

			// An already-terminated child resolves right here.
			if r.poll(req.pid, reg) {
				req.reply <- response{fut: promise.Future()}
				continue
			}

			regs[req.pid] = reg
			r.pending.Add(1)
			if timerC == nil {
				b.Reset()
				timer.Reset(b.NextBackOff())
				timerC = timer.C
			}
			req.reply <- response{fut: promise.Future()}

		case <-timerC:
			resolved := false
			for pid, reg := range regs {
				if r.poll(pid, reg) {
					delete(regs, pid)
					r.pending.Add(-1)
					resolved = true
				}
			}
			if len(regs) == 0 {
				timerC = nil
				continue
			}
			if resolved {
				b.Reset()
			}
			timer.Reset(b.NextBackOff())
		}
	}
}

// poll runs one non-blocking wait for a registration. Returns true when
// it resolved, in which case the watcher has been closed and the
// promise fulfilled with either a status or an error.
func (r *Reaper) poll(pid int, reg *registration) bool {
	done, st, err := reg.watch.poll()
	if !done {
		return false
	}
	reg.watch.close()
	if err != nil {
		r.stat.Counter("reapErrors").Inc(1)
		log.WithFields(log.Fields{"pid": pid, "error": err}).Error("Reap failed")
		reg.promise.Fail(err)
		return true
	}
	r.stat.Counter("reaps").Inc(1)
	log.WithFields(log.Fields{"pid": pid, "status": st.String()}).Debug("Reaped process")
	reg.promise.Set(st)
	return true
}
