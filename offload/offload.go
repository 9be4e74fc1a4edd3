// Package offload is the one sanctioned escape hatch for a handler that
// must run a genuinely blocking call (DNS lookup, backend dial, disk
// read for a cache miss) without blocking its Worker's loop. It runs
// the blocking closure on a bounded github.com/panjf2000/ants/v2
// goroutine pool and posts the result back to the originating Worker as
// a disposable task, so the result is always observed on that Worker's
// own thread. It never retries and never moves work between workers on
// its own.
package offload

import (
	"github.com/panjf2000/ants/v2"
	"github.com/panlibin/reactor"
	"github.com/pkg/errors"
)

// Pool wraps one shared ants.Pool sized at construction.
type Pool struct {
	ants *ants.Pool
}

// NewPool constructs an offload Pool with the given goroutine capacity.
func NewPool(capacity int) (*Pool, error) {
	p, err := ants.NewPool(capacity, ants.WithNonblocking(false))
	if err != nil {
		return nil, errors.Wrap(err, "offload: new ants pool")
	}
	return &Pool{ants: p}, nil
}

// Release tears down the underlying goroutine pool, blocking until
// every in-flight submission has completed.
func (p *Pool) Release() {
	p.ants.Release()
}

// Running reports how many submissions are currently executing.
func (p *Pool) Running() int {
	return p.ants.Running()
}

// Submit runs fn on a pool goroutine and, once it returns, posts its
// result back to w as a disposable task that invokes done on w's own
// thread — preserving the non-blocking handler invariant while giving
// fn a place to run that genuinely may block. Returns an error only if
// the pool itself rejected the submission (e.g. already released); fn
// is never called in that case.
func (p *Pool) Submit(w *reactor.Worker, fn func() (any, error), done func(w *reactor.Worker, result any, err error)) error {
	return p.ants.Submit(func() {
		result, err := fn()
		w.ExecuteFunc(func(w *reactor.Worker) {
			done(w, result, err)
		})
	})
}
