package listener

import (
	"sync/atomic"

	"github.com/panlibin/reactor"
	"golang.org/x/sync/errgroup"
)

// Pool is a fixed set of Workers, round-robin dispatched. It exists so
// a Listener's accept loop can hand an accepted connection to a
// different worker than the one that accepted it, spreading
// connections evenly across a fixed worker count.
type Pool struct {
	workers []*reactor.Worker
	cursor  atomic.Uint64
}

// NewPool wraps an existing slice of Workers as a round-robin Pool.
// workers must be non-empty.
func NewPool(workers []*reactor.Worker) *Pool {
	return &Pool{workers: workers}
}

// next returns the next worker in round-robin order.
func (p *Pool) next() *reactor.Worker {
	i := p.cursor.Add(1) - 1
	return p.workers[i%uint64(len(p.workers))]
}

// Workers returns the pool's members, in order.
func (p *Pool) Workers() []*reactor.Worker {
	return p.workers
}

// Start calls Start on every member.
func (p *Pool) Start() {
	for _, w := range p.workers {
		w.Start()
	}
}

// Shutdown calls Shutdown on every member.
func (p *Pool) Shutdown() {
	for _, w := range p.workers {
		w.Shutdown()
	}
}

// Join waits for every member to exit, using errgroup purely as a join
// barrier (none of the joins can themselves fail).
func (p *Pool) Join() {
	var g errgroup.Group
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			w.Join()
			return nil
		})
	}
	_ = g.Wait()
}
