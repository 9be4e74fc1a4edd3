package reactor

import "github.com/panlibin/reactor/internal/netpoll"

// Context tells a Pollable why HandlePollEvents is being invoked.
type Context int

const (
	// PollContext is a genuine kernel-reported readiness wake.
	PollContext Context = iota
	// NopContext is a synthetic invocation with no real kernel event,
	// reserved for callers that need to re-drive a Pollable without
	// waiting on the kernel (e.g. tests, or a future housekeeping pass).
	NopContext
)

func (c Context) String() string {
	switch c {
	case PollContext:
		return "POLL"
	case NopContext:
		return "NOP"
	default:
		return "unknown"
	}
}

// Pollable is the capability any object registered with a Worker must
// implement. It models the handler contract as an interface rather
// than requiring inheritance from a common base type.
//
// A Pollable is borrowed by the Worker for the lifetime of its
// registration; the registrant guarantees the object outlives
// Register/Unregister. Registrations are unique per (worker, fd).
type Pollable interface {
	// PollFD returns the descriptor to add to the kernel demultiplexer.
	PollFD() int
	// HandlePollEvents is invoked on the worker's own thread when the
	// kernel reports readiness, or synthetically with NopContext. The
	// returned mask is currently advisory (reserved for a future
	// re-arm-with-different-mask protocol) and is otherwise ignored.
	HandlePollEvents(w *Worker, ev netpoll.Event, ctx Context) netpoll.Event
}

// funcPollable adapts a plain readiness callback to Pollable, letting
// Worker satisfy mailbox.Registrar and task.Poster's registration
// counterpart without those packages needing to know about the full
// Pollable interface.
type funcPollable struct {
	fd int
	fn func(netpoll.Event)
}

func (p funcPollable) PollFD() int { return p.fd }

func (p funcPollable) HandlePollEvents(_ *Worker, ev netpoll.Event, _ Context) netpoll.Event {
	p.fn(ev)
	return 0
}
