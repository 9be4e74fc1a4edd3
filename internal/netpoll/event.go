// Package netpoll is a thin wrapper over the kernel's non-blocking I/O
// event demultiplexer (epoll on Linux, kqueue on the BSDs). It knows
// nothing about Workers, Pollables or dispatch semantics; it only adds,
// modifies and removes descriptors, and returns batches of (fd, mask)
// readiness pairs.
package netpoll

import "golang.org/x/sys/unix"

// Event is a bitmask of readiness categories. The bit values are chosen
// to match the kernel's epoll event bits directly, so no translation is
// needed on Linux; the kqueue backend translates its own filter/flags
// into this same bitmask.
type Event uint32

const (
	// EventRead indicates the descriptor is ready for reading (or, for a
	// listening socket, that a connection is ready to be accepted).
	EventRead Event = unix.EPOLLIN
	// EventWrite indicates the descriptor is ready for writing.
	EventWrite Event = unix.EPOLLOUT
	// EventError indicates an error condition on the descriptor.
	EventError Event = unix.EPOLLERR
	// EventHup indicates the peer hung up (or half of a full-duplex
	// connection was shut down).
	EventHup Event = unix.EPOLLHUP
	// EventPri mirrors EPOLLPRI, which Linux sets for out-of-band/urgent
	// data and for accept-queue readiness on some kernels; folded into
	// EventRead by callers that don't care about the distinction.
	EventPri Event = unix.EPOLLPRI

	// EventReadWrite is the mask used by full-duplex connections that are
	// both readable and writable, e.g. while a write buffer is draining.
	EventReadWrite = EventRead | EventWrite
)

func (e Event) Readable() bool { return e&(EventRead|EventPri) != 0 }
func (e Event) Writable() bool { return e&EventWrite != 0 }
func (e Event) HasError() bool { return e&EventError != 0 }
func (e Event) HasHup() bool   { return e&EventHup != 0 }

func (e Event) String() string {
	s := ""
	if e.Readable() {
		s += "R"
	}
	if e.Writable() {
		s += "W"
	}
	if e.HasError() {
		s += "E"
	}
	if e.HasHup() {
		s += "H"
	}
	if s == "" {
		s = "-"
	}
	return s
}

// Ready is one (fd, observed-mask) readiness pair returned by Wait.
type Ready struct {
	Fd    int
	Event Event
}
