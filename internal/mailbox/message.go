// Package mailbox implements a cross-thread message queue. It knows
// nothing about Workers: a Mailbox is attached to anything that can
// register a file descriptor for readiness notification (see
// Registrar), and delivers messages to a Handler supplied at
// construction time.
package mailbox

import "github.com/panlibin/reactor/internal/netpoll"

// Message is the fixed-size record transported verbatim across threads.
// On 64-bit platforms the struct occupies exactly 24 bytes (4-byte ID,
// 4 bytes of alignment padding, two 8-byte words). If the two words
// carry pointers, their lifetime is the sender's and receiver's
// concern, not the mailbox's.
type Message struct {
	ID   uint32
	Arg1 uintptr
	Arg2 uintptr
}

// Handler receives messages delivered by a Mailbox, always on the
// goroutine that calls Deliver (i.e. the owning worker's thread).
type Handler interface {
	HandleMessage(msg Message)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(msg Message)

func (f HandlerFunc) HandleMessage(msg Message) { f(msg) }

// Registrar is the minimal capability a Mailbox needs from whatever it
// is attached to: the ability to add/remove one file descriptor from a
// poll set and be called back on readiness. A *reactor.Worker satisfies
// this through its internal func-based registration helper, keeping
// this package free of any dependency on the reactor package (which
// depends on mailbox, not the other way around).
type Registrar interface {
	AddFD(fd int, events netpoll.Event, onReadable func(netpoll.Event)) error
	RemoveFD(fd int) error
}
