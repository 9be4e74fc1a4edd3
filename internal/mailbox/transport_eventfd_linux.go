//go:build linux

package mailbox

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// eventfdTransport is the event-counter backed transport. Posts append
// to a mutex-protected slice and write a single "1" to the eventfd;
// delivery swaps the pending slice for an empty one under the mutex and
// iterates the swapped-out slice without holding it, exactly as
// described for EventMessageQueue in messagequeue.hh.
type eventfdTransport struct {
	fd int

	mu      sync.Mutex
	pending []Message

	// work is reused across Drain calls to avoid reallocating on every
	// wakeup; only ever touched from the worker thread.
	work []Message

	debug DebugStats
}

// NewEventFD constructs the event-counter transport. It is only
// available on Linux, where eventfd2 exists.
func NewEventFD() (Transport, error) {
	fd, _, errno := unix.Syscall(unix.SYS_EVENTFD2, 0, unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if errno != 0 {
		return nil, errors.Wrap(errno, "mailbox: eventfd2")
	}
	return &eventfdTransport{fd: int(fd)}, nil
}

func (t *eventfdTransport) FD() int { return t.fd }

func (t *eventfdTransport) Close() error {
	return unix.Close(t.fd)
}

var one uint64 = 1
var oneBytes = (*(*[8]byte)(unsafe.Pointer(&one)))[:]

func (t *eventfdTransport) Post(msg Message) bool {
	t.mu.Lock()
	t.pending = append(t.pending, msg)
	t.mu.Unlock()

	_, err := unix.Write(t.fd, oneBytes)
	return err == nil
}

func (t *eventfdTransport) Drain(fn func(Message)) {
	var counter [8]byte
	_, _ = unix.Read(t.fd, counter[:])

	t.mu.Lock()
	t.work, t.pending = t.pending, t.work[:0]
	work := t.work
	t.mu.Unlock()

	n := len(work)
	t.debug.observe(n)

	for _, m := range work {
		fn(m)
	}
}

// Debug exposes eventfdTransport's diagnostic counters.
func (t *eventfdTransport) Debug() DebugStatsSnapshot {
	return t.debug.snapshot()
}
