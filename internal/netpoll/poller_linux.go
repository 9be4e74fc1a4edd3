//go:build linux

package netpoll

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Poller wraps a single epoll instance. It is not safe for concurrent
// use by more than one goroutine: exactly one Worker calls Wait in a
// loop and Add/Modify/Delete from that same goroutine (or, per the
// Worker contract, via a queued task).
type Poller struct {
	fd     int
	buf    *readyList
	events []unix.EpollEvent
}

// Open instantiates a poller backed by a fresh epoll instance.
func Open() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "netpoll: epoll_create1")
	}
	return &Poller{
		fd:     epfd,
		buf:    newReadyList(InitEvents),
		events: make([]unix.EpollEvent, InitEvents),
	}, nil
}

// Fd returns the underlying epoll file descriptor, e.g. for diagnostics.
func (p *Poller) Fd() int { return p.fd }

// Close closes the epoll instance. It does not close any of the
// descriptors that were registered with it.
func (p *Poller) Close() error {
	return unix.Close(p.fd)
}

// Add registers fd with the poller, requesting notification for the
// event categories in ev.
func (p *Poller) Add(fd int, ev Event) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: uint32(ev)})
	if err != nil {
		return WrapCtlError(CtlAdd, fd, err)
	}
	return nil
}

// Modify changes the requested event mask for an already-registered fd.
func (p *Poller) Modify(fd int, ev Event) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: uint32(ev)})
	if err != nil {
		return WrapCtlError(CtlModify, fd, err)
	}
	return nil
}

// Delete unregisters fd from the poller. ENOENT (the fd was not
// registered, typically because it was already removed along some other
// path, e.g. during shutdown teardown) is reported via IsBenign and
// should be logged and swallowed, not treated as fatal.
func (p *Poller) Delete(fd int) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil {
		return WrapCtlError(CtlDelete, fd, err)
	}
	return nil
}

// Wait blocks for up to timeout (a negative timeout blocks indefinitely)
// and returns the batch of ready descriptors. The returned slice is a
// view into the poller's internal scratch buffer and is only valid
// until the next call to Wait.
func (p *Poller) Wait(timeout time.Duration) ([]Ready, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(p.fd, p.events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, errors.Wrap(err, "netpoll: epoll_wait")
	}

	for i := 0; i < n; i++ {
		p.buf.ready[i] = Ready{Fd: int(p.events[i].Fd), Event: Event(p.events[i].Events)}
	}

	if n == p.buf.size {
		p.buf.increase()
		p.events = make([]unix.EpollEvent, p.buf.size)
	}

	return p.buf.ready[:n], nil
}
