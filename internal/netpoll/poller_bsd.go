//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package netpoll

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Poller wraps a single kqueue instance, translating kqueue's
// ident/filter/flags model into the same Event bitmask the epoll
// backend produces, so callers never need an OS switch.
type Poller struct {
	fd      int
	buf     *readyList
	kevents []unix.Kevent_t
}

// Open instantiates a poller backed by a fresh kqueue instance.
func Open() (*Poller, error) {
	kfd, err := unix.Kqueue()
	if err != nil {
		return nil, errors.Wrap(err, "netpoll: kqueue")
	}
	return &Poller{
		fd:      kfd,
		buf:     newReadyList(InitEvents),
		kevents: make([]unix.Kevent_t, InitEvents),
	}, nil
}

func (p *Poller) Fd() int { return p.fd }

func (p *Poller) Close() error {
	return unix.Close(p.fd)
}

// Add registers fd for the event categories in ev. kqueue requires a
// separate filter registration per direction, unlike epoll's single
// combined mask.
func (p *Poller) Add(fd int, ev Event) error {
	changes := p.changesFor(fd, ev, unix.EV_ADD)
	if _, err := unix.Kevent(p.fd, changes, nil, nil); err != nil {
		return WrapCtlError(CtlAdd, fd, err)
	}
	return nil
}

// Modify re-registers fd for ev, deleting any filter direction that is
// no longer requested.
func (p *Poller) Modify(fd int, ev Event) error {
	changes := p.changesFor(fd, ev, unix.EV_ADD)
	if !ev.Readable() {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Flags: unix.EV_DELETE, Filter: unix.EVFILT_READ})
	}
	if !ev.Writable() {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Flags: unix.EV_DELETE, Filter: unix.EVFILT_WRITE})
	}
	if _, err := unix.Kevent(p.fd, changes, nil, nil); err != nil {
		return WrapCtlError(CtlModify, fd, err)
	}
	return nil
}

// Delete unregisters fd from both filter directions. kqueue silently
// ignores deleting a filter that was never added, so there is no
// benign-vs-fatal ENOENT split to make here, unlike epoll.
func (p *Poller) Delete(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Flags: unix.EV_DELETE, Filter: unix.EVFILT_READ},
		{Ident: uint64(fd), Flags: unix.EV_DELETE, Filter: unix.EVFILT_WRITE},
	}
	_, _ = unix.Kevent(p.fd, changes, nil, nil)
	return nil
}

func (p *Poller) changesFor(fd int, ev Event, flags uint16) []unix.Kevent_t {
	var changes []unix.Kevent_t
	if ev.Readable() {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Flags: flags, Filter: unix.EVFILT_READ})
	}
	if ev.Writable() {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Flags: flags, Filter: unix.EVFILT_WRITE})
	}
	return changes
}

// Wait blocks for up to timeout (negative blocks indefinitely) and
// returns the batch of ready descriptors.
func (p *Poller) Wait(timeout time.Duration) ([]Ready, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}

	n, err := unix.Kevent(p.fd, nil, p.kevents, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, errors.Wrap(err, "netpoll: kevent")
	}

	for i := 0; i < n; i++ {
		ke := p.kevents[i]
		var mask Event
		switch ke.Filter {
		case unix.EVFILT_READ:
			mask = EventRead
		case unix.EVFILT_WRITE:
			mask = EventWrite
		}
		if ke.Flags&unix.EV_EOF != 0 {
			mask |= EventHup
		}
		if ke.Flags&unix.EV_ERROR != 0 {
			mask |= EventError
		}
		p.buf.ready[i] = Ready{Fd: int(ke.Ident), Event: mask}
	}

	if n == p.buf.size {
		p.buf.increase()
		p.kevents = make([]unix.Kevent_t, p.buf.size)
	}

	return p.buf.ready[:n], nil
}
