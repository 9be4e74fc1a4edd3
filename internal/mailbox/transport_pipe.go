//go:build unix

package mailbox

import (
	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"
)

// pipeTransport is the portable fallback backend: a unidirectional pipe.
// Post writes one wireSize-byte record per call; since wireSize (24) is
// well under PIPE_BUF on every supported platform, POSIX guarantees the
// write is atomic, so concurrent posters need no userspace mutex. Post
// performs exactly one write(2) syscall and touches no Go-level lock,
// which is what makes it safe to call from a signal handler (the
// event-counter transport cannot make that claim, because of its
// mutex).
type pipeTransport struct {
	readFD  int
	writeFD int
	debug   DebugStats
}

// NewPipe constructs the pipe-backed transport.
func NewPipe() (Transport, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, errors.Wrap(err, "mailbox: pipe")
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, errors.Wrap(err, "mailbox: set nonblock")
		}
	}
	return &pipeTransport{readFD: fds[0], writeFD: fds[1]}, nil
}

func (t *pipeTransport) FD() int { return t.readFD }

func (t *pipeTransport) Close() error {
	err1 := unix.Close(t.readFD)
	err2 := unix.Close(t.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}

// Post is async-signal-safe: it is a single write(2) with no userspace
// locking. Short writes are retried; EAGAIN (the kernel pipe buffer is
// full) is reported as failure to the caller rather than blocking,
// preserving the "handlers/posters never block" invariant.
func (t *pipeTransport) Post(msg Message) bool {
	var buf [wireSize]byte
	encodeMessage(msg, &buf)

	written := 0
	for written < wireSize {
		n, err := unix.Write(t.writeFD, buf[written:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false
		}
		written += n
	}
	return true
}

// Drain reads as many whole records as are currently available and
// dispatches them in arrival order.
func (t *pipeTransport) Drain(fn func(Message)) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	scratch := make([]byte, 4096)
	for {
		n, err := unix.Read(t.readFD, scratch)
		if n > 0 {
			buf.Write(scratch[:n])
		}
		if err != nil || n <= 0 {
			break
		}
		if n < len(scratch) {
			// Short read: the pipe had less than a full buffer ready,
			// almost certainly everything currently pending.
			break
		}
	}

	b := buf.Bytes()
	count := 0
	for off := 0; off+wireSize <= len(b); off += wireSize {
		fn(decodeMessage(b[off : off+wireSize]))
		count++
	}
	t.debug.observe(count)
}

// Debug exposes pipeTransport's diagnostic counters.
func (t *pipeTransport) Debug() DebugStatsSnapshot {
	return t.debug.snapshot()
}
