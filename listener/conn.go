package listener

import (
	"github.com/panlibin/reactor"
	"github.com/panlibin/reactor/internal/netpoll"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"
)

// OnData is invoked once per non-empty read with the bytes read; the
// slice is only valid for the duration of the call. OnClose is invoked
// once when HandlePollEvents tears the connection down (peer hangup,
// EOF, or read error); an explicit Close does not invoke it.
type Handler interface {
	OnData(c *Conn, data []byte)
	OnClose(c *Conn, err error)
}

// Conn is a generic non-blocking accepted connection, the minimal
// Pollable a listener.AcceptFunc can register without knowing anything
// about the wire protocol spoken over it. It gives
// github.com/valyala/bytebufferpool a concrete home on the accept
// path, the same pooled-read-buffer pattern used around every read of
// an accepted socket.
type Conn struct {
	fd      int
	handler Handler
	worker  *reactor.Worker
}

// NewConn wraps an already-accepted, already-non-blocking fd. The
// caller registers it with w via w.Register(conn.PollFD(), ..., conn)
// on w's own thread (ordinarily from within an AcceptFunc).
func NewConn(w *reactor.Worker, fd int, h Handler) *Conn {
	return &Conn{fd: fd, handler: h, worker: w}
}

// PollFD implements reactor.Pollable.
func (c *Conn) PollFD() int { return c.fd }

// HandlePollEvents implements reactor.Pollable: it reads until EAGAIN,
// handing each chunk to the handler, and tears the connection down on
// EOF, error, or HUP.
func (c *Conn) HandlePollEvents(w *reactor.Worker, ev netpoll.Event, _ reactor.Context) netpoll.Event {
	if ev.HasError() || ev.HasHup() {
		c.teardown(w, unix.ECONNRESET)
		return 0
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if cap(buf.B) < 4096 {
		buf.B = make([]byte, 4096)
	}
	scratch := buf.B[:4096]
	for {
		n, err := unix.Read(c.fd, scratch)
		if n > 0 {
			c.handler.OnData(c, scratch[:n])
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return 0
			}
			if err == unix.EINTR {
				continue
			}
			c.teardown(w, err)
			return 0
		}
		if n == 0 {
			c.teardown(w, nil)
			return 0
		}
		if n < len(scratch) {
			return 0
		}
	}
}

// Write performs a best-effort non-blocking write. Partial writes are
// the caller's concern; this package carries no write-buffering layer
// of its own.
func (c *Conn) Write(p []byte) (int, error) {
	return unix.Write(c.fd, p)
}

// Close unregisters and closes the connection.
func (c *Conn) Close() error {
	_ = c.worker.Unregister(c.fd)
	return unix.Close(c.fd)
}

func (c *Conn) teardown(w *reactor.Worker, err error) {
	_ = w.Unregister(c.fd)
	_ = unix.Close(c.fd)
	c.handler.OnClose(c, err)
}
