// Package listener provides the accept-side plumbing a real proxy
// needs: a Pollable that accepts connections on one owning Worker and
// hands each accepted fd off to another Worker in a Pool via execute,
// never by calling add_fd on a foreign Worker directly — a worker only
// ever registers descriptors for itself. Uses
// github.com/libp2p/go-reuseport for SO_REUSEPORT listening sockets so
// multiple Pool members can each own an independent listener on the
// same address.
package listener

import (
	"net"

	"github.com/libp2p/go-reuseport"
	"github.com/panlibin/reactor"
	"github.com/panlibin/reactor/internal/netpoll"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// AcceptFunc is invoked on the target worker's own thread once per
// accepted connection: all logic for a given fd runs on its owning
// worker. fd is already non-blocking; the
// callback is responsible for registering it (typically by wrapping it
// in a Conn and calling w.Register).
type AcceptFunc func(w *reactor.Worker, fd int, sa unix.Sockaddr)

// Listener is a Pollable that accepts connections arriving on one
// listening socket and round-robins each accepted fd to a Pool member.
type Listener struct {
	addr     net.Addr
	fd       int
	pool     *Pool
	onAccept AcceptFunc
}

// New opens a SO_REUSEPORT listening socket on network/address (e.g.
// "tcp", "0.0.0.0:3306") and wraps it as a Listener. The caller must
// register it with exactly one owning Worker via Register.
func New(network, address string, pool *Pool, onAccept AcceptFunc) (*Listener, error) {
	ln, err := reuseport.Listen(network, address)
	if err != nil {
		return nil, errors.Wrap(err, "listener: reuseport listen")
	}

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return nil, errors.Errorf("listener: unsupported listener type %T", ln)
	}

	file, err := tcpLn.File()
	if err != nil {
		_ = ln.Close()
		return nil, errors.Wrap(err, "listener: dup listener fd")
	}
	// file.Fd() returns a duplicate of the socket's descriptor; closing
	// the original net.Listener does not affect it. From here on this
	// Listener owns raw syscalls against fd directly, bypassing the Go
	// runtime's own netpoller so accept happens on the worker's thread
	// exactly when our own epoll says it is ready.
	fd := int(file.Fd())
	addr := ln.Addr()
	_ = ln.Close()

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "listener: set nonblock")
	}

	return &Listener{addr: addr, fd: fd, pool: pool, onAccept: onAccept}, nil
}

// Addr returns the address the listening socket is bound to.
func (l *Listener) Addr() net.Addr { return l.addr }

// PollFD implements reactor.Pollable.
func (l *Listener) PollFD() int { return l.fd }

// HandlePollEvents implements reactor.Pollable: it accepts in a loop
// until EAGAIN, handing each accepted connection to the next Pool
// member via a disposable task (never a direct cross-worker add_fd
// call).
func (l *Listener) HandlePollEvents(_ *reactor.Worker, _ netpoll.Event, _ reactor.Context) netpoll.Event {
	for {
		connFD, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return 0
			}
			if err == unix.EINTR {
				continue
			}
			return 0
		}
		target := l.pool.next()
		target.ExecuteDisposable(acceptTask{fd: connFD, sa: sa, onAccept: l.onAccept})
	}
}

// Close releases the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// acceptTask hands one accepted fd to its target worker's own thread.
// It is disposable rather than borrowed because the accepting Listener
// has no further interest in it once posted.
type acceptTask struct {
	fd       int
	sa       unix.Sockaddr
	onAccept AcceptFunc
}

func (t acceptTask) Execute(w *reactor.Worker) {
	t.onAccept(w, t.fd, t.sa)
}
