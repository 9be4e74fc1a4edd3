package mailbox

import (
	"sync"

	"github.com/panlibin/reactor/internal/netpoll"
)

// Kind selects which Transport a Mailbox is built on.
type Kind int

const (
	// EventCounter selects the unbounded, mutex-backed eventfd
	// transport. Linux only.
	EventCounter Kind = iota
	// Pipe selects the portable, lock-free-post pipe transport.
	Pipe
)

// Mailbox is the cross-thread message delivery primitive. It is
// attached to at most one Registrar (ordinarily a Worker) at a time;
// Post is safe to call from any goroutine regardless of attachment
// state, but messages only reach the Handler once attached and the
// owner's loop drains readiness on the mailbox's fd.
type Mailbox struct {
	handler   Handler
	transport Transport

	mu        sync.Mutex
	registrar Registrar
}

// New constructs a Mailbox of the given kind, delivering to handler.
func New(kind Kind, handler Handler) (*Mailbox, error) {
	var t Transport
	var err error
	switch kind {
	case EventCounter:
		t, err = NewEventFD()
	case Pipe:
		t, err = NewPipe()
	default:
		t, err = NewPipe()
	}
	if err != nil {
		return nil, err
	}
	return &Mailbox{handler: handler, transport: t}, nil
}

// Post enqueues msg for delivery. Safe from any thread; for a
// Pipe-backed Mailbox it is additionally async-signal-safe. Returns
// false if the message could not be posted (the caller decides whether
// to retry or drop it).
func (m *Mailbox) Post(msg Message) bool {
	return m.transport.Post(msg)
}

// FD is the descriptor that becomes readable when messages are pending.
func (m *Mailbox) FD() int { return m.transport.FD() }

// Attach registers the mailbox's fd with reg so its owner's poll loop
// wakes on pending messages. A mailbox is attached to at most one
// worker at a time; if it was already attached elsewhere, that
// registration is detached first.
func (m *Mailbox) Attach(reg Registrar) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registrar != nil {
		_ = m.registrar.RemoveFD(m.transport.FD())
	}
	if err := reg.AddFD(m.transport.FD(), netpoll.EventRead, m.onReadable); err != nil {
		m.registrar = nil
		return err
	}
	m.registrar = reg
	return nil
}

// Detach removes the mailbox's fd from whatever Registrar it is
// currently attached to, if any.
func (m *Mailbox) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registrar == nil {
		return
	}
	_ = m.registrar.RemoveFD(m.transport.FD())
	m.registrar = nil
}

func (m *Mailbox) onReadable(netpoll.Event) {
	m.Deliver()
}

// Deliver drains every message pending at the moment of entry and hands
// each to the handler, in FIFO order per posting thread. Exported so
// tests and a foreign caller (e.g. final teardown drain) can invoke it
// directly without going through the poll loop.
func (m *Mailbox) Deliver() {
	m.transport.Drain(m.handler.HandleMessage)
}

// Close releases the mailbox's transport resources. The mailbox must be
// detached first.
func (m *Mailbox) Close() error {
	return m.transport.Close()
}

// DebugStats reports diagnostic counters when the underlying transport
// supports them (both provided transports do); see DebugStatsSnapshot.
type debugStatsProvider interface {
	Debug() DebugStatsSnapshot
}

func (m *Mailbox) DebugStats() DebugStatsSnapshot {
	if p, ok := m.transport.(debugStatsProvider); ok {
		return p.Debug()
	}
	return DebugStatsSnapshot{}
}
