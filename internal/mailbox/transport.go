package mailbox

// Transport is the wire-level backend a Mailbox posts through and reads
// from. Two implementations are provided, selected per instance at
// construction time: eventfdTransport (Linux only, unbounded, one
// syscall per post and per wake) and pipeTransport (portable,
// kernel-pipe-capacity bounded, signal-safe post).
type Transport interface {
	// FD returns the descriptor to register for readiness.
	FD() int
	// Post enqueues msg for delivery. Returns false if the transport
	// could not accept it (e.g. a write failed after retries).
	Post(msg Message) bool
	// Drain delivers every message queued at the moment of entry to fn,
	// in FIFO order per posting thread. It does not guarantee observing
	// messages posted concurrently with the call.
	Drain(fn func(Message))
	// Close releases the transport's descriptor(s).
	Close() error
}
