package netpoll

// InitEvents is the initial capacity of a poller's readiness batch. It
// doubles whenever a Wait call fills the batch completely, so a worker
// that is handed many simultaneously-ready descriptors grows into that
// batch size rather than paying for it up front.
const InitEvents = 64

// readyList is the reusable scratch buffer a Wait call fills in place.
// It is owned by the Poller and is only valid until the next Wait call.
type readyList struct {
	ready []Ready
	size  int
}

func newReadyList(size int) *readyList {
	return &readyList{ready: make([]Ready, size), size: size}
}

func (l *readyList) increase() {
	l.size <<= 1
	l.ready = make([]Ready, l.size)
}
