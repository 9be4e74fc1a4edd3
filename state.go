package reactor

// State is a Worker's lifecycle state. Stored in an atomic.Int32 so any
// thread may observe it without synchronization; only the owning Worker
// ever transitions it.
type State int32

const (
	// Stopped is the state before Start/Run and after the loop returns.
	Stopped State = iota
	// Idle is set briefly between Start returning and the loop entering
	// its first Wait.
	Idle
	// Polling is set while blocked in the kernel poll call.
	Polling
	// Processing is set while dispatching a batch of real events.
	Processing
	// ZProcessing is set after a Wait that returned no ready descriptors
	// at all (a timeout or interrupted wait), while EpollTick runs —
	// distinguishing housekeeping iterations from handler dispatch.
	// Mailbox and timer-fd wakes are ready descriptors and run under
	// Processing.
	ZProcessing
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Idle:
		return "IDLE"
	case Polling:
		return "POLLING"
	case Processing:
		return "PROCESSING"
	case ZProcessing:
		return "ZPROCESSING"
	default:
		return "UNKNOWN"
	}
}
