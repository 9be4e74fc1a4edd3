package reactor

import "github.com/pkg/errors"

// Sentinel errors for the recoverable, documented failure modes a
// Worker can return. Programmer-contract violations serious enough to
// indicate a bug are raised as panics instead (see worker.go); these
// sentinels cover the failures a caller is meant to branch on.
var (
	// ErrFDRegistered is returned by Register when fd is already
	// registered with this worker; the prior registration is left
	// intact.
	ErrFDRegistered = errors.New("reactor: fd already registered")
	// ErrFDNotFound is returned by Unregister when fd is not registered.
	ErrFDNotFound = errors.New("reactor: fd not registered")
	// ErrClosed names the state of a worker that has fully shut down and
	// released its resources. No Worker method returns it: operations on
	// a worker whose loop has exited are not checked for that state.
	ErrClosed = errors.New("reactor: worker closed")
)
