//go:build !linux

package mailbox

import "github.com/pkg/errors"

// NewEventFD is unavailable outside Linux (eventfd2 is a Linux-only
// syscall); callers that want a Mailbox on another platform must select
// Kind Pipe instead.
func NewEventFD() (Transport, error) {
	return nil, errors.New("mailbox: event-counter transport requires linux")
}
