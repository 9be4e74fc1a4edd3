package netpoll

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// CtlOp identifies which epoll_ctl/kevent operation produced an error, so
// callers can apply the spec's fatal/benign split: ENOENT on a Delete is
// benign (the descriptor may already be gone, e.g. the peer closed first
// and some other path removed it), everything else is a fatal,
// invariant-violation-grade error.
type CtlOp int

const (
	CtlAdd CtlOp = iota
	CtlModify
	CtlDelete
)

func (op CtlOp) String() string {
	switch op {
	case CtlAdd:
		return "add"
	case CtlModify:
		return "modify"
	case CtlDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// IsBenign reports whether err, encountered while performing op, is a
// transient/expected condition that should be logged and swallowed
// rather than treated as a fatal invariant violation.
func IsBenign(op CtlOp, err error) bool {
	if err == nil {
		return true
	}
	return op == CtlDelete && errors.Is(err, unix.ENOENT)
}

// WrapCtlError annotates a raw kernel error with the operation and fd it
// occurred on, preserving a stack via github.com/pkg/errors so a fatal
// abort carries useful context in its panic message.
func WrapCtlError(op CtlOp, fd int, err error) error {
	return errors.Wrapf(err, "netpoll: %s fd %d", op, fd)
}
