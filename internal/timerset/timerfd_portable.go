//go:build !linux && unix

package timerset

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// portableTimerFD is the fallback backend for platforms without a
// pollable kernel timer: a one-byte pipe, written to by a time.AfterFunc
// goroutine. Re-arming cancels whatever AfterFunc is outstanding before
// scheduling a new one, so only the most recent Arm call can ever fire.
type portableTimerFD struct {
	readFD  int
	writeFD int

	mu      sync.Mutex
	pending *time.Timer
}

// NewTimerFD constructs the portable timer backend.
func NewTimerFD() (TimerFD, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, errors.Wrap(err, "timerset: pipe")
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, errors.Wrap(err, "timerset: set nonblock")
		}
	}
	return &portableTimerFD{readFD: fds[0], writeFD: fds[1]}, nil
}

func (t *portableTimerFD) FD() int { return t.readFD }

func (t *portableTimerFD) Arm(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	if d <= 0 {
		return nil
	}
	t.pending = time.AfterFunc(d, func() {
		var b [1]byte
		_, _ = unix.Write(t.writeFD, b[:])
	})
	return nil
}

func (t *portableTimerFD) Drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(t.readFD, buf[:])
		if err != nil || n <= 0 {
			return
		}
		if n < len(buf) {
			return
		}
	}
}

func (t *portableTimerFD) Close() error {
	t.mu.Lock()
	if t.pending != nil {
		t.pending.Stop()
	}
	t.mu.Unlock()

	err1 := unix.Close(t.readFD)
	err2 := unix.Close(t.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}
