//go:build linux

package timerset

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// linuxTimerFD wraps a CLOCK_MONOTONIC timerfd.
type linuxTimerFD struct {
	fd int
}

// NewTimerFD constructs the real Linux timerfd backend.
func NewTimerFD() (TimerFD, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, errors.Wrap(err, "timerset: timerfd_create")
	}
	return &linuxTimerFD{fd: fd}, nil
}

func (t *linuxTimerFD) FD() int { return t.fd }

func (t *linuxTimerFD) Arm(d time.Duration) error {
	var spec unix.ItimerSpec
	if d > 0 {
		spec.Value.Sec = int64(d / time.Second)
		spec.Value.Nsec = int64(d % time.Second)
	}
	// Leaving spec.Interval zeroed disarms the kernel's own repeat
	// mechanism: TimerSet reprograms the fd itself after every
	// expiration rather than relying on a fixed kernel-side period,
	// since the period can only be known once the due call runs (and
	// may be cancelled before then).
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		return errors.Wrap(err, "timerset: timerfd_settime")
	}
	return nil
}

func (t *linuxTimerFD) Drain() {
	var buf [8]byte
	_, _ = unix.Read(t.fd, buf[:])
}

func (t *linuxTimerFD) Close() error {
	return unix.Close(t.fd)
}
