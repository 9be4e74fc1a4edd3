package timerset

import "time"

// TimerFD is the pollable arming primitive a worker registers once per
// instance and reprograms every time the Set's head changes. Two
// backends are provided: a real Linux timerfd, and a portable
// pipe+time.AfterFunc fallback for platforms without one, mirroring the
// two-transports-per-concern idiom already used for Mailbox.
type TimerFD interface {
	// FD returns the descriptor to register for read readiness.
	FD() int
	// Arm schedules the next expiration at now+d. d<=0 disarms it.
	Arm(d time.Duration) error
	// Drain must be called once the fd is observed readable, before
	// rearming, to clear the pending expiration count.
	Drain()
	// Close releases the timer's resources.
	Close() error
}
