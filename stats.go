package reactor

import (
	"sync/atomic"

	"github.com/panlibin/reactor/internal/mailbox"
	"github.com/panlibin/reactor/internal/stats"
)

// Statistics is a point-in-time, best-effort snapshot of a Worker's
// counters. Every field is read with a relaxed atomic load or a
// snapshot of its own independently-synchronized histogram, so a
// caller never blocks or races the worker thread, but the struct as a
// whole is not a consistent point-in-time view across fields.
type Statistics struct {
	// Polls is the number of completed poll-wait iterations.
	Polls uint64
	// Events is the number of individual fd readiness dispatches handed
	// to a Pollable's HandlePollEvents across the worker's life.
	Events uint64
	// QueueTimes buckets, in milliseconds, how long a task waited
	// between being posted and being dispatched from the mailbox. Tasks
	// run inline and plain PostMessage traffic are not observed.
	QueueTimes stats.Snapshot
	// ExecTimes buckets, in milliseconds, how long each HandlePollEvents
	// invocation took to run. Tasks and delayed calls are not timed on
	// their own; they count toward the mailbox or timer-fd dispatch that
	// ran them.
	ExecTimes stats.Snapshot
	// BatchSizes buckets how many ready descriptors each poll-wait
	// returned (0, 1, 2, ..., >=9).
	BatchSizes [stats.MaxTrackedBatch]int64
	// CurrentDescriptors is the number of fds presently registered.
	CurrentDescriptors uint32
	// TotalDescriptors is the cumulative number of fds ever registered.
	TotalDescriptors uint64
	// Mailbox is the shared mailbox's debug counters.
	Mailbox mailbox.DebugStatsSnapshot
}

// Statistics returns a snapshot of w's counters. Safe from any
// goroutine; individual fields may be torn relative to each other even
// though each one is itself consistent.
func (w *Worker) Statistics() Statistics {
	return Statistics{
		Polls:              atomic.LoadUint64(&w.polls),
		Events:             atomic.LoadUint64(&w.events),
		QueueTimes:         w.queueTimes.Snapshot(),
		ExecTimes:          w.execTimes.Snapshot(),
		BatchSizes:         w.batchSizes.Snapshot(),
		CurrentDescriptors: w.currentDescriptors.Load(),
		TotalDescriptors:   w.totalDescriptors.Load(),
		Mailbox:            w.mailbox.DebugStats(),
	}
}

// DescriptorCounts reports the live and cumulative registered-fd counts.
func (w *Worker) DescriptorCounts() (current uint32, total uint64) {
	return w.currentDescriptors.Load(), w.totalDescriptors.Load()
}
