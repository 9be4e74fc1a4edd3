package mailbox

import "sync/atomic"

// DebugStats tracks how many I/O wakeups carried exactly one message
// versus more than one, the largest batch seen, and the running average
// batch size. Cheap enough (a handful of atomic increments per wakeup)
// to keep unconditionally rather than behind a build tag.
type DebugStats struct {
	totalMessages   atomic.Int64
	totalEvents     atomic.Int64
	singleMsgEvents atomic.Int64
	multiMsgEvents  atomic.Int64
	maxMsgsSeen     atomic.Int64
}

func (d *DebugStats) observe(n int) {
	d.totalEvents.Add(1)
	d.totalMessages.Add(int64(n))
	switch {
	case n == 1:
		d.singleMsgEvents.Add(1)
	case n > 1:
		d.multiMsgEvents.Add(1)
	}
	for {
		prev := d.maxMsgsSeen.Load()
		if int64(n) <= prev || d.maxMsgsSeen.CompareAndSwap(prev, int64(n)) {
			break
		}
	}
}

// DebugStatsSnapshot is a point-in-time copy of DebugStats.
type DebugStatsSnapshot struct {
	TotalMessages   int64
	TotalEvents     int64
	SingleMsgEvents int64
	MultiMsgEvents  int64
	MaxMsgsSeen     int64
	AverageMsgsPerEvent float64
}

func (d *DebugStats) snapshot() DebugStatsSnapshot {
	events := d.totalEvents.Load()
	total := d.totalMessages.Load()
	avg := 0.0
	if events > 0 {
		avg = float64(total) / float64(events)
	}
	return DebugStatsSnapshot{
		TotalMessages:       total,
		TotalEvents:         events,
		SingleMsgEvents:     d.singleMsgEvents.Load(),
		MultiMsgEvents:      d.multiMsgEvents.Load(),
		MaxMsgsSeen:         d.maxMsgsSeen.Load(),
		AverageMsgsPerEvent: avg,
	}
}
