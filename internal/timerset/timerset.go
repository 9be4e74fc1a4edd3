// Package timerset implements a delayed/recurring call subsystem. It
// keeps a dual index: entries ordered by due time in a container/heap
// min-heap, plus a map keyed by id for O(1) lookup on Cancel, the same
// structure joeycumines-go-utilpkg/eventloop uses for its own timer
// wheel.
package timerset

import (
	"container/heap"
	"sync/atomic"
	"time"
)

// Action tells a Callback why it is being invoked.
type Action int

const (
	// EXECUTE means the call's due time has arrived.
	EXECUTE Action = iota
	// CANCEL means the call was cancelled, or discarded unexecuted
	// during shutdown, before its due time arrived.
	CANCEL
)

func (a Action) String() string {
	switch a {
	case EXECUTE:
		return "EXECUTE"
	case CANCEL:
		return "CANCEL"
	default:
		return "unknown"
	}
}

// Callback is invoked once per EXECUTE (on the owning worker's thread,
// in loop order) and exactly once with CANCEL if cancelled or discarded
// before running. Its return value only matters for EXECUTE: true
// reschedules the call for due+period (drift-compensating: not
// now+period), false means don't call again.
type Callback func(action Action) bool

// entry is one scheduled call. It is never copied once inserted: Set
// hands out ids, not pointers, so callers cannot invalidate the heap's
// internal bookkeeping.
type entry struct {
	id     uint32
	period time.Duration
	due    time.Time
	cb     Callback
	index  int // position in the heap, maintained by container/heap
}

type callHeap []*entry

func (h callHeap) Len() int            { return len(h) }
func (h callHeap) Less(i, j int) bool   { return h[i].due.Before(h[j].due) }
func (h callHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *callHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *callHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Set is the ordered-by-due-time, id-keyed collection of pending
// delayed calls for a single worker. It is not safe for concurrent use:
// exactly one owning worker thread drives Add, Cancel and PopDue.
// Cross-thread cancellation is layered on top by the reactor package
// via the task injector.
type Set struct {
	byID map[uint32]*entry
	ord  callHeap
}

// nextID is the id counter shared by every Set in the process; ids wrap
// after 2^32 allocations.
var nextID atomic.Uint32

// New constructs an empty Set.
func New() *Set {
	return &Set{byID: make(map[uint32]*entry)}
}

// Add schedules cb to run after delay, recurring every period thereafter
// while cb keeps returning true from EXECUTE. delay must be positive.
// Returns the id used to Cancel it later.
func (s *Set) Add(now time.Time, delay time.Duration, cb Callback) uint32 {
	id := nextID.Add(1)
	e := &entry{id: id, period: delay, due: now.Add(delay), cb: cb}
	s.byID[id] = e
	heap.Push(&s.ord, e)
	return id
}

// Cancel removes id, invoking its callback once with CANCEL, and
// reports whether id was found. Must be called on the owning thread; a
// foreign-thread caller must route through the worker's task injector
// first.
func (s *Set) Cancel(id uint32) bool {
	e, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	heap.Remove(&s.ord, e.index)
	e.cb(CANCEL)
	return true
}

// DiscardAll cancels every pending call without regard to due time,
// used during worker teardown.
func (s *Set) DiscardAll() {
	for id := range s.byID {
		s.Cancel(id)
	}
}

// Len reports how many calls are pending.
func (s *Set) Len() int { return len(s.byID) }

// NextDue reports the due time of the earliest pending call, and
// whether any call is pending at all. The worker's timer-fd is armed to
// this value, or disarmed when ok is false.
func (s *Set) NextDue() (due time.Time, ok bool) {
	if len(s.ord) == 0 {
		return time.Time{}, false
	}
	return s.ord[0].due, true
}

// PopDue invokes EXECUTE on every entry whose due time is <= now, in
// due-time order, draining the heap as it goes. A callback that returns
// true is rescheduled for due+period (not now+period, so a handler that
// runs long does not get a burst of catch-up calls); if period has
// already elapsed again by the time it is stepped forward, it is
// stepped again until the new due time exceeds now, then reinserted. A
// callback returning false is removed for good.
func (s *Set) PopDue(now time.Time) {
	for len(s.ord) > 0 && !s.ord[0].due.After(now) {
		e := heap.Pop(&s.ord).(*entry)
		if !e.cb(EXECUTE) {
			delete(s.byID, e.id)
			continue
		}
		e.due = e.due.Add(e.period)
		for !e.due.After(now) {
			e.due = e.due.Add(e.period)
		}
		heap.Push(&s.ord, e)
	}
}
