package timerset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOrdersByDueTime(t *testing.T) {
	s := New()
	now := time.Unix(1000, 0)

	var order []string
	s.Add(now, 30*time.Millisecond, func(Action) bool { order = append(order, "c"); return false })
	s.Add(now, 10*time.Millisecond, func(Action) bool { order = append(order, "a"); return false })
	s.Add(now, 20*time.Millisecond, func(Action) bool { order = append(order, "b"); return false })

	s.PopDue(now.Add(30 * time.Millisecond))
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, s.Len())
}

func TestPopDueOnlyFiresExpiredEntries(t *testing.T) {
	s := New()
	now := time.Unix(2000, 0)

	fired := 0
	s.Add(now, 100*time.Millisecond, func(Action) bool { fired++; return false })

	s.PopDue(now.Add(50 * time.Millisecond))
	assert.Equal(t, 0, fired)
	assert.Equal(t, 1, s.Len())

	s.PopDue(now.Add(150 * time.Millisecond))
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, s.Len())
}

func TestExecuteReturningTrueReschedulesByPeriodNotNow(t *testing.T) {
	s := New()
	now := time.Unix(3000, 0)

	var dues []time.Time
	id := s.Add(now, 10*time.Millisecond, func(Action) bool {
		due, _ := s.NextDue()
		dues = append(dues, due)
		return true
	})
	_ = id

	// Observed 5ms after the due time: due+period is now+20ms, while
	// now+period would have been now+25ms.
	s.PopDue(now.Add(15 * time.Millisecond))
	next, ok := s.NextDue()
	require.True(t, ok)
	assert.Equal(t, now.Add(20*time.Millisecond), next)
}

func TestExecuteReturningFalseRemovesEntry(t *testing.T) {
	s := New()
	now := time.Unix(4000, 0)

	s.Add(now, 10*time.Millisecond, func(Action) bool { return false })
	s.PopDue(now.Add(10 * time.Millisecond))

	_, ok := s.NextDue()
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestDriftCompensationSkipsCatchUpBursts(t *testing.T) {
	s := New()
	now := time.Unix(5000, 0)

	runs := 0
	s.Add(now, 10*time.Millisecond, func(Action) bool { runs++; return true })

	// Simulate a handler that ran so long five periods elapsed before
	// the worker got back around to checking the timer.
	late := now.Add(55 * time.Millisecond)
	s.PopDue(late)

	assert.Equal(t, 1, runs, "PopDue invokes the callback once, not once per missed period")
	next, ok := s.NextDue()
	require.True(t, ok)
	assert.True(t, next.After(late), "rescheduled due time must exceed the observation time")
	assert.True(t, next.Sub(late) <= 10*time.Millisecond)
}

func TestCancelInvokesCallbackOnceWithCancelAction(t *testing.T) {
	s := New()
	now := time.Unix(6000, 0)

	var seen Action
	calls := 0
	id := s.Add(now, time.Second, func(a Action) bool {
		seen = a
		calls++
		return true
	})

	require.True(t, s.Cancel(id))
	assert.Equal(t, CANCEL, seen)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Len())

	// Cancelling an already-cancelled id is a no-op, not a second call.
	assert.False(t, s.Cancel(id))
	assert.Equal(t, 1, calls)
}

func TestDiscardAllCancelsEveryPendingCall(t *testing.T) {
	s := New()
	now := time.Unix(7000, 0)

	var cancelled int
	for i := 0; i < 10; i++ {
		s.Add(now, time.Duration(i+1)*time.Millisecond, func(Action) bool {
			cancelled++
			return false
		})
	}

	s.DiscardAll()
	assert.Equal(t, 10, cancelled)
	assert.Equal(t, 0, s.Len())
}

func TestNextDueReflectsEarliestEntry(t *testing.T) {
	s := New()
	now := time.Unix(8000, 0)

	_, ok := s.NextDue()
	assert.False(t, ok)

	s.Add(now, 50*time.Millisecond, func(Action) bool { return false })
	s.Add(now, 5*time.Millisecond, func(Action) bool { return false })
	s.Add(now, 500*time.Millisecond, func(Action) bool { return false })

	due, ok := s.NextDue()
	require.True(t, ok)
	assert.Equal(t, now.Add(5*time.Millisecond), due)
}
