package reactor

import (
	"testing"
	"time"

	"github.com/panlibin/reactor/internal/netpoll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestStatisticsStartsAtZero(t *testing.T) {
	w, err := NewWorker()
	require.NoError(t, err)

	st := w.Statistics()
	assert.Zero(t, st.Polls)
	assert.Zero(t, st.Events)
	assert.Zero(t, st.QueueTimes.Observed)
	assert.Zero(t, st.ExecTimes.Observed)
	// The mailbox fd and the timer-fd are registered at construction.
	assert.EqualValues(t, 2, st.CurrentDescriptors)
	assert.EqualValues(t, 2, st.TotalDescriptors)
}

func TestStatisticsPollsAndEventsAccumulate(t *testing.T) {
	w := newRunningWorker(t)
	// An idle worker blocks in poll-wait for up to pollTimeout; a posted
	// task wakes it through its mailbox fd.
	require.True(t, w.CallFunc(func(*Worker) {}))
	time.Sleep(150 * time.Millisecond)

	st := w.Statistics()
	assert.Greater(t, st.Polls, uint64(0))
	assert.Greater(t, st.Events, uint64(0))
}

func TestQueueTimesObservedOnDispatchedTask(t *testing.T) {
	w := newRunningWorker(t)

	before := w.Statistics().QueueTimes.Observed

	done := make(chan struct{})
	// Posted from a foreign goroutine so it actually routes through the
	// mailbox rather than running inline, which is the only path the
	// dispatch observer instruments.
	require.True(t, w.ExecuteFunc(func(*Worker) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("posted task never ran")
	}

	// No wait is needed: the observer callback fires synchronously
	// inside HandleMessage just before the task body, so by the time
	// done is closed it has already been invoked.
	st := w.Statistics()
	assert.Greater(t, st.QueueTimes.Observed, before)
}

func TestExecTimesObservedOnPollDispatch(t *testing.T) {
	w := newRunningWorker(t)

	before := w.Statistics().ExecTimes.Observed

	fds, err := unixPipe()
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	handled := make(chan struct{})
	w.CallFunc(func(w *Worker) {
		require.NoError(t, w.AddFD(fds[0], netpoll.EventRead, func(netpoll.Event) {
			close(handled)
		}))
	})

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("poll handler never invoked")
	}

	time.Sleep(50 * time.Millisecond)
	st := w.Statistics()
	assert.Greater(t, st.ExecTimes.Observed, before)
}

func TestDescriptorCountsIncludeInternalFDsForFreshWorker(t *testing.T) {
	w, err := NewWorker()
	require.NoError(t, err)

	current, total := w.DescriptorCounts()
	// A fresh worker already owns its mailbox and timer-fd registrations.
	assert.GreaterOrEqual(t, current, uint32(1))
	assert.GreaterOrEqual(t, total, uint64(1))
}

func TestMailboxDebugStatsReportAverage(t *testing.T) {
	w := newRunningWorker(t)

	for i := 0; i < 5; i++ {
		require.True(t, w.ExecuteFunc(func(*Worker) {}))
	}
	time.Sleep(100 * time.Millisecond)

	st := w.Statistics()
	assert.GreaterOrEqual(t, st.Mailbox.TotalMessages, int64(5))
	if st.Mailbox.TotalEvents > 0 {
		assert.GreaterOrEqual(t, st.Mailbox.AverageMsgsPerEvent, 0.0)
	}
}

func TestBatchSizesHasFixedWidth(t *testing.T) {
	w := newRunningWorker(t)
	time.Sleep(50 * time.Millisecond)

	st := w.Statistics()
	assert.Len(t, st.BatchSizes, 10)
}
