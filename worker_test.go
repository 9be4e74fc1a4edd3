package reactor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panlibin/reactor/internal/loadmeter"
	"github.com/panlibin/reactor/internal/mailbox"
	"github.com/panlibin/reactor/internal/netpoll"
	"github.com/panlibin/reactor/internal/timerset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newRunningWorker(t *testing.T, opts ...Option) *Worker {
	t.Helper()
	w, err := NewWorker(opts...)
	require.NoError(t, err)
	require.True(t, w.Start())
	t.Cleanup(func() {
		w.Shutdown()
		w.Join()
	})
	return w
}

func unixPipe() ([2]int, error) {
	var fds [2]int
	err := unix.Pipe(fds[:])
	return fds, err
}

func TestNewWorkerStartsStopped(t *testing.T) {
	w, err := NewWorker()
	require.NoError(t, err)
	assert.Equal(t, Stopped, w.State())
}

func TestStartTwiceReturnsFalse(t *testing.T) {
	w := newRunningWorker(t)
	assert.False(t, w.Start())
}

func TestShutdownJoinsCleanly(t *testing.T) {
	w, err := NewWorker()
	require.NoError(t, err)
	require.True(t, w.Start())

	w.Shutdown()
	w.Join()
	assert.Equal(t, Stopped, w.State())
}

func TestPreRunFalseAbortsWithoutLooping(t *testing.T) {
	var ticked atomic.Bool
	w, err := NewWorker(
		WithPreRun(func(*Worker) bool { return false }),
		WithEpollTick(func(*Worker) { ticked.Store(true) }),
	)
	require.NoError(t, err)
	require.True(t, w.Start())
	w.Join()

	assert.Equal(t, Stopped, w.State())
	assert.False(t, ticked.Load())
}

func TestPostRunRunsAfterShutdown(t *testing.T) {
	done := make(chan struct{})
	w, err := NewWorker(WithPostRun(func(*Worker) { close(done) }))
	require.NoError(t, err)
	require.True(t, w.Start())
	w.Shutdown()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PostRun never ran")
	}
	w.Join()
}

func TestExecuteFuncRunsOnOwningThread(t *testing.T) {
	w := newRunningWorker(t)

	result := make(chan *Worker, 1)
	require.True(t, w.ExecuteFunc(func(w *Worker) { result <- w }))

	select {
	case got := <-result:
		assert.Same(t, w, got)
	case <-time.After(2 * time.Second):
		t.Fatal("ExecuteFunc task never ran")
	}
}

func TestCallFuncBlocksUntilDone(t *testing.T) {
	w := newRunningWorker(t)

	var ran atomic.Bool
	ok := w.CallFunc(func(*Worker) { ran.Store(true) })
	require.True(t, ok)
	assert.True(t, ran.Load())
}

func TestCallFuncFromOwningThreadRunsInline(t *testing.T) {
	w := newRunningWorker(t)

	var inner atomic.Bool
	w.CallFunc(func(w *Worker) {
		// Calling CallFunc again from the owning thread must run inline
		// rather than deadlocking waiting on its own loop.
		ok := w.CallFunc(func(*Worker) { inner.Store(true) })
		assert.True(t, ok)
	})
	assert.True(t, inner.Load())
}

func TestPostMessageReachesMessageHandler(t *testing.T) {
	received := make(chan mailbox.Message, 1)
	w := newRunningWorker(t, WithMessageHandler(func(msg mailbox.Message) {
		received <- msg
	}))

	const customID uint32 = 1000
	require.True(t, w.PostMessage(customID, 7, 9))

	select {
	case msg := <-received:
		assert.Equal(t, customID, msg.ID)
		assert.EqualValues(t, 7, msg.Arg1)
		assert.EqualValues(t, 9, msg.Arg2)
	case <-time.After(2 * time.Second):
		t.Fatal("message handler never invoked")
	}
}

func TestDelayedCallFiresAfterDelay(t *testing.T) {
	w := newRunningWorker(t)

	fired := make(chan struct{})
	id := w.DelayedCall(20*time.Millisecond, func(action timerset.Action) bool {
		if action == timerset.EXECUTE {
			close(fired)
		}
		return false
	})
	assert.NotZero(t, id)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed call never fired")
	}
}

func TestDelayedCallPanicsOnNonPositiveDelay(t *testing.T) {
	w := newRunningWorker(t)
	assert.Panics(t, func() {
		w.DelayedCall(0, func(timerset.Action) bool { return false })
	})
}

func TestCancelDelayedCallPreventsExecute(t *testing.T) {
	w := newRunningWorker(t)

	var executed atomic.Bool
	id := w.DelayedCall(200*time.Millisecond, func(timerset.Action) bool {
		executed.Store(true)
		return false
	})

	ok := w.CancelDelayedCall(id)
	assert.True(t, ok)

	time.Sleep(300 * time.Millisecond)
	assert.False(t, executed.Load())
}

func TestCancelDelayedCallFromForeignThreadIsSynchronous(t *testing.T) {
	w := newRunningWorker(t)

	var cancelled atomic.Bool
	id := w.DelayedCall(5*time.Second, func(a timerset.Action) bool {
		if a == timerset.CANCEL {
			cancelled.Store(true)
		}
		return false
	})

	w.CancelDelayedCall(id)
	// Synchronous: by the time CancelDelayedCall returns, CANCEL's
	// side-effect has already run.
	assert.True(t, cancelled.Load())
}

func TestRegisterRejectsDuplicateFD(t *testing.T) {
	w := newRunningWorker(t)

	fds, err := unixPipe()
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	w.CallFunc(func(w *Worker) {
		err := w.Register(fds[0], netpoll.EventRead, funcPollable{fd: fds[0], fn: func(netpoll.Event) {}})
		require.NoError(t, err)

		err = w.Register(fds[0], netpoll.EventRead, funcPollable{fd: fds[0], fn: func(netpoll.Event) {}})
		assert.ErrorIs(t, err, ErrFDRegistered)

		require.NoError(t, w.Unregister(fds[0]))
	})
}

func TestUnregisterUnknownFDReturnsNotFound(t *testing.T) {
	w := newRunningWorker(t)

	w.CallFunc(func(w *Worker) {
		err := w.Unregister(99999)
		assert.ErrorIs(t, err, ErrFDNotFound)
	})
}

func TestLoadIsBoundedWhenIdle(t *testing.T) {
	w := newRunningWorker(t)
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, w.Load(loadmeter.OneSecond), uint8(100))
}

func TestDescriptorCountsTrackRegistrations(t *testing.T) {
	w := newRunningWorker(t)

	fds, err := unixPipe()
	require.NoError(t, err)
	defer unix.Close(fds[1])

	beforeCurrent, beforeTotal := w.DescriptorCounts()

	w.CallFunc(func(w *Worker) {
		require.NoError(t, w.Register(fds[0], netpoll.EventRead, funcPollable{fd: fds[0], fn: func(netpoll.Event) {}}))
	})

	current, total := w.DescriptorCounts()
	assert.Equal(t, beforeCurrent+1, current)
	assert.Equal(t, beforeTotal+1, total)

	w.CallFunc(func(w *Worker) {
		require.NoError(t, w.Unregister(fds[0]))
		unix.Close(fds[0])
	})

	current, _ = w.DescriptorCounts()
	assert.Equal(t, beforeCurrent, current)
}

func TestHandlerPanicIsContainedToOneIteration(t *testing.T) {
	w := newRunningWorker(t)

	fds, err := unixPipe()
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	var calls atomic.Int32
	w.CallFunc(func(w *Worker) {
		_ = w.Register(fds[0], netpoll.EventRead, funcPollable{fd: fds[0], fn: func(netpoll.Event) {
			calls.Add(1)
			panic("boom")
		}})
	})

	unix.Write(fds[1], []byte("x"))
	time.Sleep(100 * time.Millisecond)

	// The worker must still be alive and answering calls after the panic.
	var ran atomic.Bool
	ok := w.CallFunc(func(*Worker) { ran.Store(true) })
	assert.True(t, ok)
	assert.True(t, ran.Load())
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestGetCurrentDuringRun(t *testing.T) {
	w := newRunningWorker(t)

	var seen *Worker
	w.CallFunc(func(*Worker) {
		seen = GetCurrent()
	})
	assert.Same(t, w, seen)
}

func TestGetCurrentOutsideAnyWorkerIsNil(t *testing.T) {
	assert.Nil(t, GetCurrent())
}

func TestConcurrentCallFuncFromManyGoroutines(t *testing.T) {
	w := newRunningWorker(t)

	const n = 50
	var wg sync.WaitGroup
	var counter atomic.Int64
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			w.CallFunc(func(*Worker) { counter.Add(1) })
		}()
	}
	wg.Wait()
	assert.EqualValues(t, n, counter.Load())
}
