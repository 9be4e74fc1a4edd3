package listener

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/panlibin/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestWorker(t *testing.T) *reactor.Worker {
	t.Helper()
	w, err := reactor.NewWorker()
	require.NoError(t, err)
	return w
}

func TestPoolRoundRobinCyclesInOrder(t *testing.T) {
	w1, w2, w3 := newTestWorker(t), newTestWorker(t), newTestWorker(t)
	pool := NewPool([]*reactor.Worker{w1, w2, w3})

	got := make([]*reactor.Worker, 7)
	for i := range got {
		got[i] = pool.next()
	}

	want := []*reactor.Worker{w1, w2, w3, w1, w2, w3, w1}
	assert.Equal(t, want, got)
}

type recordingHandler struct {
	mu     sync.Mutex
	chunks [][]byte
	closed chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closed: make(chan struct{})}
}

func (h *recordingHandler) OnData(_ *Conn, data []byte) {
	h.mu.Lock()
	cp := append([]byte(nil), data...)
	h.chunks = append(h.chunks, cp)
	h.mu.Unlock()
}

func (h *recordingHandler) OnClose(_ *Conn, _ error) {
	close(h.closed)
}

func TestListenerAcceptsAndHandsOffToPoolMember(t *testing.T) {
	acceptor := newTestWorker(t)
	target := newTestWorker(t)
	pool := NewPool([]*reactor.Worker{target})

	handler := newRecordingHandler()
	accepted := make(chan int, 1)

	ln, err := New("tcp", "127.0.0.1:0", pool, func(w *reactor.Worker, fd int, _ unix.Sockaddr) {
		conn := NewConn(w, fd, handler)
		require.NoError(t, w.Register(fd, unix.EPOLLIN, conn))
		accepted <- fd
	})
	require.NoError(t, err)

	require.NoError(t, acceptor.Register(ln.PollFD(), unix.EPOLLIN, ln))

	acceptor.Start()
	target.Start()
	defer func() {
		acceptor.Shutdown()
		target.Shutdown()
		acceptor.Join()
		target.Join()
	}()

	cli, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer cli.Close()

	_, err = cli.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("connection was never accepted")
	}

	require.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.chunks) > 0
	}, time.Second, 5*time.Millisecond)

	handler.mu.Lock()
	assert.Equal(t, []byte("hello"), handler.chunks[0])
	handler.mu.Unlock()
}
