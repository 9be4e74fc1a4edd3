//go:build linux

package netpoll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPollerAddWaitDelete(t *testing.T) {
	p, err := Open()
	require.NoError(t, err)
	defer p.Close()

	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	require.NoError(t, p.Add(r, EventRead))

	ready, err := p.Wait(10 * time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, ready)

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	ready, err = p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, r, ready[0].Fd)
	require.True(t, ready[0].Event.Readable())

	require.NoError(t, p.Delete(r))
	err = p.Delete(r)
	require.Error(t, err)
	require.True(t, IsBenign(CtlDelete, err))
}

func TestEventStringAndPredicates(t *testing.T) {
	e := EventRead | EventHup
	require.True(t, e.Readable())
	require.False(t, e.Writable())
	require.True(t, e.HasHup())
	require.Equal(t, "RH", e.String())
	require.Equal(t, "-", Event(0).String())
}
