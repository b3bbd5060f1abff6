package corewp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestPoolInitFinishInit(t *testing.T) {
	p := &Pool{}
	require.NoError(t, p.Init(WithThreadCount(2)))
	require.NoError(t, p.Finish())
	require.NoError(t, p.Init(WithThreadCount(2)))
	require.NoError(t, p.Finish())
}

func TestPoolInitTwiceFails(t *testing.T) {
	p := &Pool{}
	require.NoError(t, p.Init(WithThreadCount(1)))
	defer p.Finish()

	err := p.Init(WithThreadCount(1))
	assert.Error(t, err)
}

func TestPoolBroadcastMessageReturnsWorkerCount(t *testing.T) {
	p := &Pool{}
	require.NoError(t, p.Init(WithThreadCount(3)))
	require.NoError(t, p.Start())

	n := p.BroadcastMessage(MsgPing, 0, NewPingPayload("broadcast"))
	assert.Equal(t, 3, n)

	assert.Equal(t, 3, p.ShutdownAll())
	require.NoError(t, p.Join())
	require.NoError(t, p.Finish())
}

func TestPoolGetWorkerInvalidID(t *testing.T) {
	p := &Pool{}
	require.NoError(t, p.Init(WithThreadCount(1)))
	defer p.Finish()

	_, err := p.GetWorker(5)
	assert.Error(t, err)

	w, err := p.GetWorker(0)
	require.NoError(t, err)
	assert.Equal(t, 0, w.ID())
}

func TestPoolCurrentWorkerInsideRunningWorker(t *testing.T) {
	seen := make(chan int, 8)

	p := &Pool{}
	require.NoError(t, p.Init(
		WithThreadCount(1),
		WithIdleSessionHook(func(workerID int) {
			select {
			case seen <- p.CurrentWorkerID():
			default:
			}
		}),
	))
	require.NoError(t, p.Start())

	select {
	case id := <-seen:
		assert.Equal(t, 0, id, "CurrentWorkerID must resolve to the worker whose goroutine is running")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the worker's idle hook to fire")
	}

	assert.Equal(t, -1, p.CurrentWorkerID(), "the test goroutine itself is not a worker")

	p.ShutdownAll()
	require.NoError(t, p.Join())
	require.NoError(t, p.Finish())
}

func TestPoolShutdownTwiceEnqueuesAtMostOnce(t *testing.T) {
	p := &Pool{}
	require.NoError(t, p.Init(WithThreadCount(1)))
	require.NoError(t, p.Start())

	w, err := p.GetWorker(0)
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(0))
	require.NoError(t, p.Shutdown(0))

	require.NoError(t, p.Join())
	assert.Equal(t, Stopped, w.State())
	require.NoError(t, p.Finish())
}

func TestPoolRegisterCallbackInvokedViaMsgCall(t *testing.T) {
	p := &Pool{}
	require.NoError(t, p.Init(WithThreadCount(1)))
	require.NoError(t, p.Start())

	done := make(chan uintptr, 1)
	id := p.RegisterCallback(func(workerID int, arg uintptr) {
		done <- arg
	})

	w, err := p.GetWorker(0)
	require.NoError(t, err)
	require.True(t, w.PostMessage(MsgCall, uintptr(id), 123))

	select {
	case arg := <-done:
		assert.EqualValues(t, 123, arg)
	case <-time.After(2 * time.Second):
		t.Fatal("registered callback was never invoked")
	}

	p.ShutdownAll()
	require.NoError(t, p.Join())
	require.NoError(t, p.Finish())
}

// TestPoolAcceptFanOut exercises the shared-listener fan-out path end to
// end: a single SO_REUSEPORT listener is registered on the pool-wide shared
// pollset, two workers run concurrently, and a batch of client connections
// opened serially must be observed across both workers with their per-worker
// accept counts summing to the total dialed.
func TestPoolAcceptFanOut(t *testing.T) {
	p := &Pool{}
	require.NoError(t, p.Init(WithThreadCount(2)))
	require.NoError(t, p.Start())
	defer func() {
		p.ShutdownAll()
		require.NoError(t, p.Join())
		require.NoError(t, p.Finish())
	}()

	fd, ln, err := ListenSharedFd("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	tl := ln.(*net.TCPListener)
	const totalConns = 100
	var accepted atomic.Int64

	err = p.AddSharedFd(fd, 0, &PollData{
		Kind: KindConn,
		Handler: func(pdata *PollData, workerID int, events uint32) Action {
			// Two workers race to service the same shared-listener
			// readiness event; a short deadline keeps a loser's Accept
			// from blocking its worker goroutine indefinitely.
			_ = tl.SetDeadline(time.Now().Add(200 * time.Millisecond))
			conn, acceptErr := tl.Accept()
			if acceptErr != nil {
				return ActionNop
			}
			_ = conn.Close()
			accepted.Add(1)
			return ActionAccept
		},
	})
	require.NoError(t, err)

	for i := 0; i < totalConns; i++ {
		conn, dialErr := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, dialErr)
		_ = conn.Close()
	}

	require.Eventually(t, func() bool {
		return accepted.Load() == totalConns
	}, 5*time.Second, 10*time.Millisecond, "all dialed connections must eventually be accepted")

	w0, err := p.GetWorker(0)
	require.NoError(t, err)
	w1, err := p.GetWorker(1)
	require.NoError(t, err)

	n0 := w0.Stats.NAccept.Load()
	n1 := w1.Stats.NAccept.Load()
	assert.Greater(t, n0, uint64(0), "worker 0 must observe at least one accept")
	assert.Greater(t, n1, uint64(0), "worker 1 must observe at least one accept")
	assert.EqualValues(t, totalConns, n0+n1, "accept counts across both workers must sum to the total dialed connections")
}
