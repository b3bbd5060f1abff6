package corewp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	w, err := newWorker(&Pool{opts: loadOptions()}, 0)
	require.NoError(t, err)
	w.setState(Idle) // Post refuses to enqueue onto a Stopped worker
	t.Cleanup(w.destroy)
	return w
}

func TestMessageQueuePostAndDrain(t *testing.T) {
	w := newTestWorker(t)

	ok := w.queue.Post(Message{ID: 42, Arg1: 1, Arg2: 2})
	require.True(t, ok)

	msg, ok := w.queue.pop()
	require.True(t, ok)
	assert.Equal(t, uint32(42), msg.ID)
	assert.EqualValues(t, 1, msg.Arg1)
	assert.EqualValues(t, 2, msg.Arg2)

	_, ok = w.queue.pop()
	assert.False(t, ok, "queue must be empty after the single message is drained")
}

func TestMessageQueueFull(t *testing.T) {
	w := newTestWorker(t)

	for i := 0; i < messageQueueCapacity; i++ {
		require.True(t, w.queue.Post(Message{ID: uint32(i)}))
	}
	assert.False(t, w.queue.Post(Message{ID: 999}), "Post must reject once the ring buffer is full")

	_, ok := w.queue.pop()
	require.True(t, ok)
	assert.True(t, w.queue.Post(Message{ID: 999}), "a freed slot must accept the next Post")
}

func TestMessageQueuePostAfterStopped(t *testing.T) {
	w := newTestWorker(t)
	w.setState(Stopped)

	ok := w.queue.Post(Message{ID: MsgPing})
	assert.False(t, ok, "Post must refuse once the owning worker is Stopped")
}

// TestMessageQueueConcurrentProducers posts from many goroutines at once and
// checks every message the consumer drains is intact: a producer that only
// advances enqueuePos before writing its cell (instead of publishing the
// cell's sequence after the write) would let the consumer observe a stale or
// zero-value Message here.
func TestMessageQueueConcurrentProducers(t *testing.T) {
	w := newTestWorker(t)

	const nProducers = 16
	const perProducer = 32
	const total = nProducers * perProducer

	var wg sync.WaitGroup
	wg.Add(nProducers)
	for p := 0; p < nProducers; p++ {
		p := p
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				msg := Message{ID: uint32(p*perProducer + i), Arg1: uintptr(p), Arg2: uintptr(i)}
				for !w.queue.Post(msg) {
					// ring buffer momentarily full: retry.
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint32]bool, total)
	for i := 0; i < total; i++ {
		msg, ok := w.queue.pop()
		require.True(t, ok, "expected %d messages, got %d", total, i)
		assert.EqualValues(t, msg.Arg1*perProducer+msg.Arg2, msg.ID, "message must not be torn or stale")
		assert.False(t, seen[msg.ID], "message id %d observed twice", msg.ID)
		seen[msg.ID] = true
	}
	_, ok := w.queue.pop()
	assert.False(t, ok, "queue must be empty after draining every posted message")
}

func TestMessageQueueDrainDispatchesThroughHandleMessage(t *testing.T) {
	w := newTestWorker(t)

	var called bool
	id := w.pool.RegisterCallback(func(workerID int, arg uintptr) {
		called = true
		assert.Equal(t, w.id, workerID)
		assert.EqualValues(t, 7, arg)
	})

	require.True(t, w.PostMessage(MsgCall, uintptr(id), 7))
	w.queue.drain(w.id)
	assert.True(t, called)
}
