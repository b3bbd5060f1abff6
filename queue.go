// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

import (
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/panlibin/corewp/errs"
	"github.com/panlibin/corewp/internal/netpoll"
)

// messageQueueCapacity is the fixed ring-buffer size backing every
// MessageQueue; Post returns false once it is exhausted rather than
// growing or blocking.
const messageQueueCapacity = 1024

// queueCell is one ring-buffer slot plus the sequence number that tells a
// producer or the consumer whether the slot is theirs to touch yet. This is
// Dmitry Vyukov's bounded MPMC queue design, specialized to one consumer:
// sequence == pos means a producer may claim the slot, sequence == pos+1
// means the consumer may read it back. A raw head/tail pair without this
// per-slot handshake lets a consumer observe an advanced head before the
// producer that reserved it has finished writing buf, reading a stale or
// torn Message.
type queueCell struct {
	sequence atomic.Uint64
	data     Message
}

// MessageQueue is the per-worker MPSC control channel posted control
// messages travel over. It is a preallocated ring buffer of queueCell so
// Post never allocates, never locks, and never logs — safe to call from a
// signal handler or any other goroutine.
//
// Wake-up reuses the classic self-pipe trick: a pipe whose read end is
// registered, edge-triggered, on the owning worker's private pollset. This
// keeps the wake mechanism identical across epoll and kqueue, unlike a
// platform-specific eventfd/EVFILT_USER split.
type MessageQueue struct {
	owner *Worker // non-owning; the worker outlives the queue by construction

	cells      [messageQueueCapacity]queueCell
	enqueuePos atomic.Uint64 // next slot a producer attempts to claim
	dequeuePos atomic.Uint64 // next slot the consumer attempts to claim

	readFD, writeFD int
	closed          atomic.Bool
}

func newMessageQueue(owner *Worker) (*MessageQueue, error) {
	readFD, writeFD, err := netpoll.NewWakePipe()
	if err != nil {
		return nil, errs.Wrap(err, "corewp: create message queue wake pipe")
	}
	q := &MessageQueue{
		owner:   owner,
		readFD:  readFD,
		writeFD: writeFD,
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q, nil
}

// addToWorker registers the queue's wake descriptor on w's private pollset
// as edge-triggered readable, with a KindQueue PollData.
func (q *MessageQueue) addToWorker(w *Worker) error {
	return w.AddFd(q.readFD, netpoll.EventRead, &PollData{
		Kind:    KindQueue,
		Handler: q.onReadable,
	})
}

// onReadable is the Handler bound to the queue's wake descriptor: it drains
// the wake pipe, then drains every currently-available message, invoking
// handleMessage on the owning worker for each.
func (q *MessageQueue) onReadable(_ *PollData, workerID int, _ uint32) Action {
	var scratch [64]byte
	for {
		_, err := unix.Read(q.readFD, scratch[:])
		if err != nil {
			break
		}
	}
	q.drain(workerID)
	return ActionNop
}

// drain invokes handleMessage for every message currently enqueued; called
// both from onReadable (wake path) and once per loop cycle to bound message
// latency to one cycle.
func (q *MessageQueue) drain(workerID int) {
	for {
		msg, ok := q.pop()
		if !ok {
			return
		}
		q.owner.handleMessage(msg)
	}
}

// Post enqueues msg and wakes the owning worker. Safe to call from any
// goroutine; does not allocate or lock on the fast path.
func (q *MessageQueue) Post(msg Message) bool {
	if q.owner.State() == Stopped {
		return false
	}
	pos := q.enqueuePos.Load()
	for {
		cell := &q.cells[pos%messageQueueCapacity]
		seq := cell.sequence.Load()
		switch diff := int64(seq) - int64(pos); {
		case diff == 0:
			if q.enqueuePos.CompareAndSwap(pos, pos+1) {
				cell.data = msg
				cell.sequence.Store(pos + 1)
				q.wake()
				return true
			}
			pos = q.enqueuePos.Load()
		case diff < 0:
			return false // ring buffer full, caller inspects the bool
		default:
			pos = q.enqueuePos.Load()
		}
	}
}

func (q *MessageQueue) pop() (Message, bool) {
	pos := q.dequeuePos.Load()
	for {
		cell := &q.cells[pos%messageQueueCapacity]
		seq := cell.sequence.Load()
		switch diff := int64(seq) - int64(pos+1); {
		case diff == 0:
			if q.dequeuePos.CompareAndSwap(pos, pos+1) {
				msg := cell.data
				cell.sequence.Store(pos + messageQueueCapacity)
				return msg, true
			}
			pos = q.dequeuePos.Load()
		case diff < 0:
			return Message{}, false // ring buffer empty
		default:
			pos = q.dequeuePos.Load()
		}
	}
}

// wake writes a single byte to the pipe, coalescing with any pending wake
// already sitting in the pipe buffer. A failed write is not logged, so the
// post path stays free of logging; the message itself is already enqueued
// and the owner drains the queue once per loop cycle regardless.
func (q *MessageQueue) wake() {
	_, _ = unix.Write(q.writeFD, []byte{1})
}

// close releases the wake pipe; called from Worker teardown after Join.
func (q *MessageQueue) close() {
	if q.closed.CompareAndSwap(false, true) {
		_ = unix.Close(q.readFD)
		_ = unix.Close(q.writeFD)
	}
}
