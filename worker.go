// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

import (
	"runtime"
	"sync"

	"go.uber.org/atomic"

	"github.com/panlibin/corewp/errs"
	"github.com/panlibin/corewp/internal/gid"
	"github.com/panlibin/corewp/internal/logging"
	"github.com/panlibin/corewp/internal/netpoll"
)

// State is a Worker's position in the lifecycle state machine:
// Stopped -> Idle -> Polling -> Processing -> ZProcessing -> Idle -> ... -> Stopped.
type State int32

const (
	Stopped State = iota
	Idle
	Polling
	Processing
	ZProcessing
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Processing:
		return "processing"
	case ZProcessing:
		return "zprocessing"
	default:
		return "unknown"
	}
}

// Worker owns one private pollset, one MessageQueue, and one dedicated
// goroutine. Exactly one Worker exists per id in [0, N).
type Worker struct {
	id     int
	pool   *Pool
	poller *netpoll.Poller
	queue  *MessageQueue

	mu    sync.Mutex
	conns map[int]*PollData

	state             atomic.Int32
	started           atomic.Bool
	shouldShutdown    atomic.Bool
	shutdownInitiated atomic.Bool

	Stats Statistics

	zeroStreak  int
	timeoutBias int
	pending     []pendingEvent
}

func newWorker(pool *Pool, id int) (*Worker, error) {
	poller, err := netpoll.OpenPoller()
	if err != nil {
		return nil, errs.Wrap(err, "corewp: open worker poller")
	}
	w := &Worker{
		id:          id,
		pool:        pool,
		poller:      poller,
		conns:       make(map[int]*PollData),
		timeoutBias: 1,
	}
	w.state.Store(int32(Stopped))

	queue, err := newMessageQueue(w)
	if err != nil {
		_ = poller.Close()
		return nil, err
	}
	w.queue = queue
	if err := queue.addToWorker(w); err != nil {
		_ = poller.Close()
		return nil, err
	}
	return w, nil
}

// ID returns the worker's id in [0, N).
func (w *Worker) ID() int { return w.id }

// State returns the worker's current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

// PostMessage enqueues a control message for this worker. Safe to call from
// any goroutine, including one reached from a notified OS signal.
func (w *Worker) PostMessage(id uint32, a1, a2 uintptr) bool {
	return w.queue.Post(Message{ID: id, Arg1: a1, Arg2: a2})
}

// handleMessage dispatches one drained message. Unknown ids are
// logged and ignored.
func (w *Worker) handleMessage(msg Message) {
	switch msg.ID {
	case MsgPing:
		if s, ok := PingPayload(msg.Arg2); ok {
			logging.Infof("Worker[%d]: %s.", w.id, s)
		}
		ReleasePingPayload(msg.Arg2)
	case MsgShutdown:
		w.shouldShutdown.Store(true)
	case MsgCall:
		fn, ok := w.pool.lookupCallback(uint32(msg.Arg1))
		if !ok {
			logging.Errorf("Worker[%d]: %v: callback id %d", w.id, errs.ErrUnknownCallback, msg.Arg1)
			return
		}
		fn(w.id, msg.Arg2)
	default:
		logging.Errorf("Worker[%d]: unknown message id %d", w.id, msg.ID)
	}
}

// requestShutdown posts at most one MsgShutdown to this worker. If the post
// is rejected, shutdownInitiated is cleared again so the next call retries.
func (w *Worker) requestShutdown() {
	if w.shutdownInitiated.CompareAndSwap(false, true) {
		if !w.PostMessage(MsgShutdown, 0, 0) {
			w.shutdownInitiated.Store(false)
		}
	}
}

// AddFd registers fd on this worker's private pollset, forced
// edge-triggered. events is any OR of netpoll.EventRead /
// netpoll.EventWrite describing which readiness classes the caller wants.
func (w *Worker) AddFd(fd int, events uint32, pdata *PollData) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.conns[fd]; exists {
		logging.Errorf("Worker[%d]: fd %d already registered", w.id, fd)
		return errs.ErrFDExists
	}
	var err error
	if events&netpoll.EventWrite != 0 {
		err = w.poller.AddReadWriteET(fd)
	} else {
		err = w.poller.AddReadET(fd)
	}
	if err != nil {
		return w.resolveAddError(fd, err)
	}
	w.conns[fd] = pdata
	return nil
}

// RemoveFd unregisters fd from this worker's private pollset.
func (w *Worker) RemoveFd(fd int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.conns[fd]; !exists {
		logging.Errorf("Worker[%d]: fd %d not registered", w.id, fd)
		return errs.ErrFDNotFound
	}
	if err := w.poller.Delete(fd); err != nil {
		return w.resolveRemoveError(fd, err)
	}
	delete(w.conns, fd)
	return nil
}

// resolveAddError implements the fatal/benign split for pollset add
// failures.
func (w *Worker) resolveAddError(fd int, err error) error {
	switch {
	case isErrno(err, errnoEEXIST):
		logging.Errorf("Worker[%d]: EEXIST adding fd %d", w.id, fd)
		return errs.ErrFDExists
	case isErrno(err, errnoENOSPC):
		logging.Errorf("Worker[%d]: ENOSPC adding fd %d: pollset exhausted", w.id, fd)
		return errs.ErrNoSpace
	default:
		logging.Fatalf("Worker[%d]: fatal pollset error adding fd %d: %v", w.id, fd, err)
		return err // unreachable: Fatalf exits the process
	}
}

// resolveRemoveError implements the fatal/benign split for pollset
// remove failures.
func (w *Worker) resolveRemoveError(fd int, err error) error {
	switch {
	case isErrno(err, errnoENOENT):
		logging.Errorf("Worker[%d]: ENOENT removing fd %d", w.id, fd)
		return errs.ErrFDNotFound
	default:
		logging.Fatalf("Worker[%d]: fatal pollset error removing fd %d: %v", w.id, fd, err)
		return err // unreachable: Fatalf exits the process
	}
}

// run is the goroutine entry point spawned by Pool.Start: lock the
// OS thread, register for current-worker lookup, run per-thread module
// init, drive the loop, run per-thread module finish, unlock.
func (w *Worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	key := gid.Get()
	w.pool.currentWorkers.Store(key, w)
	defer w.pool.currentWorkers.Delete(key)

	if err := w.pool.opts.Module.Init(w.id); err != nil {
		logging.Errorf("Worker[%d]: module init failed, exiting without running loop: %v", w.id, err)
		return
	}
	defer w.pool.opts.Module.Finish(w.id)

	w.loop()
}

// loop drives the adaptive spin-then-block event loop until
// shouldShutdown is observed.
func (w *Worker) loop() {
	defer w.setState(Stopped)

	for {
		if w.shouldShutdown.Load() {
			return
		}

		w.setState(Polling)
		w.Stats.NPolls.Inc()

		nfds, _ := w.poll()

		w.setState(Processing)
		w.processEvents(nfds)

		w.pool.opts.IdleSessionHook(w.id)

		w.setState(ZProcessing)
		w.pool.opts.ZombieHook(w.id)

		w.queue.drain(w.id)

		w.setState(Idle)
		if w.shouldShutdown.Load() {
			return
		}
	}
}

// pendingEvent is one ready descriptor captured during poll(), deferred to
// processEvents so qtime is measured from a single, shared
// cycleStart snapshot.
type pendingEvent struct {
	fd     int
	events uint32
}

func (w *Worker) poll() (nfds int, blocking bool) {
	w.pending = w.pending[:0]
	n, err := w.poller.Polling(0, func(fd int, events uint32) {
		w.pending = append(w.pending, pendingEvent{fd, events})
	})
	if err != nil {
		logging.Errorf("Worker[%d]: poll wait failed: %v", w.id, err)
		n = 0
	}

	if n == 0 {
		w.zeroStreak++
		if w.zeroStreak > w.pool.opts.NBPolls {
			if w.timeoutBias < 10 {
				w.timeoutBias++
			}
			timeoutMS := (w.pool.opts.PollSleep * w.timeoutBias) / 10
			w.Stats.BlockingPolls.Inc()
			blocking = true
			n, err = w.poller.Polling(timeoutMS, func(fd int, events uint32) {
				w.pending = append(w.pending, pendingEvent{fd, events})
			})
			if err != nil {
				logging.Errorf("Worker[%d]: blocking poll wait failed: %v", w.id, err)
				n = 0
			}
			if n > 0 {
				w.timeoutBias = 1
				w.zeroStreak = 0
			}
		}
	} else {
		w.zeroStreak = 0
		w.timeoutBias = 1
	}

	w.Stats.recordPollResult(n, blocking)
	return n, blocking
}

func (w *Worker) processEvents(nfds int) {
	if nfds == 0 {
		return
	}
	cycleStart := monotonicTick()
	for _, pev := range w.pending {
		qtime := monotonicTick() - cycleStart
		w.Stats.recordQTime(qtime)

		handlerStart := monotonicTick()
		action := w.dispatch(pev.fd, pev.events)
		w.Stats.recordAction(action)

		exec := monotonicTick() - handlerStart
		w.Stats.recordExecTime(exec)
	}
}

// dispatch looks up fd's PollData and routes on its Kind: the shared
// listener proxy descriptor gets one inner shared-pollset poll, everything
// else invokes its own Handler directly. Panics from either path are
// recovered into ActionError.
func (w *Worker) dispatch(fd int, events uint32) (action Action) {
	w.mu.Lock()
	pdata, ok := w.conns[fd]
	w.mu.Unlock()
	if !ok {
		return ActionNop
	}

	if pdata.Kind == KindSharedListenerProxy {
		return w.pollSharedListenerOnce()
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("Worker[%d]: handler panic on fd %d: %v", w.id, fd, r)
			action = ActionError
		}
	}()
	return pdata.Handler(pdata, w.id, events)
}

// pollSharedListenerOnce implements "Shared-listener fan-out": one
// inner nonblocking poll on the shared set, at most one event extracted and
// dispatched.
func (w *Worker) pollSharedListenerOnce() (action Action) {
	shared := w.pool.sharedPoller()
	if shared == nil {
		return ActionNop
	}

	var gotFD int = -1
	var gotEvents uint32
	_, err := shared.Polling(0, func(fd int, events uint32) {
		if gotFD == -1 {
			gotFD, gotEvents = fd, events
		}
	})
	if err != nil {
		logging.Errorf("Worker[%d]: shared listener poll failed: %v", w.id, err)
		return ActionNop
	}
	if gotFD == -1 {
		return ActionNop
	}

	pdata, ok := w.pool.sharedListenerPollData(gotFD)
	if !ok {
		return ActionNop
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("Worker[%d]: shared listener handler panic on fd %d: %v", w.id, gotFD, r)
			action = ActionError
		}
	}()
	return pdata.Handler(pdata, w.id, gotEvents)
}

// destroy closes the worker's poller and message queue. Called only after
// Join.
func (w *Worker) destroy() {
	w.queue.close()
	_ = w.poller.Close()
}
