// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

// Action is the bitmask a Handler returns describing which classes of
// action it performed while servicing one readiness event; the core only
// uses it for statistics.
type Action uint8

// Action bits, any OR of which a Handler may return.
const (
	ActionNop    Action = 0
	ActionAccept Action = 1 << 0
	ActionRead   Action = 1 << 1
	ActionWrite  Action = 1 << 2
	ActionHup    Action = 1 << 3
	ActionError  Action = 1 << 4
)

// Kind tags which variant of PollData is registered, used to dispatch
// without address-arithmetic downcasting.
type Kind uint8

const (
	// KindConn tags a per-connection descriptor owned by a protocol
	// handler external to this package.
	KindConn Kind = iota
	// KindQueue tags a worker's own MessageQueue wake descriptor.
	KindQueue
	// KindSharedListenerProxy tags the single descriptor, registered in
	// every worker's private pollset, standing in for the shared listener
	// pollset.
	KindSharedListenerProxy
)

// Handler is the callback every registered descriptor carries. pdata is the
// PollData the descriptor was registered with, workerID identifies which
// worker observed the event, and events carries the pollset-reported
// readiness bits (netpoll.EventRead/EventWrite/EventHup/EventErr, plus
// nothing else: the edge/level distinction is a registration-time property,
// not something the handler observes). The returned Action is used only for
// statistics; handlers are responsible for their own error handling and must
// not propagate panics (the worker loop recovers, logs, and counts
// ActionError on their behalf).
type Handler func(pdata *PollData, workerID int, events uint32) Action

// PollData is the opaque attachment bound to every descriptor registered
// with any pollset. Its lifetime is owned by the caller of AddFd/AddSharedFd;
// the pollset only borrows it while the descriptor remains registered and
// guarantees it is never dereferenced after a successful Remove on the
// owning goroutine.
type PollData struct {
	Kind Kind
	// Handler dispatches readiness events observed on the descriptor this
	// PollData is attached to.
	Handler Handler
	// WorkerID is an informational hint, populated only for
	// KindSharedListenerProxy (which worker's inner poll to run); left zero
	// for KindConn/KindQueue.
	WorkerID int
}
