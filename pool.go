// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package corewp implements the core worker-pool and event-dispatch
// subsystem of a multi-threaded network proxy: a fixed pool of symmetric
// workers, each driving a private edge-triggered pollset plus a shared
// level-triggered listener pollset, an adaptive spin-then-block loop, a
// lock-free per-worker message channel, and pool-wide statistics
// aggregation.
package corewp

import (
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/panlibin/corewp/errs"
	"github.com/panlibin/corewp/internal/gid"
	"github.com/panlibin/corewp/internal/logging"
	"github.com/panlibin/corewp/internal/netpoll"
)

func currentGoroutineKey() int64 { return gid.Get() }

// statsFanoutThreshold is the worker count above which GetStatistics fans
// per-worker snapshotting out across a bounded goroutine pool instead of
// walking workers on the caller's own goroutine.
const statsFanoutThreshold = 8

// Pool is the process-wide worker-pool state. There is exactly one Pool
// per process, exposed through
// the package-level functions (Init, Start, Join, Finish, Shutdown,
// ShutdownAll, BroadcastMessage, GetStatistics, ...); Pool itself is
// exported so tests can run multiple independent pools.
type Pool struct {
	mu          sync.RWMutex
	initialized atomic.Bool

	opts    *Options
	workers []*Worker
	shared  *sharedListener
	group   *errgroup.Group

	currentWorkers sync.Map // int64 (goroutine id) -> *Worker

	callbacks      sync.Map // uint32 -> CallbackFunc
	nextCallbackID atomic.Uint32

	statsPool *ants.Pool
}

var defaultPool = &Pool{}

// Init creates the shared listener pollset and N workers. It is
// idempotent-guarded: calling it twice without an intervening Finish
// returns errs.ErrPoolAlreadyInitialized.
func Init(opts ...Option) error { return defaultPool.Init(opts...) }

// Init is the Pool method backing the package-level Init.
func (p *Pool) Init(opts ...Option) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized.Load() {
		return errs.ErrPoolAlreadyInitialized
	}

	o := loadOptions(opts...)
	if o.ThreadCount <= 0 {
		return errs.Wrap(errs.ErrPoolNotInitialized, "corewp: ThreadCount must be > 0")
	}

	shared, err := newSharedListener()
	if err != nil {
		return errs.Wrap(err, "corewp: create shared listener pollset")
	}

	workers := make([]*Worker, 0, o.ThreadCount)
	for id := 0; id < o.ThreadCount; id++ {
		w, werr := newWorker(p, id)
		if werr != nil {
			for i := len(workers) - 1; i >= 0; i-- {
				workers[i].destroy()
			}
			_ = shared.close()
			return errs.Wrap(werr, "corewp: create worker")
		}
		if aerr := w.AddFd(shared.fd(), netpoll.EventRead, &PollData{
			Kind:     KindSharedListenerProxy,
			WorkerID: id,
		}); aerr != nil {
			w.destroy()
			for i := len(workers) - 1; i >= 0; i-- {
				workers[i].destroy()
			}
			_ = shared.close()
			return errs.Wrap(aerr, "corewp: register shared listener proxy descriptor")
		}
		workers = append(workers, w)
	}

	var statsPool *ants.Pool
	if o.ThreadCount > statsFanoutThreshold {
		statsPool, err = ants.NewPool(statsFanoutThreshold, ants.WithNonblocking(false))
		if err != nil {
			for i := len(workers) - 1; i >= 0; i-- {
				workers[i].destroy()
			}
			_ = shared.close()
			return errs.Wrap(err, "corewp: create statistics fan-out pool")
		}
	}

	p.opts = o
	p.shared = shared
	p.workers = workers
	p.statsPool = statsPool
	p.initialized.Store(true)
	return nil
}

// Start spawns each worker's dedicated goroutine.
func Start() error { return defaultPool.Start() }

// Start is the Pool method backing the package-level Start.
func (p *Pool) Start() error {
	if !p.initialized.Load() {
		return errs.ErrPoolNotInitialized
	}
	p.mu.RLock()
	workers := p.workers
	p.mu.RUnlock()

	var g errgroup.Group
	for _, w := range workers {
		w := w
		w.started.Store(true)
		w.setState(Idle)
		g.Go(func() error {
			w.run()
			return nil
		})
	}
	p.mu.Lock()
	p.group = &g
	p.mu.Unlock()
	return nil
}

// Join blocks until every worker goroutine has returned.
func Join() error { return defaultPool.Join() }

// Join is the Pool method backing the package-level Join.
func (p *Pool) Join() error {
	p.mu.RLock()
	g := p.group
	p.mu.RUnlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Finish joins every worker goroutine (if not already joined), destroys
// each worker, closes the shared listener pollset, and clears the
// pool-initialized flag so Init can be called again.
func Finish() error { return defaultPool.Finish() }

// Finish is the Pool method backing the package-level Finish.
func (p *Pool) Finish() error {
	if !p.initialized.Load() {
		return errs.ErrPoolNotInitialized
	}
	if err := p.Join(); err != nil {
		logging.Errorf("corewp: join during finish: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.workers {
		w.destroy()
	}
	if err := p.shared.close(); err != nil {
		logging.Errorf("corewp: close shared listener pollset: %v", err)
	}
	if p.statsPool != nil {
		p.statsPool.Release()
	}
	p.workers = nil
	p.shared = nil
	p.group = nil
	p.opts = nil
	p.statsPool = nil
	p.callbacks = sync.Map{}
	p.currentWorkers = sync.Map{}
	p.initialized.Store(false)
	// Sync's return is ignored: stderr/console sinks routinely report
	// ENOTTY/EINVAL on flush and there is nothing left to do about it here.
	_ = logging.Sync()
	return nil
}

// Shutdown posts at most one MsgShutdown to worker id. Signal-safe.
func Shutdown(id int) error { return defaultPool.Shutdown(id) }

// Shutdown is the Pool method backing the package-level Shutdown.
func (p *Pool) Shutdown(id int) error {
	w, err := p.GetWorker(id)
	if err != nil {
		return err
	}
	w.requestShutdown()
	return nil
}

// ShutdownAll posts at most one MsgShutdown to every worker and returns the
// number of workers that existed at call time. Signal-safe: it only reads
// the immutable p.workers slice, established once at Init and never
// resized.
func ShutdownAll() int { return defaultPool.ShutdownAll() }

// ShutdownAll is the Pool method backing the package-level ShutdownAll.
func (p *Pool) ShutdownAll() int {
	if !p.initialized.Load() {
		return 0
	}
	workers := p.workers
	for _, w := range workers {
		w.requestShutdown()
	}
	return len(workers)
}

// BroadcastMessage posts (id, a1, a2) to every worker and returns the count
// that accepted the post. Signal-safe.
func BroadcastMessage(id uint32, a1, a2 uintptr) int {
	return defaultPool.BroadcastMessage(id, a1, a2)
}

// BroadcastMessage is the Pool method backing the package-level BroadcastMessage.
func (p *Pool) BroadcastMessage(id uint32, a1, a2 uintptr) int {
	if !p.initialized.Load() {
		return 0
	}
	n := 0
	for _, w := range p.workers {
		if w.PostMessage(id, a1, a2) {
			n++
		}
	}
	return n
}

// GetWorker looks up a worker by id.
func GetWorker(id int) (*Worker, error) { return defaultPool.GetWorker(id) }

// GetWorker is the Pool method backing the package-level GetWorker.
func (p *Pool) GetWorker(id int) (*Worker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if id < 0 || id >= len(p.workers) {
		return nil, errs.ErrInvalidWorkerID
	}
	return p.workers[id], nil
}

// CurrentWorker returns the Worker owning the calling goroutine's dedicated
// OS thread, or nil if the caller is not a worker.
func CurrentWorker() *Worker { return defaultPool.CurrentWorker() }

// CurrentWorker is the Pool method backing the package-level CurrentWorker.
func (p *Pool) CurrentWorker() *Worker {
	v, ok := p.currentWorkers.Load(currentGoroutineKey())
	if !ok {
		return nil
	}
	return v.(*Worker)
}

// CurrentWorkerID returns CurrentWorker().ID(), or -1 if the caller is not a
// worker.
func CurrentWorkerID() int { return defaultPool.CurrentWorkerID() }

// CurrentWorkerID is the Pool method backing the package-level CurrentWorkerID.
func (p *Pool) CurrentWorkerID() int {
	w := p.CurrentWorker()
	if w == nil {
		return -1
	}
	return w.ID()
}

// RegisterCallback registers fn and returns an id suitable for a MsgCall's
// Arg1.
func RegisterCallback(fn CallbackFunc) uint32 { return defaultPool.RegisterCallback(fn) }

// RegisterCallback is the Pool method backing the package-level RegisterCallback.
func (p *Pool) RegisterCallback(fn CallbackFunc) uint32 {
	id := p.nextCallbackID.Inc()
	p.callbacks.Store(id, fn)
	return id
}

func (p *Pool) lookupCallback(id uint32) (CallbackFunc, bool) {
	v, ok := p.callbacks.Load(id)
	if !ok {
		return nil, false
	}
	return v.(CallbackFunc), true
}

func (p *Pool) sharedPoller() *netpoll.Poller {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.shared == nil {
		return nil
	}
	return p.shared.poller
}

func (p *Pool) sharedListenerPollData(fd int) (*PollData, bool) {
	p.mu.RLock()
	sl := p.shared
	p.mu.RUnlock()
	if sl == nil {
		return nil, false
	}
	return sl.pollData(fd)
}
