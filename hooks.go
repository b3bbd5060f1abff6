// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

// IdleSessionHook is invoked once per loop cycle, after event processing,
// with the id of the worker that just finished a cycle. Zombie/idle
// connection bookkeeping is an external collaborator's concern; the core
// only guarantees this hook is called once per cycle.
type IdleSessionHook func(workerID int)

// ZombieHook is invoked once per loop cycle, immediately after
// IdleSessionHook.
type ZombieHook func(workerID int)

// ModuleLifecycle models per-thread module discovery/init/finish:
// external collaborators that run once when a worker's dedicated goroutine
// starts, and once when it exits.
type ModuleLifecycle interface {
	Init(workerID int) error
	Finish(workerID int)
}

type noopModule struct{}

func (noopModule) Init(int) error  { return nil }
func (noopModule) Finish(int)      {}

// CallbackFunc is the signature a MsgCall message ultimately invokes: the
// registered-callback indirection "Registered-callback messages"
// describes in place of a raw function pointer.
type CallbackFunc func(workerID int, arg uintptr)
