// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

import (
	"sync"

	"github.com/panlibin/corewp/internal/netpoll"
)

// sharedListener is the pool-wide, level-triggered pollset for
// listening sockets only, registered once and fanned out to every
// worker as a single nested-pollset descriptor.
//
// The shared pollset's own fd is itself pollable: adding poller.fd to a
// worker's private (edge-triggered) pollset is the idiomatic Go analogue of
// the "register the shared listener pollset as a descriptor" requirement —
// both epoll and kqueue support this nesting, and a nonempty inner pollset
// reports its outer descriptor readable.
type sharedListener struct {
	poller *netpoll.Poller

	mu    sync.Mutex
	conns map[int]*PollData
}

func newSharedListener() (*sharedListener, error) {
	poller, err := netpoll.OpenPoller()
	if err != nil {
		return nil, err
	}
	return &sharedListener{poller: poller, conns: make(map[int]*PollData)}, nil
}

func (sl *sharedListener) fd() int { return sl.poller.FD() }

func (sl *sharedListener) close() error {
	return sl.poller.Close()
}

// addFd implements package-level AddSharedFd: level-triggered, for
// listening sockets only.
func (sl *sharedListener) addFd(fd int, events uint32, pdata *PollData) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if _, exists := sl.conns[fd]; exists {
		return errFDExistsLogged(fd)
	}
	if err := sl.poller.AddRead(fd); err != nil {
		return resolveSharedAddError(fd, err)
	}
	sl.conns[fd] = pdata
	return nil
}

// removeFd implements package-level RemoveSharedFd.
func (sl *sharedListener) removeFd(fd int) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if _, exists := sl.conns[fd]; !exists {
		return errFDNotFoundLogged(fd)
	}
	if err := sl.poller.Delete(fd); err != nil {
		return resolveSharedRemoveError(fd, err)
	}
	delete(sl.conns, fd)
	return nil
}

func (sl *sharedListener) pollData(fd int) (*PollData, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	pdata, ok := sl.conns[fd]
	return pdata, ok
}

// AddSharedFd registers a listening socket descriptor on the pool-wide
// shared listener pollset, level-triggered. It is safe to call
// from any goroutine.
func AddSharedFd(fd int, events uint32, pdata *PollData) error {
	return defaultPool.AddSharedFd(fd, events, pdata)
}

// RemoveSharedFd unregisters fd from the shared listener pollset.
func RemoveSharedFd(fd int) error {
	return defaultPool.RemoveSharedFd(fd)
}

// AddSharedFd is the Pool method backing the package-level AddSharedFd.
func (p *Pool) AddSharedFd(fd int, events uint32, pdata *PollData) error {
	p.mu.RLock()
	sl := p.shared
	p.mu.RUnlock()
	if sl == nil {
		return errPoolNotInitialized
	}
	return sl.addFd(fd, events, pdata)
}

// RemoveSharedFd is the Pool method backing the package-level RemoveSharedFd.
func (p *Pool) RemoveSharedFd(fd int) error {
	p.mu.RLock()
	sl := p.shared
	p.mu.RUnlock()
	if sl == nil {
		return errPoolNotInitialized
	}
	return sl.removeFd(fd)
}
