// Copyright 2019 Andy Pan. All rights reserved.
// Copyright 2017 Joshua J Baker. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

// Package netpoll wraps the epoll/kqueue readiness multiplexer used by every
// Worker's private pollset and by the pool's shared listener pollset.
package netpoll

import (
	"golang.org/x/sys/unix"
)

// Event bits surfaced to callers of Polling, a superset of the raw epoll
// bits so callers don't need to import golang.org/x/sys/unix themselves.
const (
	EventRead  = unix.EPOLLIN | unix.EPOLLPRI
	EventWrite = unix.EPOLLOUT
	EventHup   = unix.EPOLLHUP | unix.EPOLLRDHUP
	EventErr   = unix.EPOLLERR
)

// Poller represents a poller which is in charge of monitoring file
// descriptors for one Worker, or the pool-wide shared listener set.
type Poller struct {
	fd int // epoll fd
}

// OpenPoller instantiates a poller.
func OpenPoller() (*Poller, error) {
	epollFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Poller{fd: epollFD}, nil
}

// Close closes the poller.
func (p *Poller) Close() error {
	return unix.Close(p.fd)
}

// Polling blocks the current goroutine for up to timeoutMS milliseconds
// (0 = return immediately, -1 = block indefinitely) waiting for
// network-events, invoking callback once per ready descriptor. It returns
// the number of ready descriptors and any wait-level error.
func (p *Poller) Polling(timeoutMS int, callback func(fd int, events uint32)) (n int, err error) {
	el := newEventList(InitEvents)
	for {
		n, err = unix.EpollWait(p.fd, el.events, timeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		break
	}
	for i := 0; i < n; i++ {
		ev := &el.events[i]
		callback(int(ev.Fd), ev.Events)
	}
	if n == el.size {
		el.increase()
	}
	return n, nil
}

// AddRead registers fd for level-triggered readable events: used for the
// shared listener pollset only.
func (p *Poller) AddRead(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN})
}

// AddReadET registers fd for edge-triggered readable events: used for every
// worker-private registration (connections, the message queue wake fd, and
// the shared-listener proxy descriptor).
func (p *Poller) AddReadET(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN | unix.EPOLLET})
}

// AddReadWriteET registers fd for edge-triggered read and write events.
func (p *Poller) AddReadWriteET(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET})
}

// ModReadWriteET renews fd with both readable and writable edge-triggered
// events.
func (p *Poller) ModReadWriteET(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET})
}

// ModReadET renews fd with only readable edge-triggered events.
func (p *Poller) ModReadET(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN | unix.EPOLLET})
}

// FD returns the poller's own file descriptor, usable for nesting one
// pollset's readiness inside another.
func (p *Poller) FD() int { return p.fd }

// Delete removes fd from the poller.
func (p *Poller) Delete(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

// NewWakePipe creates a nonblocking, close-on-exec pipe used by MessageQueue
// as its self-pipe wake mechanism.
func NewWakePipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err = unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}
