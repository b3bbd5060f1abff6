// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build darwin || netbsd || freebsd || openbsd || dragonfly

// Package netpoll wraps the epoll/kqueue readiness multiplexer used by every
// Worker's private pollset and by the pool's shared listener pollset.
package netpoll

import (
	"golang.org/x/sys/unix"
)

// Event bits surfaced to callers of Polling. kqueue reports filter and flags
// rather than a single bitmask, so Polling folds them into the same shape
// epoll exposes: EventRead/EventWrite/EventHup/EventErr.
const (
	EventRead  uint32 = 1 << 0
	EventWrite uint32 = 1 << 1
	EventHup   uint32 = 1 << 2
	EventErr   uint32 = 1 << 3
)

// Poller represents a poller which is in charge of monitoring file
// descriptors for one Worker, or the pool-wide shared listener set.
type Poller struct {
	fd int // kqueue fd
}

// OpenPoller instantiates a poller.
func OpenPoller() (*Poller, error) {
	kfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &Poller{fd: kfd}, nil
}

// Close closes the poller.
func (p *Poller) Close() error {
	return unix.Close(p.fd)
}

// Polling blocks the current goroutine for up to timeoutMS milliseconds
// (0 = return immediately, -1 = block indefinitely) waiting for
// network-events, invoking callback once per ready descriptor.
func (p *Poller) Polling(timeoutMS int, callback func(fd int, events uint32)) (n int, err error) {
	el := newEventList(InitEvents)
	var ts *unix.Timespec
	if timeoutMS >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMS) * 1e6)
		ts = &t
	}
	for {
		n, err = unix.Kevent(p.fd, nil, el.events, ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		break
	}
	for i := 0; i < n; i++ {
		kev := &el.events[i]
		var events uint32
		switch kev.Filter {
		case unix.EVFILT_READ:
			events |= EventRead
		case unix.EVFILT_WRITE:
			events |= EventWrite
		}
		if kev.Flags&unix.EV_EOF != 0 {
			events |= EventHup
		}
		if kev.Flags&unix.EV_ERROR != 0 {
			events |= EventErr
		}
		callback(int(kev.Ident), events)
	}
	if n == el.size {
		el.increase()
	}
	return n, nil
}

// AddRead registers fd for level-triggered readable events (no EV_CLEAR):
// used for the shared listener pollset only.
func (p *Poller) AddRead(fd int) error {
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{
		{Ident: uint64(fd), Flags: unix.EV_ADD, Filter: unix.EVFILT_READ},
	}, nil, nil)
	return err
}

// AddReadET registers fd for edge-triggered readable events (EV_CLEAR):
// used for every worker-private registration.
func (p *Poller) AddReadET(fd int) error {
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{
		{Ident: uint64(fd), Flags: unix.EV_ADD | unix.EV_CLEAR, Filter: unix.EVFILT_READ},
	}, nil, nil)
	return err
}

// AddReadWriteET registers fd for edge-triggered read and write events.
func (p *Poller) AddReadWriteET(fd int) error {
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{
		{Ident: uint64(fd), Flags: unix.EV_ADD | unix.EV_CLEAR, Filter: unix.EVFILT_READ},
		{Ident: uint64(fd), Flags: unix.EV_ADD | unix.EV_CLEAR, Filter: unix.EVFILT_WRITE},
	}, nil, nil)
	return err
}

// ModReadWriteET ensures both read and write filters are armed, edge
// triggered.
func (p *Poller) ModReadWriteET(fd int) error {
	return p.AddReadWriteET(fd)
}

// ModReadET disarms the write filter, leaving only edge-triggered read.
func (p *Poller) ModReadET(fd int) error {
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{
		{Ident: uint64(fd), Flags: unix.EV_DELETE, Filter: unix.EVFILT_WRITE},
	}, nil, nil)
	return err
}

// FD returns the poller's own file descriptor, usable for nesting one
// pollset's readiness inside another.
func (p *Poller) FD() int { return p.fd }

// Delete removes fd from the poller (both filters; deleting an unarmed
// filter returns ENOENT, which callers ignore).
func (p *Poller) Delete(fd int) error {
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{
		{Ident: uint64(fd), Flags: unix.EV_DELETE, Filter: unix.EVFILT_READ},
	}, nil, nil)
	_, _ = unix.Kevent(p.fd, []unix.Kevent_t{
		{Ident: uint64(fd), Flags: unix.EV_DELETE, Filter: unix.EVFILT_WRITE},
	}, nil, nil)
	return err
}

// NewWakePipe creates a nonblocking, close-on-exec pipe used by MessageQueue
// as its self-pipe wake mechanism. BSD/Darwin lack pipe2, so the
// nonblocking and close-on-exec bits are applied with separate fcntl calls.
func NewWakePipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err = unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	for _, fd := range fds {
		if _, err = unix.FcntlInt(uintptr(fd), unix.F_SETFL, unix.O_NONBLOCK); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return -1, -1, err
		}
		if _, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return -1, -1, err
		}
	}
	return fds[0], fds[1], nil
}
