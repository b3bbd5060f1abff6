// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

import (
	"net"
	"runtime"

	"github.com/libp2p/go-reuseport"
	"golang.org/x/sys/unix"

	"github.com/panlibin/corewp/errs"
)

// ListenSharedFd opens a TCP listening socket with SO_REUSEPORT semantics
// and returns its raw, nonblocking file descriptor, suitable for
// AddSharedFd. This is a thin convenience for callers (and this module's own
// accept fan-out test) driving the shared listener; the core itself never
// opens sockets.
func ListenSharedFd(network, addr string) (fd int, ln net.Listener, err error) {
	ln, err = reuseport.Listen(network, addr)
	if err != nil {
		return -1, nil, errs.Wrap(err, "corewp: open shared listener socket")
	}
	fd, err = fdOf(ln)
	if err != nil {
		_ = ln.Close()
		return -1, nil, err
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = ln.Close()
		return -1, nil, errs.Wrap(err, "corewp: set listener nonblocking")
	}
	return fd, ln, nil
}

func fdOf(ln net.Listener) (int, error) {
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		return -1, errs.ErrNotTCPListener
	}
	f, err := tl.File()
	if err != nil {
		return -1, errs.Wrap(err, "corewp: extract listener file descriptor")
	}
	fd := int(f.Fd())
	// tl.File() hands back a dup'd descriptor owned from here on by the
	// shared listener pollset, not by f; clear f's finalizer so GC doesn't
	// close fd out from under the pollset once f becomes unreachable.
	runtime.SetFinalizer(f, nil)
	return fd, nil
}
