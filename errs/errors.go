// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package errs holds the sentinel errors the core worker pool returns, so
// call sites can compare against a stable set of values rather than
// formatted strings.
package errs

import "github.com/pkg/errors"

var (
	// ErrPoolAlreadyInitialized is returned by Init when called twice
	// without an intervening Finish.
	ErrPoolAlreadyInitialized = errors.New("corewp: pool already initialized")
	// ErrPoolNotInitialized is returned by operations that require Init to
	// have completed successfully first.
	ErrPoolNotInitialized = errors.New("corewp: pool not initialized")
	// ErrInvalidWorkerID is returned by GetWorker and targeted messaging
	// operations when the id is outside [0, N).
	ErrInvalidWorkerID = errors.New("corewp: invalid worker id")
	// ErrFDExists maps EEXIST on a pollset add: benign, logged, returned.
	ErrFDExists = errors.New("corewp: descriptor already registered")
	// ErrNoSpace maps ENOSPC on a pollset add: resource exhaustion.
	ErrNoSpace = errors.New("corewp: pollset has no space for descriptor")
	// ErrFDNotFound maps ENOENT on a pollset remove.
	ErrFDNotFound = errors.New("corewp: descriptor not registered")
	// ErrUnknownCallback names the condition logged when a MsgCall
	// references a callback id that was never registered.
	ErrUnknownCallback = errors.New("corewp: unknown registered callback id")
	// ErrNotTCPListener is returned by ListenSharedFd's internal fd
	// extraction when handed a net.Listener that isn't a *net.TCPListener,
	// the only concrete type File() can be called on.
	ErrNotTCPListener = errors.New("corewp: listener is not a *net.TCPListener")
)

// Wrap annotates err with msg using github.com/pkg/errors, preserving the
// originating stack frame for Join()-time failure reports.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Cause unwraps a wrapped error down to its root cause.
func Cause(err error) error {
	return errors.Cause(err)
}
