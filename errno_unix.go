// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

import "golang.org/x/sys/unix"

const (
	errnoEEXIST = unix.EEXIST
	errnoENOSPC = unix.ENOSPC
	errnoENOENT = unix.ENOENT
)

// isErrno reports whether err is exactly the given unix.Errno. Pollset
// calls return a bare unix.Errno, never a wrapped one, so a plain type
// assertion is sufficient here.
func isErrno(err error, errno unix.Errno) bool {
	if e, ok := err.(unix.Errno); ok {
		return e == errno
	}
	return false
}
