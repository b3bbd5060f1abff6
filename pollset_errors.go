// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

import (
	"github.com/panlibin/corewp/errs"
	"github.com/panlibin/corewp/internal/logging"
)

var errPoolNotInitialized = errs.ErrPoolNotInitialized

func errFDExistsLogged(fd int) error {
	logging.Errorf("corewp: EEXIST adding shared fd %d", fd)
	return errs.ErrFDExists
}

func errFDNotFoundLogged(fd int) error {
	logging.Errorf("corewp: ENOENT removing shared fd %d", fd)
	return errs.ErrFDNotFound
}

// resolveSharedAddError implements the fatal/benign split for shared
// listener pollset add failures.
func resolveSharedAddError(fd int, err error) error {
	switch {
	case isErrno(err, errnoEEXIST):
		return errFDExistsLogged(fd)
	case isErrno(err, errnoENOSPC):
		logging.Errorf("corewp: ENOSPC adding shared fd %d: pollset exhausted", fd)
		return errs.ErrNoSpace
	default:
		logging.Fatalf("corewp: fatal pollset error adding shared fd %d: %v", fd, err)
		return err // unreachable: Fatalf exits the process
	}
}

// resolveSharedRemoveError implements the fatal/benign split for
// shared listener pollset remove failures.
func resolveSharedRemoveError(fd int, err error) error {
	switch {
	case isErrno(err, errnoENOENT):
		return errFDNotFoundLogged(fd)
	default:
		logging.Fatalf("corewp: fatal pollset error removing shared fd %d: %v", fd, err)
		return err // unreachable: Fatalf exits the process
	}
}
