package corewp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestIsErrno(t *testing.T) {
	assert.True(t, isErrno(unix.EEXIST, errnoEEXIST))
	assert.False(t, isErrno(unix.ENOENT, errnoEEXIST))
	assert.False(t, isErrno(errors.New("not an errno"), errnoEEXIST))
}
