// Package gid extracts the calling goroutine's runtime id, used to key the
// pool's "current worker" lookup. A worker's dedicated goroutine never
// migrates across workers for its lifetime, so the goroutine id is a
// stable, platform-independent stand-in for a "current OS thread" identity.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Get parses "goroutine NNN [running]:" off the head of a stack trace. This
// is the standard trick reached for whenever Go code needs a goroutine
// identity without plumbing a context value through every call site; it is
// never used here for anything load-bearing beyond the current-worker
// diagnostic lookup.
func Get() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	idx := bytes.IndexByte(buf, ' ')
	if idx < 0 {
		return -1
	}
	id, err := strconv.ParseInt(string(buf[:idx]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
