// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corewp

import (
	"sync"
	"unsafe"

	"github.com/valyala/bytebufferpool"
)

// Message ids.
const (
	// MsgPing logs Arg2, interpreted as a *bytebufferpool.ByteBuffer handle
	// (see PingPayload), then releases it back to the pool.
	MsgPing uint32 = iota + 1
	// MsgShutdown sets the target worker's shouldShutdown flag; it carries
	// no arguments.
	MsgShutdown
	// MsgCall invokes the callback registered under Arg1 with
	// (workerID, Arg2).
	MsgCall
)

// Message is the fixed-size control message carried over a MessageQueue.
// It is a plain value: posting never allocates.
type Message struct {
	ID         uint32
	Arg1, Arg2 uintptr
}

// pingPool backs PingPayload/ReleasePingPayload: the owning handle a MsgPing
// carries in Arg2 is a pooled buffer, not a raw C-style owning pointer, so
// "the consumer frees" becomes "the consumer calls Put back".
var pingPool bytebufferpool.Pool

// pingRegistry maps the uintptr handle stashed in Arg2 back to the pooled
// buffer it names: Arg2 is a uintptr (not an interface) to keep Message a
// flat, allocation-free value, so the buffer itself lives in a side table
// keyed by its own address.
var pingRegistry sync.Map // uintptr -> *bytebufferpool.ByteBuffer

// NewPingPayload formats msg into a pooled buffer and returns the handle to
// stash in a MsgPing's Arg2.
func NewPingPayload(msg string) uintptr {
	buf := pingPool.Get()
	_, _ = buf.WriteString(msg)
	handle := bufHandle(buf)
	pingRegistry.Store(handle, buf)
	return handle
}

// PingPayload resolves a MsgPing's Arg2 back to its string content.
func PingPayload(handle uintptr) (string, bool) {
	v, ok := pingRegistry.Load(handle)
	if !ok {
		return "", false
	}
	return v.(*bytebufferpool.ByteBuffer).String(), true
}

// ReleasePingPayload returns the buffer named by handle to the pool; the
// worker loop calls this exactly once per MsgPing it drains.
func ReleasePingPayload(handle uintptr) {
	v, ok := pingRegistry.LoadAndDelete(handle)
	if !ok {
		return
	}
	buf := v.(*bytebufferpool.ByteBuffer)
	buf.Reset()
	pingPool.Put(buf)
}

func bufHandle(buf *bytebufferpool.ByteBuffer) uintptr {
	return uintptr(unsafe.Pointer(buf))
}
