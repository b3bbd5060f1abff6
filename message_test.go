package corewp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingPayloadRoundTrip(t *testing.T) {
	handle := NewPingPayload("hello from worker")

	s, ok := PingPayload(handle)
	require.True(t, ok)
	assert.Equal(t, "hello from worker", s)

	ReleasePingPayload(handle)

	_, ok = PingPayload(handle)
	assert.False(t, ok, "payload must not be resolvable after release")
}

func TestPingPayloadUnknownHandle(t *testing.T) {
	_, ok := PingPayload(0xdeadbeef)
	assert.False(t, ok)
}

func TestReleasePingPayloadIdempotent(t *testing.T) {
	handle := NewPingPayload("once")
	ReleasePingPayload(handle)
	assert.NotPanics(t, func() { ReleasePingPayload(handle) })
}
