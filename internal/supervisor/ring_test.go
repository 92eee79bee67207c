// ABOUTME: Tests for the bounded output ring buffer and its absolute offsets.

package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer_SimpleReadSince(t *testing.T) {
	r := newRingBuffer(64)
	_, err := r.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = r.Write([]byte("world"))
	require.NoError(t, err)

	data, next := r.ReadSince(0)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, uint64(11), next)

	// Incremental read from the returned offset.
	_, err = r.Write([]byte("!"))
	require.NoError(t, err)
	data, next = r.ReadSince(next)
	assert.Equal(t, "!", string(data))
	assert.Equal(t, uint64(12), next)
}

func TestRingBuffer_ReadPastEnd(t *testing.T) {
	r := newRingBuffer(8)
	_, _ = r.Write([]byte("abc"))

	data, next := r.ReadSince(3)
	assert.Empty(t, data)
	assert.Equal(t, uint64(3), next)

	data, next = r.ReadSince(100)
	assert.Empty(t, data)
	assert.Equal(t, uint64(3), next)
}

func TestRingBuffer_OverflowDropsOldest(t *testing.T) {
	r := newRingBuffer(4)
	_, _ = r.Write([]byte("abcd"))
	_, _ = r.Write([]byte("ef"))

	// Window is now "cdef" starting at absolute offset 2.
	data, next := r.ReadSince(0)
	assert.Equal(t, "cdef", string(data))
	assert.Equal(t, uint64(6), next)

	data, _ = r.ReadSince(3)
	assert.Equal(t, "def", string(data))
}

func TestRingBuffer_WriteLargerThanCapacity(t *testing.T) {
	r := newRingBuffer(4)
	_, _ = r.Write([]byte("xy"))
	n, err := r.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	data, next := r.ReadSince(0)
	assert.Equal(t, "efgh", string(data))
	assert.Equal(t, uint64(10), next)
	assert.Equal(t, uint64(10), r.End())
}
