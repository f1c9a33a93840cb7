package memory_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/mix/memory"
)

func TestHeap(t *testing.T) {
	_, err := memory.NewHeap(0)
	assert.ErrorIs(t, err, memory.ErrInvalidSize)

	h, err := memory.NewHeap(16)
	require.NoError(t, err)
	assert.Equal(t, 16, h.Size())
	assert.True(t, h.Readable())
	assert.True(t, h.Writable())

	h.Offset(4)[0] = 7
	assert.Equal(t, byte(7), h.Start()[4])
	assert.Len(t, h.Offset(16), 0)
	assert.Panics(t, func() { h.Offset(17) })
	assert.Panics(t, func() { h.FlushCache(8, 9) })
	assert.NotPanics(t, func() {
		h.FlushCache(8, 8)
		h.InvalidateCache(0, 16)
	})
}

func TestShared(t *testing.T) {
	if runtime.GOOS != "linux" {
		_, err := memory.NewShared("test", 64)
		assert.ErrorIs(t, err, memory.ErrSharedUnsupported)
		return
	}
	s, err := memory.NewShared("test", 64)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 64, s.Size())
	assert.GreaterOrEqual(t, s.Fd(), 0)
	s.Start()[63] = 1
	assert.Equal(t, byte(1), s.Offset(63)[0])
}
