package mock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/mix/internal/mock"
	"pipelined.dev/mix/memory"
)

var _ memory.Buffer = (*mock.Buffer)(nil)

func TestWriter(t *testing.T) {
	var w mock.Writer
	w.WriteData(0, 2, []byte{1, 2})
	w.WriteSilence(2, 3)
	w.End()
	assert.Equal(t, []mock.WriteKind{mock.Data, mock.Silence, mock.End}, w.Kinds())
	calls, frames := w.Count()
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(5), frames)
	assert.Equal(t, "silence[2, 5)", w.Writes[1].String())

	w.Reset()
	assert.Empty(t, w.Writes)
}

func TestBuffer(t *testing.T) {
	b := mock.NewBuffer(8)
	b.FlushCache(0, 4)
	b.InvalidateCache(4, 4)
	assert.Equal(t, []mock.Range{{Offset: 0, Size: 4}}, b.Flushes())
	assert.Equal(t, []mock.Range{{Offset: 4, Size: 4}}, b.Invalidates())
	b.Reset()
	assert.Empty(t, b.Flushes())
}
