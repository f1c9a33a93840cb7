package ringbuffer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/internal/mock"
	"pipelined.dev/mix/ringbuffer"
)

var mono16 = format.Format{SampleType: format.Signed16, Channels: 1, FramesPerSecond: 48000}

func newRingBuffer(t *testing.T, frames int64) (*ringbuffer.RingBuffer, *mock.Buffer) {
	t.Helper()
	buf := mock.NewBuffer(int(frames) * mono16.BytesPerFrame())
	r, err := ringbuffer.New(ringbuffer.Args{
		Format:    mono16,
		Reference: clock.System(),
		Buffer: ringbuffer.Buffer{
			Memory:         buf,
			ProducerFrames: frames / 2,
			ConsumerFrames: frames / 2,
		},
	})
	require.NoError(t, err)
	return r, buf
}

func TestNew(t *testing.T) {
	tests := []struct {
		size     int
		producer int64
		consumer int64
		err      error
	}{
		{size: 200, producer: 50, consumer: 50},
		{size: 201, producer: 50, consumer: 50, err: ringbuffer.ErrInvalidBuffer},
		{size: 0, err: ringbuffer.ErrInvalidBuffer},
		{size: 200, producer: 60, consumer: 50, err: ringbuffer.ErrInvalidPartition},
		{size: 200, producer: -1, err: ringbuffer.ErrInvalidPartition},
	}
	for _, test := range tests {
		_, err := ringbuffer.New(ringbuffer.Args{
			Format: mono16,
			Buffer: ringbuffer.Buffer{
				Memory:         mock.NewBuffer(test.size),
				ProducerFrames: test.producer,
				ConsumerFrames: test.consumer,
			},
		})
		if test.err == nil {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, test.err)
		}
	}
}

func TestReadWraps(t *testing.T) {
	r, buf := newRingBuffer(t, 100)
	assert.Equal(t, int64(100), r.TotalFrames())

	v, ok := r.Read(190, 10)
	require.True(t, ok)
	assert.Equal(t, format.FixedFromInt(190), v.Start)
	assert.Equal(t, int64(10), v.Length)
	assert.Len(t, v.Payload, 20)
	assert.Same(t, &buf.Data[90*2], &v.Payload[0])
	assert.Equal(t, []mock.Range{{Offset: 180, Size: 20}}, buf.Flushes())
	assert.Equal(t, []mock.Range{{Offset: 180, Size: 20}}, buf.Invalidates())

	_, ok = r.Read(0, 0)
	assert.False(t, ok)
}

func TestNeverCrossesWrap(t *testing.T) {
	r, _ := newRingBuffer(t, 100)
	for start := int64(-250); start < 250; start += 7 {
		for _, count := range []int64{1, 13, 99, 100, 150} {
			v, ok := r.Read(start, count)
			require.True(t, ok)
			offset := ((start % 100) + 100) % 100
			assert.LessOrEqual(t, offset+v.Length, int64(100), "read %d %d", start, count)
			expected := min(count, 100-offset)
			assert.Equal(t, expected, v.Length, "read %d %d", start, count)

			w := r.PrepareToWrite(start, count)
			require.NotNil(t, w)
			assert.Equal(t, expected, w.Length, "write %d %d", start, count)
		}
	}
}

func TestWriteFlushesOnClose(t *testing.T) {
	r, buf := newRingBuffer(t, 100)
	w := r.PrepareToWrite(-5, 10)
	require.NotNil(t, w)
	assert.Equal(t, int64(5), w.Length)
	assert.Equal(t, format.FixedFromInt(-5), w.Start)
	w.Payload[0] = 1
	assert.Empty(t, buf.Flushes())
	w.Close()
	assert.Equal(t, []mock.Range{{Offset: 190, Size: 10}}, buf.Flushes())
	assert.Equal(t, byte(1), buf.Data[190])
	assert.Nil(t, r.PrepareToWrite(0, -1))

	buf.ReadOnly = true
	assert.Panics(t, func() { r.PrepareToWrite(0, 1) })
}

func TestSetBufferAsync(t *testing.T) {
	tests := []struct {
		oldFrames int64
		newFrames int64
		at        int64
	}{
		{oldFrames: 100, newFrames: 50, at: 120},
		{oldFrames: 50, newFrames: 100, at: 120},
		{oldFrames: 30, newFrames: 70, at: -13},
		{oldFrames: 64, newFrames: 64, at: 1000},
	}
	for _, test := range tests {
		r, _ := newRingBuffer(t, test.oldFrames)
		// every frame stores low byte of its position.
		for pos := test.at - test.oldFrames; pos < test.at; {
			w := r.PrepareToWrite(pos, test.at-pos)
			for i := int64(0); i < w.Length; i++ {
				w.Payload[i*2] = byte(pos + i)
			}
			w.Close()
			pos += w.Length
		}

		next := mock.NewBuffer(int(test.newFrames) * 2)
		require.NoError(t, r.SetBufferAsync(ringbuffer.Buffer{Memory: next}))
		_, ok := r.Read(test.at, 1)
		require.True(t, ok)
		assert.Equal(t, test.oldFrames, r.TotalFrames(), "swap is deferred")

		w := r.PrepareToWrite(test.at, 1)
		require.NotNil(t, w)
		w.Close()
		assert.Equal(t, test.newFrames, r.TotalFrames())

		copied := min(test.oldFrames, test.newFrames)
		for pos := test.at - copied; pos < test.at; pos++ {
			v, ok := r.Read(pos, 1)
			require.True(t, ok)
			assert.Equal(t, byte(pos), v.Payload[0], "frame %d", pos)
		}
		// frames outside of the copied span are untouched.
		for pos := test.at; pos < test.at+test.newFrames-copied; pos++ {
			v, _ := r.Read(pos, 1)
			assert.Equal(t, byte(0), v.Payload[0], "frame %d", pos)
		}
	}
}
