//go:build portaudio

package portaudio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/endpoint/portaudio"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/memory"
	"pipelined.dev/mix/ringbuffer"
	"pipelined.dev/mix/stage"
)

var mono16 = format.Format{SampleType: format.Signed16, Channels: 1, FramesPerSecond: 48000}

func newRing(t *testing.T, frames int64) *ringbuffer.RingBuffer {
	t.Helper()
	heap, err := memory.NewHeap(int(frames) * mono16.BytesPerFrame())
	require.NoError(t, err)
	rb, err := ringbuffer.New(ringbuffer.Args{
		Format:    mono16,
		Reference: clock.System(),
		Buffer: ringbuffer.Buffer{
			Memory:         heap,
			ProducerFrames: frames / 2,
			ConsumerFrames: frames / 2,
		},
	})
	require.NoError(t, err)
	return rb
}

func TestReaderWraps(t *testing.T) {
	rb := newRing(t, 100)
	payload := make([]byte, 60*mono16.BytesPerFrame())
	for i := 0; i < 60; i++ {
		mono16.PutSample(payload, i, float64(i)/100)
	}
	stage.NewRingBufferWriter(rb).WriteData(80, 60, payload)

	r := portaudio.NewReader(rb, 80)
	out := make([]float32, 60)
	r.Fill(out)
	assert.Equal(t, int64(140), r.Position())
	for i, v := range out {
		assert.InDelta(t, float64(i)/100, v, 0.001)
	}
}

func TestDevice(t *testing.T) {
	rb := newRing(t, 4800)
	d, err := portaudio.Open(portaudio.NewReader(rb, 0), 480)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
}
