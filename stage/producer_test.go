package stage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/mix/format"
	"pipelined.dev/mix/packet"
	"pipelined.dev/mix/stage"
	"pipelined.dev/mix/timeline"
)

// destination maps reference time to frames starting at zero at ref.
func destination(ref int64, generation uint64) timeline.Function {
	return timeline.Function{
		ReferenceOffset: ref,
		Rate:            mono16.FracFramesPerNs(),
		Generation:      generation,
	}
}

func TestProducerOffset(t *testing.T) {
	f := newFixture()
	src := f.stream(t, newPacket(100, 48, 5))
	src.Start(stage.StartCommand{StartTime: refTime(t0 + p), StartPosition: format.FixedFromInt(100)})

	v, ok := src.Read(f.context(t0), destination(t0+p, 1), 0, 48)
	require.True(t, ok)
	assert.Equal(t, format.FixedFromInt(0), v.Start)
	assert.Equal(t, int64(48), v.Length)
	assert.Equal(t, int16(5), sample(v.Payload, 47))
}

func TestProducerStartsMidRange(t *testing.T) {
	f := newFixture()
	src := f.stream(t, newPacket(0, 48, 5))
	src.Start(stage.StartCommand{StartTime: refTime(t0 + p + p/2)})

	v, ok := src.Read(f.context(t0), destination(t0+p, 1), 0, 48)
	require.True(t, ok)
	assert.Equal(t, format.FixedFromInt(24), v.Start)
	assert.Equal(t, int64(24), v.Length)
}

func TestProducerStopped(t *testing.T) {
	f := newFixture()
	src := f.stream(t, newPacket(0, 48, 5))
	_, ok := src.Read(f.context(t0), destination(t0+p, 1), 0, 48)
	assert.False(t, ok)

	src.Start(stage.StartCommand{StartTime: refTime(t0 + p)})
	pos := format.FixedFromInt(12)
	src.Stop(stage.StopCommand{StopPosition: &pos})
	assert.False(t, src.Control().Started())
}

func TestProducerOffsetFollowsGeneration(t *testing.T) {
	f := newFixture()
	s, err := packet.NewStream(mono16, 16)
	require.NoError(t, err)
	require.NoError(t, s.Push(newPacket(0, 96, 1)))
	src := stage.NewProducer(stage.ProducerArgs{Reference: f.ref, Source: stage.NewPacketQueueSource(s, 16)})
	src.Start(stage.StartCommand{StartTime: refTime(t0 + p)})

	v, ok := src.Read(f.context(t0), destination(t0+p, 1), 0, 24)
	require.True(t, ok)
	assert.Equal(t, format.FixedFromInt(0), v.Start)

	// destination restarted 24 frames later than producer.
	v, ok = src.Read(f.context(t0), destination(t0+p+p/2, 2), 0, 24)
	require.True(t, ok)
	assert.Equal(t, format.FixedFromInt(0), v.Start)
	assert.Equal(t, int16(1), sample(v.Payload, 0))
	assert.Equal(t, int64(24), v.Length)
}

func TestProducerStartBetweenFrames(t *testing.T) {
	f := newFixture()
	src := f.stream(t, newPacket(0, 48, 5))
	// frame 1 of destination is presented at t0+p+20833.33ns, the start
	// falls after it and takes effect at frame 2.
	src.Start(stage.StartCommand{StartTime: refTime(t0 + p + 20834)})

	v, ok := src.Read(f.context(t0), destination(t0+p, 1), 1, 10)
	require.True(t, ok)
	assert.Equal(t, format.FixedFromInt(2), v.Start)
	assert.Equal(t, int64(9), v.Length)
	assert.True(t, src.Control().Started())
}
