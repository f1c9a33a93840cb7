package stage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/stage"
	"pipelined.dev/mix/timeline"
)

// 48 frames per millisecond.
var mono16 = format.Format{SampleType: format.Signed16, Channels: 1, FramesPerSecond: 48000}

type result struct {
	when  stage.When
	err   error
	calls int
}

func (r *result) callback(w stage.When, err error) {
	r.when, r.err = w, err
	r.calls++
}

func refTime(t int64) *stage.RealTime {
	return &stage.RealTime{Clock: stage.Reference, Time: t}
}

func monoTime(t int64) *stage.RealTime {
	return &stage.RealTime{Clock: stage.SystemMonotonic, Time: t}
}

func identity() clock.Snapshot {
	return clock.Snapshot{ToMono: timeline.IdentityFunction}
}

func TestStartThenStopCancels(t *testing.T) {
	c := stage.NewControl(mono16)
	var start, stop result
	c.Start(stage.StartCommand{StartTime: refTime(100), Callback: start.callback})
	c.Stop(stage.StopCommand{Callback: stop.callback})

	assert.ErrorIs(t, start.err, stage.ErrCanceled)
	assert.ErrorIs(t, stop.err, stage.ErrAlreadyStopped)
	assert.False(t, c.Started())
	_, ok := c.Pending(identity(), 0)
	assert.False(t, ok)
	assert.False(t, c.AdvanceTo(identity(), 0, 1000))
	assert.Equal(t, 1, start.calls)
}

func TestStartReplacesPending(t *testing.T) {
	c := stage.NewControl(mono16)
	var first, second result
	c.Start(stage.StartCommand{StartTime: refTime(100), Callback: first.callback})
	c.Start(stage.StartCommand{StartTime: refTime(200), StartPosition: format.FixedFromInt(5), Callback: second.callback})
	assert.ErrorIs(t, first.err, stage.ErrCanceled)
	assert.Equal(t, 0, second.calls)

	assert.False(t, c.AdvanceTo(identity(), 0, 199))
	assert.True(t, c.AdvanceTo(identity(), 0, 200))
	require.NoError(t, second.err)
	assert.Equal(t, stage.When{MonoTime: 200, ReferenceTime: 200, Position: format.FixedFromInt(5)}, second.when)
	assert.True(t, c.Started())

	fn, ok := c.Function()
	require.True(t, ok)
	assert.Equal(t, uint64(1), fn.Generation)
	assert.Equal(t, format.FixedFromInt(53).Raw(), fn.Apply(200+int64(time.Millisecond), timeline.Floor))
}

func TestStopAtFrameRoundsUp(t *testing.T) {
	const start = int64(5 * time.Millisecond)
	tests := []struct {
		frame    int64
		expected int64
	}{
		{frame: 48, expected: start + int64(time.Millisecond)},
		// 1/48 of millisecond is 20833.3ns.
		{frame: 1, expected: start + 20834},
	}
	for _, test := range tests {
		c := stage.NewControl(mono16)
		c.Start(stage.StartCommand{StartTime: refTime(start)})
		require.True(t, c.AdvanceTo(identity(), 0, start))

		var stop result
		pos := format.FixedFromInt(test.frame)
		c.Stop(stage.StopCommand{StopPosition: &pos, Callback: stop.callback})
		p, ok := c.Pending(identity(), 0)
		require.True(t, ok)
		assert.False(t, p.Start)
		assert.Equal(t, test.expected, p.When.ReferenceTime)

		assert.False(t, c.AdvanceTo(identity(), 0, test.expected-1))
		assert.True(t, c.Started())
		assert.True(t, c.AdvanceTo(identity(), 0, test.expected))
		assert.False(t, c.Started())
		require.NoError(t, stop.err)
		assert.Equal(t, pos, stop.when.Position)
	}
}

func TestStopAtTimeRoundsDown(t *testing.T) {
	c := stage.NewControl(mono16)
	c.Start(stage.StartCommand{StartTime: refTime(0)})
	require.True(t, c.AdvanceTo(identity(), 0, 0))

	var stop result
	// 30us is 1.44 frames.
	c.Stop(stage.StopCommand{StopTime: refTime(30000), Callback: stop.callback})
	assert.True(t, c.AdvanceTo(identity(), 0, 40000))
	require.NoError(t, stop.err)
	assert.Equal(t, format.FixedFromInt(1), stop.when.Position)
	assert.Equal(t, int64(30000), stop.when.ReferenceTime)
}

func TestStartOnMonotonicTime(t *testing.T) {
	realm := clock.NewRealm()
	ref := realm.NewClock("ref", clock.ExternalDomain, true)
	realm.AdvanceTo(int64(time.Millisecond))
	require.NoError(t, ref.SetRate(1000))
	snap := clock.Take(ref)

	c := stage.NewControl(mono16)
	c.Start(stage.StartCommand{StartTime: monoTime(2 * int64(time.Millisecond))})
	p, ok := c.Pending(snap, 0)
	require.True(t, ok)
	assert.Equal(t, stage.When{MonoTime: 2000000, ReferenceTime: 2001000}, p.When)
}

func TestStartNowResolvesOnce(t *testing.T) {
	c := stage.NewControl(mono16)
	c.Start(stage.StartCommand{})
	p, ok := c.Pending(identity(), 100)
	require.True(t, ok)
	assert.Equal(t, int64(100), p.When.ReferenceTime)
	p, _ = c.Pending(identity(), 200)
	assert.Equal(t, int64(100), p.When.ReferenceTime)
	assert.True(t, c.AdvanceTo(identity(), 300, 300))

	// restart installs new function.
	c.Start(stage.StartCommand{StartTime: refTime(400)})
	assert.True(t, c.AdvanceTo(identity(), 400, 400))
	fn, _ := c.Function()
	assert.Equal(t, uint64(2), fn.Generation)
	assert.Equal(t, int64(400), fn.ReferenceOffset)
}

func TestCancel(t *testing.T) {
	c := stage.NewControl(mono16)
	c.Cancel()

	var start result
	c.Start(stage.StartCommand{StartTime: refTime(100), Callback: start.callback})
	c.Cancel()
	assert.ErrorIs(t, start.err, stage.ErrCanceled)
	assert.Equal(t, 1, start.calls)
	assert.False(t, c.AdvanceTo(identity(), 0, 1000))
	assert.False(t, c.Started())
	c.Cancel()
	assert.Equal(t, 1, start.calls)
}
