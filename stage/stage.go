// Package stage implements pipeline stages executed by mix threads.
//
// Consumer stages run one mix job per period. A job pulls frames of the
// job window from source producer stages and passes them to a writer.
// Producer stages translate the destination frame timeline onto the
// timeline of their internal source. Every stage is owned by a single mix
// thread and is not safe for concurrent use.
package stage

import (
	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/packet"
	"pipelined.dev/mix/timeline"
)

// Direction is a pipeline direction.
type Direction int

const (
	// Output pipelines run ahead of presentation.
	Output Direction = iota
	// Input pipelines run behind capture.
	Input
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Context is shared by all jobs of one mix batch.
type Context struct {
	// Clocks holds snapshots taken at the batch start.
	Clocks *clock.Snapshots
	// StartTime is monotonic start time of the batch.
	StartTime int64
	// Deadline is monotonic time the batch must complete by.
	Deadline int64
}

// MonoNow returns monotonic time of clock snapshots.
func (ctx *Context) MonoNow() int64 {
	return ctx.Clocks.MonoNow()
}

type (
	// Source provides frames to a consumer.
	Source interface {
		Format() format.Format
		Reference() clock.Clock
		// Read returns the first available frames intersecting [start,
		// start+count) of the destination frame timeline. Dest maps
		// reference time to raw fixed destination frames.
		Read(ctx *Context, dest timeline.Function, start, count int64) (packet.View, bool)
	}

	// Writer receives frames produced by a consumer. Frame ranges passed to
	// writer never overlap and never go backward.
	Writer interface {
		WriteData(start, length int64, payload []byte)
		WriteSilence(start, length int64)
		// End is called when consumer stops.
		End()
	}
)

type (
	// Status is a result of mix job.
	Status interface {
		status()
	}

	// StartedStatus tells that the consumer is running and needs another
	// job one period later.
	StartedStatus struct{}

	// StoppedStatus tells that the consumer is stopped. If HasNext is
	// true, the consumer needs a job not later than NextMixJobStartTime.
	StoppedStatus struct {
		NextMixJobStartTime int64
		HasNext             bool
	}
)

func (StartedStatus) status() {}
func (StoppedStatus) status() {}
