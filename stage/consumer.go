package stage

import (
	"fmt"
	"time"

	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/timeline"
)

// ConsumerArgs configure new consumer.
type ConsumerArgs struct {
	Name      string
	Format    format.Format
	Reference clock.Clock
	Direction Direction
	Writer    Writer
	// MaxFrames hints the largest job window, used to size the mixing
	// scratch buffer.
	MaxFrames int64
}

// Consumer is a terminal stage. It pulls frames from its sources and writes
// them into the writer.
type Consumer struct {
	name      string
	format    format.Format
	reference clock.Clock
	direction Direction
	writer    Writer
	control   *Control
	sources   []Source

	downstreamDelay time.Duration
	upstreamDelay   time.Duration

	// end of the last written window of the function generation.
	lastGeneration uint64
	lastEnd        int64
	wasStarted     bool

	scratch []byte
}

// NewConsumer returns stopped consumer.
func NewConsumer(args ConsumerArgs) *Consumer {
	return &Consumer{
		name:      args.Name,
		format:    args.Format,
		reference: args.Reference,
		direction: args.Direction,
		writer:    args.Writer,
		control:   NewControl(args.Format),
		scratch:   make([]byte, args.MaxFrames*int64(args.Format.BytesPerFrame())),
	}
}

// Name returns consumer name.
func (c *Consumer) Name() string { return c.name }

// Format returns format of consumed frames.
func (c *Consumer) Format() format.Format { return c.format }

// Reference returns reference clock.
func (c *Consumer) Reference() clock.Clock { return c.reference }

// Direction returns pipeline direction.
func (c *Consumer) Direction() Direction { return c.direction }

// Control returns start/stop control.
func (c *Consumer) Control() *Control { return c.control }

// Start schedules start.
func (c *Consumer) Start(cmd StartCommand) { c.control.Start(cmd) }

// Stop schedules stop.
func (c *Consumer) Stop(cmd StopCommand) { c.control.Stop(cmd) }

// AddSource links source. It panics if source is already linked or has
// different format.
func (c *Consumer) AddSource(s Source) {
	if s.Format() != c.format {
		panic(fmt.Sprintf("consumer %s: source format %v != %v", c.name, s.Format(), c.format))
	}
	for _, existing := range c.sources {
		if existing == s {
			panic(fmt.Sprintf("consumer %s: source added twice", c.name))
		}
	}
	c.sources = append(c.sources, s)
}

// RemoveSource unlinks source. It panics if source is not linked.
func (c *Consumer) RemoveSource(s Source) {
	for i, existing := range c.sources {
		if existing == s {
			c.sources = append(c.sources[:i], c.sources[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("consumer %s: remove unknown source", c.name))
}

// Sources returns number of linked sources.
func (c *Consumer) Sources() int { return len(c.sources) }

// SetDownstreamDelay sets presentation delay of output pipelines.
func (c *Consumer) SetDownstreamDelay(d time.Duration) { c.downstreamDelay = d }

// SetUpstreamDelay sets capture delay of input pipelines.
func (c *Consumer) SetUpstreamDelay(d time.Duration) { c.upstreamDelay = d }

// DownstreamDelay returns presentation delay.
func (c *Consumer) DownstreamDelay() time.Duration { return c.downstreamDelay }

// UpstreamDelay returns capture delay.
func (c *Consumer) UpstreamDelay() time.Duration { return c.upstreamDelay }

// RunMixJob processes one period of frames for the job starting at
// monotonic time start. Output consumers process the period that starts
// one period plus downstream delay after the job, input consumers process
// the period that ends upstream delay before the job.
func (c *Consumer) RunMixJob(ctx *Context, start int64, period time.Duration) Status {
	snap := ctx.Clocks.SnapshotFor(c.reference)
	monoNow := ctx.MonoNow()

	var monoStart int64
	if c.direction == Output {
		monoStart = start + int64(period) + int64(c.downstreamDelay)
	} else {
		monoStart = start - int64(c.upstreamDelay) - int64(period)
	}
	refStart := snap.ReferenceTimeFromMonoTime(monoStart)
	refEnd := snap.ReferenceTimeFromMonoTime(monoStart + int64(period))

	for ref := refStart; ref < refEnd; {
		c.control.AdvanceTo(snap, monoNow, ref)
		c.checkStopped()

		next := refEnd
		if p, ok := c.control.Pending(snap, monoNow); ok && p.When.ReferenceTime > ref && p.When.ReferenceTime < refEnd {
			next = p.When.ReferenceTime
		}
		if fn, ok := c.control.Function(); ok {
			c.process(ctx, fn, ref, next)
		}
		ref = next
	}

	if c.control.Started() {
		return StartedStatus{}
	}
	p, ok := c.control.Pending(snap, monoNow)
	if !ok || !p.Start {
		return StoppedStatus{}
	}
	var next int64
	if c.direction == Output {
		next = p.When.MonoTime - int64(period) - int64(c.downstreamDelay)
	} else {
		next = p.When.MonoTime + int64(c.upstreamDelay) + int64(period)
	}
	return StoppedStatus{NextMixJobStartTime: next, HasNext: true}
}

// checkStopped ends the writer on every started to stopped transition.
func (c *Consumer) checkStopped() {
	started := c.control.Started()
	if c.wasStarted && !started {
		c.writer.End()
	}
	c.wasStarted = started
}

// process writes frames of the reference time range [refStart, refEnd).
func (c *Consumer) process(ctx *Context, fn timeline.Function, refStart, refEnd int64) {
	start := format.FixedFromRaw(fn.Apply(refStart, timeline.Floor)).Floor()
	end := format.FixedFromRaw(fn.Apply(refEnd, timeline.Floor)).Floor()
	if fn.Generation == c.lastGeneration {
		if start < c.lastEnd {
			start = c.lastEnd
		} else if start > c.lastEnd {
			// skipped frames of the same timeline.
			c.writer.WriteSilence(c.lastEnd, start-c.lastEnd)
		}
	}
	if end <= start {
		return
	}
	c.lastGeneration = fn.Generation
	c.lastEnd = end

	switch len(c.sources) {
	case 0:
		c.writer.WriteSilence(start, end-start)
	case 1:
		c.copy(ctx, fn, c.sources[0], start, end)
	default:
		c.mix(ctx, fn, start, end)
	}
}

// copy passes frames of a single source to the writer.
func (c *Consumer) copy(ctx *Context, fn timeline.Function, s Source, start, end int64) {
	for pos := start; pos < end; {
		v, ok := s.Read(ctx, fn, pos, end-pos)
		if !ok {
			c.writer.WriteSilence(pos, end-pos)
			return
		}
		vStart := c.checkView(v.Format, v.Start, v.Length, pos, end)
		if vStart > pos {
			c.writer.WriteSilence(pos, vStart-pos)
		}
		c.writer.WriteData(vStart, v.Length, v.Payload)
		pos = vStart + v.Length
	}
}

// mix sums frames of all sources.
func (c *Consumer) mix(ctx *Context, fn timeline.Function, start, end int64) {
	bpf := int64(c.format.BytesPerFrame())
	size := (end - start) * bpf
	if int64(len(c.scratch)) < size {
		c.scratch = make([]byte, size)
	}
	buf := c.scratch[:size]
	c.format.Silence(buf)

	var written bool
	for _, s := range c.sources {
		for pos := start; pos < end; {
			v, ok := s.Read(ctx, fn, pos, end-pos)
			if !ok {
				break
			}
			vStart := c.checkView(v.Format, v.Start, v.Length, pos, end)
			offset := (vStart - start) * bpf
			c.format.Accumulate(buf[offset:offset+v.Length*bpf], v.Payload)
			written = true
			pos = vStart + v.Length
		}
	}
	if written {
		c.writer.WriteData(start, end-start, buf)
	} else {
		c.writer.WriteSilence(start, end-start)
	}
}

// checkView validates view returned for range [pos, end) and returns its
// integral start.
func (c *Consumer) checkView(f format.Format, start format.Fixed, length, pos, end int64) int64 {
	if f != c.format {
		panic(fmt.Sprintf("consumer %s: view format %v != %v", c.name, f, c.format))
	}
	vStart := start.Floor()
	if !start.IsIntegral() || length <= 0 || vStart < pos || vStart+length > end {
		panic(fmt.Sprintf("consumer %s: view [%v, %d) outside of [%d, %d)", c.name, start, vStart+length, pos, end))
	}
	return vStart
}
