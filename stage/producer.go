package stage

import (
	"fmt"

	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/packet"
	"pipelined.dev/mix/timeline"
)

// InternalSource provides frames addressed on the producer frame timeline.
type InternalSource interface {
	Format() format.Format
	// Read returns the first available frames intersecting [start,
	// start+count). Returned view has integral start.
	Read(ctx *Context, start, count int64) (packet.View, bool)
}

// ProducerArgs configure new producer.
type ProducerArgs struct {
	Name      string
	Reference clock.Clock
	Source    InternalSource
}

// Producer is a source stage. It has its own start/stop control, so one
// internal source can be started at different destination frames.
type Producer struct {
	name      string
	format    format.Format
	reference clock.Clock
	source    InternalSource
	control   *Control

	// offset from destination to internal frames, valid for the pair of
	// generations.
	offset     int64
	destGen    uint64
	controlGen uint64
}

// NewProducer returns stopped producer.
func NewProducer(args ProducerArgs) *Producer {
	f := args.Source.Format()
	return &Producer{
		name:      args.Name,
		format:    f,
		reference: args.Reference,
		source:    args.Source,
		control:   NewControl(f),
	}
}

// Name returns producer name.
func (p *Producer) Name() string { return p.name }

// Format returns format of produced frames.
func (p *Producer) Format() format.Format { return p.format }

// Reference returns reference clock.
func (p *Producer) Reference() clock.Clock { return p.reference }

// Control returns start/stop control.
func (p *Producer) Control() *Control { return p.control }

// Source returns internal source.
func (p *Producer) Source() InternalSource { return p.source }

// Start schedules start.
func (p *Producer) Start(cmd StartCommand) { p.control.Start(cmd) }

// Stop schedules stop.
func (p *Producer) Stop(cmd StopCommand) { p.control.Stop(cmd) }

// Read implements Source. Frames of stopped intervals are never returned.
func (p *Producer) Read(ctx *Context, dest timeline.Function, start, count int64) (packet.View, bool) {
	snap := ctx.Clocks.SnapshotFor(p.reference)
	monoNow := ctx.MonoNow()
	end := start + count
	for pos := start; pos < end; {
		// pending commands take effect at their first destination frame.
		if pc, ok := p.control.Pending(snap, monoNow); ok && pendingFrame(dest, pc) <= pos {
			p.control.AdvanceTo(snap, monoNow, pc.When.ReferenceTime)
		}

		next := end
		if pc, ok := p.control.Pending(snap, monoNow); ok {
			if frame := pendingFrame(dest, pc); frame < end {
				next = frame
			}
		}

		fn, ok := p.control.Function()
		if !ok {
			pos = next
			continue
		}
		offset := p.offsetFor(dest, fn)
		v, ok := p.source.Read(ctx, pos+offset, next-pos)
		if !ok {
			pos = next
			continue
		}
		if v.Format != p.format {
			panic(fmt.Sprintf("producer %s: view format %v != %v", p.name, v.Format, p.format))
		}
		v.Start -= format.FixedFromInt(offset)
		if v.Start.Floor() < pos || v.End().Floor() > next {
			panic(fmt.Sprintf("producer %s: view %v outside of [%d, %d)", p.name, v, pos, next))
		}
		return v, true
	}
	return packet.View{}, false
}

// offsetFor returns number of frames to add to destination frames to get
// internal frames. Both functions have the same rate.
func (p *Producer) offsetFor(dest, fn timeline.Function) int64 {
	if dest.Generation == p.destGen && fn.Generation == p.controlGen {
		return p.offset
	}
	internal := fn.Apply(dest.ReferenceOffset, timeline.Floor)
	p.offset = format.FixedFromRaw(internal - dest.SubjectOffset).Round()
	p.destGen = dest.Generation
	p.controlGen = fn.Generation
	return p.offset
}

// pendingFrame returns the first destination frame not preceding the
// pending command.
func pendingFrame(dest timeline.Function, pc PendingCommand) int64 {
	return format.FixedFromRaw(dest.Apply(pc.When.ReferenceTime, timeline.Ceiling)).Ceiling()
}
