package stage

import (
	"errors"

	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/timeline"
)

var (
	// ErrCanceled is reported when pending command is replaced by a newer
	// one.
	ErrCanceled = errors.New("command canceled")
	// ErrAlreadyStopped is reported when stopped stage is stopped again.
	ErrAlreadyStopped = errors.New("already stopped")
)

// ClockKind selects a clock a RealTime is expressed in.
type ClockKind int

const (
	// SystemMonotonic is the system monotonic clock.
	SystemMonotonic ClockKind = iota
	// Reference is the reference clock of the stage.
	Reference
)

type (
	// RealTime is time on the system monotonic or reference clock.
	RealTime struct {
		Clock ClockKind
		Time  int64
	}

	// When tells when a command took effect.
	When struct {
		MonoTime      int64
		ReferenceTime int64
		Position      format.Fixed
	}

	// StartCommand starts the stage. StartPosition is the frame presented at
	// StartTime. Nil StartTime means now.
	StartCommand struct {
		StartTime     *RealTime
		StartPosition format.Fixed
		Callback      func(When, error)
	}

	// StopCommand stops the stage at StopTime or at StopPosition, whatever
	// is set. If none is set, the stage stops now.
	StopCommand struct {
		StopTime     *RealTime
		StopPosition *format.Fixed
		Callback     func(When, error)
	}

	// PendingCommand is a resolved pending command.
	PendingCommand struct {
		Start bool
		When  When
	}
)

type command struct {
	start    *StartCommand
	stop     *StopCommand
	resolved bool
	when     When
}

func (c *command) callback(w When, err error) {
	var fn func(When, error)
	if c.start != nil {
		fn = c.start.Callback
	} else {
		fn = c.stop.Callback
	}
	if fn != nil {
		fn(w, err)
	}
}

// Control is a start/stop state machine of a stage. It holds at most one
// pending command. Not safe for concurrent use, all calls are made on the
// stage thread.
type Control struct {
	format     format.Format
	pending    *command
	started    bool
	function   timeline.Function
	generation uint64
}

// NewControl returns stopped control.
func NewControl(f format.Format) *Control {
	return &Control{format: f}
}

// Start cancels pending command and schedules start.
func (c *Control) Start(cmd StartCommand) {
	c.cancelPending()
	c.pending = &command{start: &cmd}
}

// Stop cancels pending command and schedules stop. Stopped control reports
// ErrAlreadyStopped immediately.
func (c *Control) Stop(cmd StopCommand) {
	c.cancelPending()
	if !c.started {
		if cmd.Callback != nil {
			cmd.Callback(When{}, ErrAlreadyStopped)
		}
		return
	}
	c.pending = &command{stop: &cmd}
}

// Cancel drops pending command, its callback receives ErrCanceled. Stages
// are canceled before they are discarded.
func (c *Control) Cancel() {
	c.cancelPending()
}

func (c *Control) cancelPending() {
	if c.pending == nil {
		return
	}
	p := c.pending
	c.pending = nil
	p.callback(When{}, ErrCanceled)
}

// Started returns true if the last applied command is start.
func (c *Control) Started() bool {
	return c.started
}

// Function returns reference time to frame mapping of the started stage.
// Frames are expressed as raw fixed positions.
func (c *Control) Function() (timeline.Function, bool) {
	return c.function, c.started
}

// Pending resolves pending command against the snapshot of reference clock.
// Commands without time resolve to monoNow once, the first time they are
// observed.
func (c *Control) Pending(snap clock.Snapshot, monoNow int64) (PendingCommand, bool) {
	if c.pending == nil {
		return PendingCommand{}, false
	}
	p := c.pending
	if !p.resolved {
		p.when = c.resolve(p, snap, monoNow)
		p.resolved = true
	}
	return PendingCommand{Start: p.start != nil, When: p.when}, true
}

// AdvanceTo applies pending command if it takes effect at or before
// reference time ref. Returns true if command was applied.
func (c *Control) AdvanceTo(snap clock.Snapshot, monoNow, ref int64) bool {
	pc, ok := c.Pending(snap, monoNow)
	if !ok || pc.When.ReferenceTime > ref {
		return false
	}
	p := c.pending
	c.pending = nil
	if pc.Start {
		c.generation++
		c.started = true
		c.function = timeline.Function{
			ReferenceOffset: pc.When.ReferenceTime,
			SubjectOffset:   pc.When.Position.Raw(),
			Rate:            c.format.FracFramesPerNs(),
			Generation:      c.generation,
		}
	} else {
		c.started = false
	}
	p.callback(pc.When, nil)
	return true
}

func (c *Control) resolve(p *command, snap clock.Snapshot, monoNow int64) When {
	var t *RealTime
	if p.start != nil {
		t = p.start.StartTime
	} else {
		t = p.stop.StopTime
	}

	var w When
	switch {
	case p.stop != nil && p.stop.StopPosition != nil:
		// first reference time not preceding the frame.
		pos := *p.stop.StopPosition
		w.ReferenceTime = c.function.ApplyInverse(pos.Raw(), timeline.Ceiling)
		w.MonoTime = snap.MonoTimeFromReferenceTime(w.ReferenceTime)
		w.Position = pos
		return w
	case t == nil:
		w.MonoTime = monoNow
		w.ReferenceTime = snap.ReferenceTimeFromMonoTime(monoNow)
	case t.Clock == SystemMonotonic:
		w.MonoTime = t.Time
		w.ReferenceTime = snap.ReferenceTimeFromMonoTime(t.Time)
	default:
		w.ReferenceTime = t.Time
		w.MonoTime = snap.MonoTimeFromReferenceTime(t.Time)
	}

	if p.start != nil {
		w.Position = p.start.StartPosition
	} else {
		// last whole frame presented before the stop.
		w.Position = format.FixedFromInt(format.FixedFromRaw(c.function.Apply(w.ReferenceTime, timeline.Floor)).Floor())
	}
	return w
}
