// Package clock provides time sources and their per-batch snapshots.
//
// Every clock maps its reference time onto the monotonic timeline used by
// mix threads to schedule work. Monotonic time is measured in nanoseconds
// since an arbitrary epoch.
package clock

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/rs/xid"

	"pipelined.dev/mix/timeline"
)

// Domain is a synchronization domain. Clocks in the same domain other than
// ExternalDomain have identical rates.
type Domain uint32

const (
	// MonotonicDomain is the domain of the system monotonic clock.
	MonotonicDomain Domain = 0
	// ExternalDomain is the domain of clocks not synchronized with any
	// other clock.
	ExternalDomain Domain = math.MaxUint32
)

// MaxRateAdjustPPM bounds the rate adjustment of adjustable clocks and
// clocks outside of the monotonic domain.
const MaxRateAdjustPPM = 1000

var (
	// ErrNotAdjustable is returned when rate of fixed clock is changed.
	ErrNotAdjustable = errors.New("clock is not adjustable")
	// ErrRateOutOfRange is returned when rate adjustment exceeds
	// MaxRateAdjustPPM.
	ErrRateOutOfRange = errors.New("rate adjustment out of range")
)

type (
	// Clock is a time source shared by stages. Implementations must be safe
	// for concurrent use.
	Clock interface {
		ID() xid.ID
		Name() string
		Domain() Domain
		Adjustable() bool
		// Now returns current reference time.
		Now() int64
		// ToMono returns the reference to monotonic time mapping.
		ToMono() timeline.Function
	}

	// Adjuster is a clock which rate can be changed.
	Adjuster interface {
		Clock
		SetRate(ppm int) error
	}
)

// Args configure custom clock.
type Args struct {
	Name       string
	Domain     Domain
	Adjustable bool
	// Mono returns current monotonic time. System time is used if nil.
	Mono func() int64
}

// Custom is a clock derived from monotonic time with optional rate
// adjustment.
type Custom struct {
	id         xid.ID
	name       string
	domain     Domain
	adjustable bool
	mono       func() int64
	toMono     atomic.Pointer[timeline.Function]
}

// NewCustom returns clock that initially runs at the monotonic rate.
func NewCustom(args Args) *Custom {
	mono := args.Mono
	if mono == nil {
		mono = systemNow
	}
	c := &Custom{
		id:         xid.New(),
		name:       args.Name,
		domain:     args.Domain,
		adjustable: args.Adjustable,
		mono:       mono,
	}
	fn := timeline.IdentityFunction
	c.toMono.Store(&fn)
	return c
}

// ID returns unique clock id.
func (c *Custom) ID() xid.ID { return c.id }

// Name returns clock name.
func (c *Custom) Name() string { return c.name }

// Domain returns clock domain.
func (c *Custom) Domain() Domain { return c.domain }

// Adjustable returns true if SetRate is permitted.
func (c *Custom) Adjustable() bool { return c.adjustable }

// ToMono returns current reference to monotonic mapping.
func (c *Custom) ToMono() timeline.Function { return *c.toMono.Load() }

// Now returns current reference time.
func (c *Custom) Now() int64 {
	return c.ToMono().ApplyInverse(c.mono(), timeline.Floor)
}

// SetRate makes the clock run ppm parts per million faster than monotonic
// time. The mapping is re-anchored at the current time, so reference time
// stays continuous.
func (c *Custom) SetRate(ppm int) error {
	if !c.adjustable {
		return ErrNotAdjustable
	}
	if ppm < -MaxRateAdjustPPM || ppm > MaxRateAdjustPPM {
		return ErrRateOutOfRange
	}
	mono := c.mono()
	prev := c.ToMono()
	next := timeline.Function{
		ReferenceOffset: prev.ApplyInverse(mono, timeline.Floor),
		SubjectOffset:   mono,
		Rate:            timeline.NewRate(1e6, uint64(1e6+ppm)),
		Generation:      prev.Generation + 1,
	}
	c.toMono.Store(&next)
	return nil
}

func (c *Custom) String() string {
	return c.name
}
