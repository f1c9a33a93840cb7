// Package timeline provides exact rational rates and affine mappings
// between two timelines, e.g. reference time and frame position.
package timeline

import (
	"fmt"
	"math"
	"math/bits"
)

// Rounding defines how a scaled value is rounded when it is not exact.
type Rounding int

const (
	// Floor rounds towards negative infinity.
	Floor Rounding = iota
	// Ceiling rounds towards positive infinity.
	Ceiling
	// Truncate rounds towards zero.
	Truncate
)

// Rate is a ratio of subject delta to reference delta. Zero value is
// invalid.
type Rate struct {
	SubjectDelta   uint64
	ReferenceDelta uint64
}

// NewRate returns a reduced rate. Panics if reference delta is zero.
func NewRate(subjectDelta, referenceDelta uint64) Rate {
	if referenceDelta == 0 {
		panic("timeline: zero reference delta")
	}
	d := gcd(subjectDelta, referenceDelta)
	if d == 0 {
		return Rate{SubjectDelta: 0, ReferenceDelta: 1}
	}
	return Rate{SubjectDelta: subjectDelta / d, ReferenceDelta: referenceDelta / d}
}

// Identity is the 1/1 rate.
var Identity = Rate{SubjectDelta: 1, ReferenceDelta: 1}

// Inverse returns the reciprocal rate. Panics if subject delta is zero.
func (r Rate) Inverse() Rate {
	return NewRate(r.ReferenceDelta, r.SubjectDelta)
}

// Product returns r*o reduced. Intermediate reduction keeps it exact as
// long as the reduced result fits into 64 bits.
func (r Rate) Product(o Rate) Rate {
	a, b := gcd(r.SubjectDelta, o.ReferenceDelta), gcd(o.SubjectDelta, r.ReferenceDelta)
	if a == 0 {
		a = 1
	}
	if b == 0 {
		b = 1
	}
	return NewRate(
		(r.SubjectDelta/a)*(o.SubjectDelta/b),
		(r.ReferenceDelta/b)*(o.ReferenceDelta/a),
	)
}

// Scale returns v*SubjectDelta/ReferenceDelta rounded as requested. The
// result saturates at math.MaxInt64 and math.MinInt64.
func (r Rate) Scale(v int64, rounding Rounding) int64 {
	if r.ReferenceDelta == 0 {
		panic("timeline: zero reference delta")
	}
	negative := v < 0
	abs := uint64(v)
	if negative {
		abs = uint64(-(v + 1)) + 1
	}
	hi, lo := bits.Mul64(abs, r.SubjectDelta)
	if hi >= r.ReferenceDelta {
		return saturate(negative)
	}
	q, rem := bits.Div64(hi, lo, r.ReferenceDelta)
	if rem != 0 {
		switch {
		case rounding == Ceiling && !negative, rounding == Floor && negative:
			q++
		}
	}
	if negative {
		if q > uint64(math.MaxInt64)+1 {
			return math.MinInt64
		}
		return int64(-q)
	}
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

func (r Rate) String() string {
	return fmt.Sprintf("%d/%d", r.SubjectDelta, r.ReferenceDelta)
}

func saturate(negative bool) int64 {
	if negative {
		return math.MinInt64
	}
	return math.MaxInt64
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
