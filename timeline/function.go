package timeline

import (
	"fmt"
	"math"
)

// Function is an affine mapping from reference to subject timeline:
//
//	subject = (reference - ReferenceOffset) * Rate + SubjectOffset
//
// Generation identifies the function among the successive functions
// installed by the same owner. Owners bump it every time they replace the
// function, so cached derivations can be validated with a single compare.
type Function struct {
	ReferenceOffset int64
	SubjectOffset   int64
	Rate            Rate
	Generation      uint64
}

// IdentityFunction maps every reference value onto itself.
var IdentityFunction = Function{Rate: Identity}

// Apply maps a reference value to the subject timeline.
func (f Function) Apply(reference int64, rounding Rounding) int64 {
	return add(f.Rate.Scale(sub(reference, f.ReferenceOffset), rounding), f.SubjectOffset)
}

// ApplyInverse maps a subject value back to the reference timeline.
func (f Function) ApplyInverse(subject int64, rounding Rounding) int64 {
	return add(f.Rate.Inverse().Scale(sub(subject, f.SubjectOffset), rounding), f.ReferenceOffset)
}

// Inverse returns the subject to reference mapping with same generation.
func (f Function) Inverse() Function {
	return Function{
		ReferenceOffset: f.SubjectOffset,
		SubjectOffset:   f.ReferenceOffset,
		Rate:            f.Rate.Inverse(),
		Generation:      f.Generation,
	}
}

func (f Function) String() string {
	return fmt.Sprintf("(%d, %d, %v)#%d", f.ReferenceOffset, f.SubjectOffset, f.Rate, f.Generation)
}

// add and sub saturate instead of wrapping.
func add(a, b int64) int64 {
	c := a + b
	if (c > a) == (b > 0) {
		return c
	}
	if b > 0 {
		return math.MaxInt64
	}
	return math.MinInt64
}

func sub(a, b int64) int64 {
	c := a - b
	if (c < a) == (b > 0) {
		return c
	}
	if b > 0 {
		return math.MinInt64
	}
	return math.MaxInt64
}
