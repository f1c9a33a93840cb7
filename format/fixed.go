package format

import "fmt"

// FractionalBits is the number of bits used for the sub-frame part of
// Fixed positions.
const FractionalBits = 13

const (
	fixedOne  = int64(1) << FractionalBits
	fixedMask = fixedOne - 1
)

// Fixed is a frame position with sub-frame precision. The integer part is
// stored in the high bits, the fraction in the low FractionalBits bits.
// Positions are totally ordered by their raw value.
type Fixed int64

// FixedFromInt returns the position of the integral frame.
func FixedFromInt(frames int64) Fixed {
	return Fixed(frames << FractionalBits)
}

// FixedFromRaw returns the position with the given raw representation.
func FixedFromRaw(raw int64) Fixed {
	return Fixed(raw)
}

// Raw returns the raw representation.
func (f Fixed) Raw() int64 {
	return int64(f)
}

// Floor returns the largest frame not after f.
func (f Fixed) Floor() int64 {
	return int64(f) >> FractionalBits
}

// Ceiling returns the smallest frame not before f.
func (f Fixed) Ceiling() int64 {
	if int64(f)&fixedMask == 0 {
		return f.Floor()
	}
	return f.Floor() + 1
}

// Round returns the nearest frame, halves round up.
func (f Fixed) Round() int64 {
	return (f + Fixed(fixedOne/2)).Floor()
}

// Fraction returns the sub-frame part, always non-negative.
func (f Fixed) Fraction() Fixed {
	return Fixed(int64(f) & fixedMask)
}

// IsIntegral returns true if f has no sub-frame part.
func (f Fixed) IsIntegral() bool {
	return f.Fraction() == 0
}

func (f Fixed) String() string {
	if f.IsIntegral() {
		return fmt.Sprintf("%d", f.Floor())
	}
	return fmt.Sprintf("%d+%d/%d", f.Floor(), f.Fraction().Raw(), fixedOne)
}
