// Package format describes PCM stream formats and frame positions.
package format

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/audio"

	"pipelined.dev/mix/timeline"
)

// SampleType is the encoding of a single sample.
type SampleType int

// Supported sample types. All types are little-endian.
const (
	Unsigned8 SampleType = iota + 1
	Signed16
	Signed24In32
	Float32
)

const (
	minChannels        = 1
	maxChannels        = 64
	minFramesPerSecond = 1000
	maxFramesPerSecond = 1000000
)

var (
	// ErrUnsupportedSampleType is returned for unknown sample types.
	ErrUnsupportedSampleType = errors.New("unsupported sample type")
	// ErrInvalidChannels is returned when channel count is out of range.
	ErrInvalidChannels = errors.New("invalid channel count")
	// ErrInvalidFrameRate is returned when frame rate is out of range.
	ErrInvalidFrameRate = errors.New("invalid frame rate")
)

// Format is a PCM stream format. Formats are comparable with ==.
type Format struct {
	SampleType      SampleType
	Channels        int
	FramesPerSecond int
}

// New returns validated format.
func New(sampleType SampleType, channels, framesPerSecond int) (Format, error) {
	f := Format{
		SampleType:      sampleType,
		Channels:        channels,
		FramesPerSecond: framesPerSecond,
	}
	return f, f.Validate()
}

// Validate checks that all format properties are in supported range.
func (f Format) Validate() error {
	if f.SampleType.BytesPerSample() == 0 {
		return fmt.Errorf("%w: %d", ErrUnsupportedSampleType, f.SampleType)
	}
	if f.Channels < minChannels || f.Channels > maxChannels {
		return fmt.Errorf("%w: %d", ErrInvalidChannels, f.Channels)
	}
	if f.FramesPerSecond < minFramesPerSecond || f.FramesPerSecond > maxFramesPerSecond {
		return fmt.Errorf("%w: %d", ErrInvalidFrameRate, f.FramesPerSecond)
	}
	return nil
}

// BytesPerSample returns size of the sample type, zero if unknown.
func (t SampleType) BytesPerSample() int {
	switch t {
	case Unsigned8:
		return 1
	case Signed16:
		return 2
	case Signed24In32, Float32:
		return 4
	}
	return 0
}

// BitDepth returns number of significant bits.
func (t SampleType) BitDepth() int {
	switch t {
	case Unsigned8:
		return 8
	case Signed16:
		return 16
	case Signed24In32:
		return 24
	case Float32:
		return 32
	}
	return 0
}

func (t SampleType) String() string {
	switch t {
	case Unsigned8:
		return "uint8"
	case Signed16:
		return "int16"
	case Signed24In32:
		return "int24in32"
	case Float32:
		return "float32"
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// BytesPerSample returns size of a single sample.
func (f Format) BytesPerSample() int {
	return f.SampleType.BytesPerSample()
}

// BytesPerFrame returns size of a single frame.
func (f Format) BytesPerFrame() int {
	return f.SampleType.BytesPerSample() * f.Channels
}

// FramesPerNs returns integral frames per nanosecond rate.
func (f Format) FramesPerNs() timeline.Rate {
	return timeline.NewRate(uint64(f.FramesPerSecond), uint64(time.Second))
}

// FracFramesPerNs returns rate of raw Fixed frames per nanosecond.
func (f Format) FracFramesPerNs() timeline.Rate {
	return f.FramesPerNs().Product(timeline.NewRate(uint64(fixedOne), 1))
}

// IntegerFramesPer returns number of whole frames in duration.
func (f Format) IntegerFramesPer(d time.Duration, rounding timeline.Rounding) int64 {
	return f.FramesPerNs().Scale(int64(d), rounding)
}

// FracFramesPer returns number of frames in duration with sub-frame
// precision.
func (f Format) FracFramesPer(d time.Duration, rounding timeline.Rounding) Fixed {
	return Fixed(f.FracFramesPerNs().Scale(int64(d), rounding))
}

// DurationPer returns duration of frames.
func (f Format) DurationPer(frames Fixed, rounding timeline.Rounding) time.Duration {
	return time.Duration(f.FracFramesPerNs().Inverse().Scale(frames.Raw(), rounding))
}

// PCM returns go-audio representation of the format.
func (f Format) PCM() *audio.Format {
	return &audio.Format{
		NumChannels: f.Channels,
		SampleRate:  f.FramesPerSecond,
	}
}

func (f Format) String() string {
	return fmt.Sprintf("%v %dch %dHz", f.SampleType, f.Channels, f.FramesPerSecond)
}
