// Package webrtc streams captured packets to WebRTC peers as Opus audio.
package webrtc

import (
	"errors"
	"fmt"
	"time"

	"pipelined.dev/mix/format"
	"pipelined.dev/mix/packet"
)

// ErrUnsupportedFormat is returned for formats Opus can not encode.
var ErrUnsupportedFormat = errors.New("unsupported opus format")

// maxGapFrames limits silence inserted between packets, in opus frames.
// Longer gaps restart the stream.
const maxGapFrames = 50

// Framer cuts packets of arbitrary length into fixed size interleaved
// int16 frames.
type Framer struct {
	format    format.Format
	duration  time.Duration
	frameSize int
	buf       []int16
	next      int64
	started   bool
}

// NewFramer returns framer emitting frames of duration d.
func NewFramer(f format.Format, d time.Duration) (*Framer, error) {
	switch f.FramesPerSecond {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("%w: %d Hz", ErrUnsupportedFormat, f.FramesPerSecond)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, f.Channels)
	}
	switch d {
	case 2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond,
		20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond:
	default:
		return nil, fmt.Errorf("%w: %v frame", ErrUnsupportedFormat, d)
	}
	size := int(int64(f.FramesPerSecond) * int64(d) / int64(time.Second))
	return &Framer{
		format:    f,
		duration:  d,
		frameSize: size,
		buf:       make([]int16, 0, size*f.Channels),
	}, nil
}

// FrameSize returns number of frames per emitted frame.
func (fr *Framer) FrameSize() int {
	return fr.frameSize
}

// Duration returns duration of emitted frame.
func (fr *Framer) Duration() time.Duration {
	return fr.duration
}

// Write appends packet frames and emits every complete frame. Gaps between
// packets are filled with silence.
func (fr *Framer) Write(p packet.Packet, emit func([]int16)) {
	if p.Length == 0 {
		return
	}
	start := p.Start.Floor()
	if fr.started && start > fr.next {
		gap := start - fr.next
		if gap > int64(maxGapFrames*fr.frameSize) {
			fr.Flush(emit)
		} else {
			fr.append(make([]int16, gap*int64(fr.format.Channels)), emit)
		}
	}
	samples := make([]int16, p.Length*int64(fr.format.Channels))
	fr.format.Int16s(samples, p.Payload)
	fr.append(samples, emit)
	fr.started = true
	fr.next = start + p.Length
}

func (fr *Framer) append(samples []int16, emit func([]int16)) {
	for len(samples) > 0 {
		n := min(cap(fr.buf)-len(fr.buf), len(samples))
		fr.buf = append(fr.buf, samples[:n]...)
		samples = samples[n:]
		if len(fr.buf) == cap(fr.buf) {
			emit(fr.buf)
			fr.buf = make([]int16, 0, cap(fr.buf))
		}
	}
}

// Flush pads incomplete frame with silence and emits it. The next packet
// starts a new stream.
func (fr *Framer) Flush(emit func([]int16)) {
	if len(fr.buf) > 0 {
		fr.buf = fr.buf[:cap(fr.buf)]
		emit(fr.buf)
		fr.buf = make([]int16, 0, cap(fr.buf))
	}
	fr.started = false
}
