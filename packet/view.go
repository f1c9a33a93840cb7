// Package packet implements the packet transport between clients and mix
// threads.
package packet

import (
	"fmt"

	"pipelined.dev/mix/format"
)

// View is a contiguous range of frames. Start may be fractional, Length is
// always in whole frames.
type View struct {
	Format  format.Format
	Start   format.Fixed
	Length  int64
	Payload []byte
}

// End returns position right after the last frame.
func (v View) End() format.Fixed {
	return v.Start + format.FixedFromInt(v.Length)
}

// Slice returns length frames starting offset frames after view start.
func (v View) Slice(offset, length int64) View {
	if offset < 0 || length < 0 || offset+length > v.Length {
		panic(fmt.Sprintf("slice [%d, %d) outside of view length %d", offset, offset+length, v.Length))
	}
	bpf := int64(v.Format.BytesPerFrame())
	return View{
		Format:  v.Format,
		Start:   v.Start + format.FixedFromInt(offset),
		Length:  length,
		Payload: v.Payload[offset*bpf : (offset+length)*bpf],
	}
}

// Empty returns true if the view has no frames.
func (v View) Empty() bool {
	return v.Length == 0
}

func (v View) String() string {
	return fmt.Sprintf("[%v, %v)", v.Start, v.End())
}
