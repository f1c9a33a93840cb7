package stage

import (
	"fmt"
	"sync/atomic"

	"pipelined.dev/mix/format"
	"pipelined.dev/mix/packet"
	"pipelined.dev/mix/ringbuffer"
)

// RingBufferWriter writes frames into a ring buffer.
type RingBufferWriter struct {
	buffer *ringbuffer.RingBuffer
	format format.Format
}

// NewRingBufferWriter returns writer into the ring buffer.
func NewRingBufferWriter(rb *ringbuffer.RingBuffer) *RingBufferWriter {
	return &RingBufferWriter{
		buffer: rb,
		format: rb.Format(),
	}
}

// WriteData implements Writer. Only the last TotalFrames frames of larger
// writes are kept.
func (w *RingBufferWriter) WriteData(start, length int64, payload []byte) {
	bpf := int64(w.format.BytesPerFrame())
	if total := w.buffer.TotalFrames(); length > total {
		skip := length - total
		start, length, payload = start+skip, total, payload[skip*bpf:]
	}
	for length > 0 {
		v := w.buffer.PrepareToWrite(start, length)
		n := copy(v.Payload, payload)
		v.Close()
		frames := int64(n) / bpf
		start, length, payload = start+frames, length-frames, payload[n:]
	}
}

// WriteSilence implements Writer.
func (w *RingBufferWriter) WriteSilence(start, length int64) {
	if total := w.buffer.TotalFrames(); length > total {
		start, length = start+length-total, total
	}
	for length > 0 {
		v := w.buffer.PrepareToWrite(start, length)
		w.format.Silence(v.Payload)
		v.Close()
		start, length = start+v.Length, length-v.Length
	}
}

// End implements Writer.
func (w *RingBufferWriter) End() {}

// PacketWriter emits written frames as packets. Payloads are carved from a
// slab and must be recycled by the reader.
type PacketWriter struct {
	format  format.Format
	slab    *packet.Slab
	out     *packet.Queue[packet.Packet]
	dropped atomic.Int64
}

// NewPacketWriter returns writer emitting packets into a queue of given
// capacity.
func NewPacketWriter(f format.Format, slab *packet.Slab, capacity uint64) (*PacketWriter, error) {
	if slab.SlotSize() < f.BytesPerFrame() {
		return nil, fmt.Errorf("%w: slot size %d is less than frame size %d", packet.ErrInvalidSlab, slab.SlotSize(), f.BytesPerFrame())
	}
	out, err := packet.NewQueue[packet.Packet](capacity)
	if err != nil {
		return nil, err
	}
	return &PacketWriter{
		format: f,
		slab:   slab,
		out:    out,
	}, nil
}

// WriteData implements Writer.
func (w *PacketWriter) WriteData(start, length int64, payload []byte) {
	bpf := int64(w.format.BytesPerFrame())
	w.write(start, length, func(dst []byte, offset int64) {
		copy(dst, payload[offset*bpf:])
	})
}

// WriteSilence implements Writer.
func (w *PacketWriter) WriteSilence(start, length int64) {
	w.write(start, length, func(dst []byte, _ int64) {
		w.format.Silence(dst)
	})
}

// End emits an empty packet.
func (w *PacketWriter) End() {
	if !w.out.Push(packet.Packet{View: packet.View{Format: w.format}, Slot: packet.NoSlot}) {
		w.dropped.Add(1)
	}
}

func (w *PacketWriter) write(start, length int64, fill func(dst []byte, offset int64)) {
	bpf := int64(w.format.BytesPerFrame())
	slotFrames := int64(w.slab.SlotSize()) / bpf
	for offset := int64(0); offset < length; offset += slotFrames {
		n := min(slotFrames, length-offset)
		slot, ok := w.slab.Acquire()
		if !ok {
			w.dropped.Add(length - offset)
			return
		}
		payload := slot.Payload[:n*bpf]
		fill(payload, offset)
		p := packet.Packet{
			View: packet.View{
				Format:  w.format,
				Start:   format.FixedFromInt(start + offset),
				Length:  n,
				Payload: payload,
			},
			Slot: slot.Index,
		}
		if !w.out.Push(p) {
			w.slab.Recycle(slot)
			w.dropped.Add(length - offset)
			return
		}
	}
}

// Next returns the oldest emitted packet. Empty packet marks the end of
// written frames.
func (w *PacketWriter) Next() (packet.Packet, bool) {
	return w.out.Pop()
}

// Recycle returns packet payload to the slab.
func (w *PacketWriter) Recycle(p packet.Packet) {
	if p.Slot == packet.NoSlot {
		return
	}
	w.slab.Recycle(packet.Slot{Index: p.Slot})
}

// Dropped returns number of frames lost because the reader was too slow.
func (w *PacketWriter) Dropped() int64 {
	return w.dropped.Load()
}
