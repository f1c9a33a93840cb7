// Package ringbuffer implements circular frame buffer over mapped memory.
//
// Ring buffer does no locking. Writer and readers are synchronized by time:
// the writer stays ahead of readers by at most ProducerFrames and readers
// never read frames older than ConsumerFrames.
package ringbuffer

import (
	"errors"
	"fmt"
	"sync/atomic"

	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/memory"
	"pipelined.dev/mix/packet"
)

var (
	// ErrInvalidBuffer is returned when memory cannot hold whole frames.
	ErrInvalidBuffer = errors.New("invalid ring buffer memory")
	// ErrInvalidPartition is returned when producer and consumer frames
	// exceed total frames.
	ErrInvalidPartition = errors.New("invalid ring buffer partition")
)

// Buffer is a payload region with its partition between producer and
// consumer.
type Buffer struct {
	Memory         memory.Buffer
	ProducerFrames int64
	ConsumerFrames int64
}

// Args configure new ring buffer.
type Args struct {
	Format    format.Format
	Reference clock.Clock
	Buffer    Buffer
}

type state struct {
	Buffer
	totalFrames int64
}

// RingBuffer is a circular buffer of frames addressed by absolute frame
// positions. Positions can be negative.
type RingBuffer struct {
	format    format.Format
	reference clock.Clock
	current   atomic.Pointer[state]
	pending   atomic.Pointer[state]
}

// New returns ring buffer over provided memory.
func New(args Args) (*RingBuffer, error) {
	s, err := newState(args.Format, args.Buffer)
	if err != nil {
		return nil, err
	}
	r := &RingBuffer{
		format:    args.Format,
		reference: args.Reference,
	}
	r.current.Store(s)
	return r, nil
}

func newState(f format.Format, b Buffer) (*state, error) {
	if b.Memory == nil {
		return nil, fmt.Errorf("%w: no memory", ErrInvalidBuffer)
	}
	bpf := f.BytesPerFrame()
	if bpf == 0 || b.Memory.Size() < bpf || b.Memory.Size()%bpf != 0 {
		return nil, fmt.Errorf("%w: size %d is not a multiple of %d bytes per frame", ErrInvalidBuffer, b.Memory.Size(), bpf)
	}
	if !b.Memory.Readable() {
		return nil, fmt.Errorf("%w: not readable", ErrInvalidBuffer)
	}
	total := int64(b.Memory.Size() / bpf)
	if b.ProducerFrames < 0 || b.ConsumerFrames < 0 || b.ProducerFrames+b.ConsumerFrames > total {
		return nil, fmt.Errorf("%w: producer %d consumer %d total %d", ErrInvalidPartition, b.ProducerFrames, b.ConsumerFrames, total)
	}
	return &state{Buffer: b, totalFrames: total}, nil
}

// Format returns format of buffered frames.
func (r *RingBuffer) Format() format.Format {
	return r.format
}

// Reference returns reference clock of frame positions.
func (r *RingBuffer) Reference() clock.Clock {
	return r.reference
}

// TotalFrames returns capacity of current buffer.
func (r *RingBuffer) TotalFrames() int64 {
	return r.current.Load().totalFrames
}

// ProducerFrames returns producer part of current partition.
func (r *RingBuffer) ProducerFrames() int64 {
	return r.current.Load().ProducerFrames
}

// ConsumerFrames returns consumer part of current partition.
func (r *RingBuffer) ConsumerFrames() int64 {
	return r.current.Load().ConsumerFrames
}

// Read returns frames [start, start+count) up to the wrap boundary. The
// caller issues another Read for the remainder. Returns false if count is
// not positive.
func (r *RingBuffer) Read(start, count int64) (packet.View, bool) {
	s := r.current.Load()
	v, offset, size, ok := r.locate(s, start, count)
	if !ok {
		return packet.View{}, false
	}
	s.Memory.FlushCache(offset, size)
	s.Memory.InvalidateCache(offset, size)
	return v, true
}

// PrepareToWrite returns writable frames [start, start+count) up to the
// wrap boundary. Pending buffer replacement takes effect here. Returns nil
// if count is not positive.
func (r *RingBuffer) PrepareToWrite(start, count int64) *WritableView {
	r.swapPending(start)
	s := r.current.Load()
	if !s.Memory.Writable() {
		panic("ring buffer memory is not writable")
	}
	v, offset, size, ok := r.locate(s, start, count)
	if !ok {
		return nil
	}
	return &WritableView{
		View:   v,
		memory: s.Memory,
		offset: offset,
		size:   size,
	}
}

// SetBufferAsync replaces buffer on the next PrepareToWrite. Frames written
// before are preserved up to the smaller of both capacities.
func (r *RingBuffer) SetBufferAsync(b Buffer) error {
	s, err := newState(r.format, b)
	if err != nil {
		return err
	}
	r.pending.Store(s)
	return nil
}

func (r *RingBuffer) swapPending(at int64) {
	next := r.pending.Swap(nil)
	if next == nil {
		return
	}
	prev := r.current.Load()
	frames := min(prev.totalFrames, next.totalFrames)
	bpf := int64(r.format.BytesPerFrame())
	for pos := at - frames; pos < at; {
		// both sides wrap at different positions.
		src := floorMod(pos, prev.totalFrames)
		dst := floorMod(pos, next.totalFrames)
		n := min(at-pos, prev.totalFrames-src, next.totalFrames-dst)
		prev.Memory.InvalidateCache(int(src*bpf), int(n*bpf))
		copy(next.Memory.Offset(int(dst*bpf))[:n*bpf], prev.Memory.Offset(int(src*bpf))[:n*bpf])
		pos += n
	}
	next.Memory.FlushCache(0, next.Memory.Size())
	r.current.Store(next)
}

func (r *RingBuffer) locate(s *state, start, count int64) (packet.View, int, int, bool) {
	if count <= 0 {
		return packet.View{}, 0, 0, false
	}
	first := floorMod(start, s.totalFrames)
	n := min(count, s.totalFrames-first)
	bpf := int64(r.format.BytesPerFrame())
	offset, size := int(first*bpf), int(n*bpf)
	return packet.View{
		Format:  r.format,
		Start:   format.FixedFromInt(start),
		Length:  n,
		Payload: s.Memory.Offset(offset)[:size],
	}, offset, size, true
}

// WritableView is a range of frames open for writing.
type WritableView struct {
	packet.View
	memory memory.Buffer
	offset int
	size   int
}

// Close publishes written frames.
func (w *WritableView) Close() {
	w.memory.FlushCache(w.offset, w.size)
}

func floorMod(v, m int64) int64 {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}
