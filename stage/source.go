package stage

import (
	"sync/atomic"

	"pipelined.dev/mix/format"
	"pipelined.dev/mix/metric"
	"pipelined.dev/mix/packet"
	"pipelined.dev/mix/ringbuffer"
)

// RingBufferSource reads frames from a ring buffer.
type RingBufferSource struct {
	buffer *ringbuffer.RingBuffer
}

// NewRingBufferSource returns source reading the ring buffer.
func NewRingBufferSource(rb *ringbuffer.RingBuffer) *RingBufferSource {
	return &RingBufferSource{buffer: rb}
}

// Format implements InternalSource.
func (s *RingBufferSource) Format() format.Format {
	return s.buffer.Format()
}

// Read implements InternalSource.
func (s *RingBufferSource) Read(_ *Context, start, count int64) (packet.View, bool) {
	return s.buffer.Read(start, count)
}

// PacketQueueSource reads frames from packets pushed into a stream. Packets
// are released once the read position passes them. Packet start positions
// are rounded to whole frames.
type PacketQueueSource struct {
	stream     *packet.Stream
	queue      []queuedPacket
	head       int
	underflows atomic.Int64
	released   atomic.Int64
	meter      *metric.Meter
}

type queuedPacket struct {
	packet.Packet
	start int64
	read  bool
}

func (p *queuedPacket) end() int64 {
	return p.start + p.Length
}

// NewPacketQueueSource returns source draining the stream.
func NewPacketQueueSource(s *packet.Stream, capacity int) *PacketQueueSource {
	return &PacketQueueSource{
		stream: s,
		queue:  make([]queuedPacket, 0, capacity),
	}
}

// Format implements InternalSource.
func (s *PacketQueueSource) Format() format.Format {
	return s.stream.Format()
}

// SetMeter makes the source record underflows on the thread meter. It
// must be called before the source is read.
func (s *PacketQueueSource) SetMeter(m *metric.Meter) {
	s.meter = m
}

// Underflows returns number of packets released without being read.
func (s *PacketQueueSource) Underflows() int64 {
	return s.underflows.Load()
}

// Released returns number of released packets.
func (s *PacketQueueSource) Released() int64 {
	return s.released.Load()
}

// Queued returns number of packets waiting to be read.
func (s *PacketQueueSource) Queued() int {
	return len(s.queue) - s.head
}

// Read implements InternalSource.
func (s *PacketQueueSource) Read(_ *Context, start, count int64) (packet.View, bool) {
	s.drain()
	end := start + count
	for s.head < len(s.queue) {
		p := &s.queue[s.head]
		if p.end() <= start {
			if !p.read {
				s.underflows.Add(1)
				if s.meter != nil {
					s.meter.PacketUnderflow()
				}
			}
			s.pop()
			continue
		}
		if p.start >= end {
			return packet.View{}, false
		}
		from, to := max(p.start, start), min(p.end(), end)
		p.read = true
		v := p.View
		v.Start = format.FixedFromInt(p.start)
		return v.Slice(from-p.start, to-from), true
	}
	return packet.View{}, false
}

// drain applies stream commands.
func (s *PacketQueueSource) drain() {
	for {
		cmd, ok := s.stream.Next()
		if !ok {
			return
		}
		switch cmd.Kind {
		case packet.PushCommand:
			s.push(queuedPacket{Packet: cmd.Packet, start: cmd.Packet.Start.Round()})
		case packet.ClearCommand:
			for s.head < len(s.queue) {
				s.pop()
			}
			if cmd.Fence != nil {
				cmd.Fence.Signal()
			}
		}
	}
}

func (s *PacketQueueSource) push(p queuedPacket) {
	if s.head > 0 && len(s.queue) == cap(s.queue) {
		n := copy(s.queue, s.queue[s.head:])
		for i := n; i < len(s.queue); i++ {
			s.queue[i] = queuedPacket{}
		}
		s.queue = s.queue[:n]
		s.head = 0
	}
	s.queue = append(s.queue, p)
}

// pop releases the oldest packet.
func (s *PacketQueueSource) pop() {
	p := &s.queue[s.head]
	if p.Fence != nil {
		p.Fence.Signal()
	}
	s.released.Add(1)
	*p = queuedPacket{}
	s.head++
	if s.head == len(s.queue) {
		s.queue = s.queue[:0]
		s.head = 0
	}
}
