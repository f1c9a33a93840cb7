package packet

import (
	"errors"
	"fmt"

	"pipelined.dev/mix/format"
)

var (
	// ErrQueueFull is returned when stream has no room for a command.
	ErrQueueFull = errors.New("packet queue is full")
	// ErrFormatMismatch is returned when packet format differs from
	// stream format.
	ErrFormatMismatch = errors.New("packet format mismatch")
	// ErrEmptyPacket is returned for packets without frames.
	ErrEmptyPacket = errors.New("empty packet")
)

// NoSlot marks packets which payload is not owned by a slab.
const NoSlot = -1

// Packet is a view with completion fence signaled once the payload can be
// reused.
type Packet struct {
	View
	Fence *Fence
	Slot  int
}

// CommandKind is a kind of stream command.
type CommandKind int

const (
	// PushCommand appends packet to the stream.
	PushCommand CommandKind = iota + 1
	// ClearCommand releases all queued packets, then signals the fence.
	ClearCommand
)

// Command is a client request delivered to the mix thread.
type Command struct {
	Kind   CommandKind
	Packet Packet
	Fence  *Fence
}

// Stream is an inbound FIFO of client commands. Push and Clear can be called
// from any goroutine, Next is called only by the mix thread reading the
// stream.
type Stream struct {
	format   format.Format
	commands *Queue[Command]
}

// NewStream returns stream of packets in format f.
func NewStream(f format.Format, capacity uint64) (*Stream, error) {
	commands, err := NewQueue[Command](capacity)
	if err != nil {
		return nil, err
	}
	return &Stream{
		format:   f,
		commands: commands,
	}, nil
}

// Format returns format of stream packets.
func (s *Stream) Format() format.Format {
	return s.format
}

// Push enqueues packet.
func (s *Stream) Push(p Packet) error {
	if p.Format != s.format {
		return fmt.Errorf("%w: %v != %v", ErrFormatMismatch, p.Format, s.format)
	}
	if p.Length <= 0 {
		return ErrEmptyPacket
	}
	if !s.commands.Push(Command{Kind: PushCommand, Packet: p, Fence: p.Fence}) {
		return ErrQueueFull
	}
	return nil
}

// Clear releases all packets pushed before it. Fence is signaled once they
// are released.
func (s *Stream) Clear(fence *Fence) error {
	if !s.commands.Push(Command{Kind: ClearCommand, Fence: fence}) {
		return ErrQueueFull
	}
	return nil
}

// Next returns the oldest command.
func (s *Stream) Next() (Command, bool) {
	return s.commands.Pop()
}
