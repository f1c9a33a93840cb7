package packet

import (
	"errors"
	"fmt"

	"pipelined.dev/mix/memory"
)

// ErrInvalidSlab is returned when slots do not fit into the buffer.
var ErrInvalidSlab = errors.New("invalid slab layout")

// Slot is a payload region owned by whoever acquired it.
type Slot struct {
	Index   int
	Payload []byte
}

// Slab carves fixed size payload slots from a buffer. Acquire and Recycle
// are lock-free and can be called from different goroutines.
type Slab struct {
	buffer   memory.Buffer
	slotSize int
	slots    int
	free     *Queue[int]
}

// NewSlab splits buffer into slots of slotSize bytes. Number of slots is
// rounded down to a power of two.
func NewSlab(buffer memory.Buffer, slotSize int) (*Slab, error) {
	if slotSize <= 0 || buffer.Size() < 2*slotSize {
		return nil, fmt.Errorf("%w: slot size %d buffer size %d", ErrInvalidSlab, slotSize, buffer.Size())
	}
	slots := 2
	for slots*2*slotSize <= buffer.Size() {
		slots *= 2
	}
	free, err := NewQueue[int](uint64(slots))
	if err != nil {
		return nil, err
	}
	for i := 0; i < slots; i++ {
		free.Push(i)
	}
	return &Slab{
		buffer:   buffer,
		slotSize: slotSize,
		slots:    slots,
		free:     free,
	}, nil
}

// Acquire returns a free slot. Returns false if all slots are in use.
func (s *Slab) Acquire() (Slot, bool) {
	i, ok := s.free.Pop()
	if !ok {
		return Slot{}, false
	}
	return s.slot(i), true
}

// Recycle returns slot to the slab.
func (s *Slab) Recycle(slot Slot) {
	if slot.Index < 0 || slot.Index >= s.slots {
		panic(fmt.Sprintf("recycle unknown slot %d", slot.Index))
	}
	if !s.free.Push(slot.Index) {
		panic(fmt.Sprintf("slot %d recycled twice", slot.Index))
	}
}

// Slots returns total number of slots.
func (s *Slab) Slots() int {
	return s.slots
}

// SlotSize returns size of a slot in bytes.
func (s *Slab) SlotSize() int {
	return s.slotSize
}

// Buffer returns underlying buffer.
func (s *Slab) Buffer() memory.Buffer {
	return s.buffer
}

func (s *Slab) slot(i int) Slot {
	offset := i * s.slotSize
	return Slot{
		Index:   i,
		Payload: s.buffer.Offset(offset)[:s.slotSize],
	}
}
