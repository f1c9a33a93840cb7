package packet

import (
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrInvalidCapacity is returned when queue capacity is not a power of two.
var ErrInvalidCapacity = errors.New("queue capacity must be a power of two and >= 2")

type cell[T any] struct {
	sequence atomic.Uint64
	value    T
}

// Queue is a bounded lock-free multi-producer multi-consumer FIFO. Each
// cell carries a sequence number telling whether it is free for the lap
// of a producer or full for the lap of a consumer.
type Queue[T any] struct {
	capacity uint64
	mask     uint64

	_    [48]byte
	head atomic.Uint64
	_    [48]byte
	tail atomic.Uint64
	_    [48]byte

	cells []cell[T]
}

// NewQueue returns empty queue.
func NewQueue[T any](capacity uint64) (*Queue[T], error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}
	cells := make([]cell[T], capacity)
	for i := range cells {
		cells[i].sequence.Store(uint64(i))
	}
	return &Queue[T]{
		capacity: capacity,
		mask:     capacity - 1,
		cells:    cells,
	}, nil
}

// Push appends value. Returns false if the queue is full.
func (q *Queue[T]) Push(value T) bool {
	for {
		pos := q.tail.Load()
		c := &q.cells[pos&q.mask]
		delta := int64(c.sequence.Load()) - int64(pos)
		switch {
		case delta == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				c.value = value
				c.sequence.Store(pos + 1)
				return true
			}
		case delta < 0:
			return false
		default:
			runtime.Gosched()
		}
	}
}

// Pop removes the oldest value. Returns false if the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	for {
		pos := q.head.Load()
		c := &q.cells[pos&q.mask]
		delta := int64(c.sequence.Load()) - int64(pos+1)
		switch {
		case delta == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				value := c.value
				c.value = zero
				c.sequence.Store(pos + q.capacity)
				return value, true
			}
		case delta < 0:
			return zero, false
		default:
			runtime.Gosched()
		}
	}
}

// Capacity returns maximum number of queued values.
func (q *Queue[T]) Capacity() int {
	return int(q.capacity)
}
