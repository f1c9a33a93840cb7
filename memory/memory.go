// Package memory provides mapped payload buffers.
package memory

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrInvalidSize is returned when buffer size is not positive.
	ErrInvalidSize = errors.New("invalid buffer size")
	// ErrSharedUnsupported is returned on platforms without memfd.
	ErrSharedUnsupported = errors.New("shared memory is not supported")
)

// Buffer is a mapped payload region.
type Buffer interface {
	// Start returns the whole mapped region.
	Start() []byte
	// Size returns size of the region in bytes.
	Size() int
	// Offset returns the region starting at offset bytes.
	Offset(bytes int) []byte
	Readable() bool
	Writable() bool
	// FlushCache publishes writes to the range for other contexts.
	FlushCache(offset, size int)
	// InvalidateCache makes writes of other contexts to the range
	// visible.
	InvalidateCache(offset, size int)
}

// region implements Buffer over a byte slice.
type region struct {
	data     []byte
	readable bool
	writable bool
	fence    atomic.Uint64
}

func (r *region) Start() []byte  { return r.data }
func (r *region) Size() int      { return len(r.data) }
func (r *region) Readable() bool { return r.readable }
func (r *region) Writable() bool { return r.writable }

func (r *region) Offset(bytes int) []byte {
	if bytes < 0 || bytes > len(r.data) {
		panic(fmt.Sprintf("offset %d outside of buffer size %d", bytes, len(r.data)))
	}
	return r.data[bytes:]
}

// FlushCache and InvalidateCache are full memory barriers.
func (r *region) FlushCache(offset, size int) {
	r.check(offset, size)
	r.fence.Add(1)
}

func (r *region) InvalidateCache(offset, size int) {
	r.check(offset, size)
	r.fence.Load()
}

func (r *region) check(offset, size int) {
	if offset < 0 || size < 0 || offset+size > len(r.data) {
		panic(fmt.Sprintf("range [%d, %d) outside of buffer size %d", offset, offset+size, len(r.data)))
	}
}

// Heap is a buffer allocated in process memory.
type Heap struct {
	region
}

// NewHeap allocates readable and writable buffer.
func NewHeap(size int) (*Heap, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &Heap{
		region: region{
			data:     make([]byte, size),
			readable: true,
			writable: true,
		},
	}, nil
}
