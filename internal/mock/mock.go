// Package mock provides test doubles for mixing pipeline components.
package mock

import (
	"fmt"
	"sync"
)

// Range is a byte range of a cache operation.
type Range struct {
	Offset int
	Size   int
}

// Buffer mocks memory.Buffer and records cache operations.
type Buffer struct {
	Data     []byte
	ReadOnly bool

	mu          sync.Mutex
	flushes     []Range
	invalidates []Range
}

// NewBuffer returns writable buffer of size bytes.
func NewBuffer(size int) *Buffer {
	return &Buffer{Data: make([]byte, size)}
}

func (b *Buffer) Start() []byte  { return b.Data }
func (b *Buffer) Size() int      { return len(b.Data) }
func (b *Buffer) Readable() bool { return true }
func (b *Buffer) Writable() bool { return !b.ReadOnly }

func (b *Buffer) Offset(bytes int) []byte {
	return b.Data[bytes:]
}

func (b *Buffer) FlushCache(offset, size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushes = append(b.flushes, Range{Offset: offset, Size: size})
}

func (b *Buffer) InvalidateCache(offset, size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidates = append(b.invalidates, Range{Offset: offset, Size: size})
}

// Flushes returns recorded FlushCache calls.
func (b *Buffer) Flushes() []Range {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Range(nil), b.flushes...)
}

// Invalidates returns recorded InvalidateCache calls.
func (b *Buffer) Invalidates() []Range {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Range(nil), b.invalidates...)
}

// Reset clears recorded operations.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushes, b.invalidates = nil, nil
}

// WriteKind is a kind of recorded write.
type WriteKind int

const (
	// Data is recorded for WriteData.
	Data WriteKind = iota
	// Silence is recorded for WriteSilence.
	Silence
	// End is recorded for End.
	End
)

func (k WriteKind) String() string {
	switch k {
	case Data:
		return "data"
	case Silence:
		return "silence"
	case End:
		return "end"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Write is a recorded writer call.
type Write struct {
	Kind    WriteKind
	Start   int64
	Length  int64
	Payload []byte
}

func (w Write) String() string {
	if w.Kind == End {
		return w.Kind.String()
	}
	return fmt.Sprintf("%v[%d, %d)", w.Kind, w.Start, w.Start+w.Length)
}

// Writer mocks stage.Writer. It's not safe to inspect while the writing
// thread is running.
type Writer struct {
	counter
	Writes []Write
	// Discard disables recording of payloads.
	Discard bool
}

// WriteData implements stage.Writer.
func (w *Writer) WriteData(start, length int64, payload []byte) {
	var p []byte
	if !w.Discard {
		p = append(p, payload...)
	}
	w.Writes = append(w.Writes, Write{Kind: Data, Start: start, Length: length, Payload: p})
	w.advance(length)
}

// WriteSilence implements stage.Writer.
func (w *Writer) WriteSilence(start, length int64) {
	w.Writes = append(w.Writes, Write{Kind: Silence, Start: start, Length: length})
	w.advance(length)
}

// End implements stage.Writer.
func (w *Writer) End() {
	w.Writes = append(w.Writes, Write{Kind: End})
}

// Kinds returns kinds of recorded writes.
func (w *Writer) Kinds() []WriteKind {
	kinds := make([]WriteKind, 0, len(w.Writes))
	for _, write := range w.Writes {
		kinds = append(kinds, write.Kind)
	}
	return kinds
}

// Reset clears recorded writes.
func (w *Writer) Reset() {
	w.Writes = nil
	w.reset()
}

// counter counts calls and frames.
type counter struct {
	calls  int
	frames int64
}

func (c *counter) reset() {
	c.calls, c.frames = 0, 0
}

func (c *counter) advance(frames int64) {
	c.calls++
	c.frames += frames
}

// Count returns number of writes and written frames.
func (c *counter) Count() (int, int64) {
	return c.calls, c.frames
}
