// Package wav connects wav files to mixing pipelines. Feeder pushes file
// frames into a packet stream, Sink writes captured packets into a file.
package wav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"pipelined.dev/mix/format"
	"pipelined.dev/mix/memory"
	"pipelined.dev/mix/packet"
)

var (
	// ErrInvalidFile is returned when file is not a valid wav.
	ErrInvalidFile = errors.New("invalid wav file")
	// ErrUnsupportedBitDepth is returned for bit depths other than 16 and
	// 24.
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
)

// retry is a poll interval used when the stream is full and no packet is
// waiting for release.
const retry = time.Millisecond

// Feeder reads wav file and pushes its frames as packets. Packet payloads
// are carved from a slab and reused once released by the mix thread.
type Feeder struct {
	file    *os.File
	decoder *gowav.Decoder
	format  format.Format
	slab    *packet.Slab
	buf     *audio.IntBuffer
	pending []pendingPacket
}

type pendingPacket struct {
	fence *packet.Fence
	slot  packet.Slot
}

// OpenFeeder opens wav file. Every packet carries up to packetFrames frames,
// at most slots packets are in flight.
func OpenFeeder(path string, packetFrames, slots int) (*Feeder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	decoder := gowav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidFile)
	}
	st, err := sampleType(int(decoder.BitDepth))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f, err := format.New(st, int(decoder.NumChans), int(decoder.SampleRate))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slotSize := packetFrames * f.BytesPerFrame()
	heap, err := memory.NewHeap(slots * slotSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	slab, err := packet.NewSlab(heap, slotSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Feeder{
		file:    file,
		decoder: decoder,
		format:  f,
		slab:    slab,
		buf: &audio.IntBuffer{
			Format:         f.PCM(),
			Data:           make([]int, packetFrames*f.Channels),
			SourceBitDepth: int(decoder.BitDepth),
		},
		pending: make([]pendingPacket, 0, slab.Slots()),
	}, nil
}

func sampleType(bitDepth int) (format.SampleType, error) {
	switch bitDepth {
	case 16:
		return format.Signed16, nil
	case 24:
		return format.Signed24In32, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
}

// Format returns format of pushed packets.
func (f *Feeder) Format() format.Format {
	return f.format
}

// Feed pushes all file frames into the stream, starting at frame zero. It
// returns once every pushed packet is released or ctx is done. Returns
// number of pushed frames.
func (f *Feeder) Feed(ctx context.Context, s *packet.Stream) (int64, error) {
	var pos int64
	for {
		slot, err := f.acquire(ctx)
		if err != nil {
			return pos, err
		}
		n, err := f.decoder.PCMBuffer(f.buf)
		if err != nil && !errors.Is(err, io.EOF) {
			f.slab.Recycle(slot)
			return pos, err
		}
		if n == 0 {
			f.slab.Recycle(slot)
			break
		}
		frames := f.format.PutIntBuffer(slot.Payload, &audio.IntBuffer{
			Data:           f.buf.Data[:n],
			SourceBitDepth: f.buf.SourceBitDepth,
		})
		if frames == 0 {
			f.slab.Recycle(slot)
			break
		}
		p := packet.Packet{
			View: packet.View{
				Format:  f.format,
				Start:   format.FixedFromInt(pos),
				Length:  int64(frames),
				Payload: slot.Payload[:frames*f.format.BytesPerFrame()],
			},
			Fence: packet.NewFence(),
			Slot:  slot.Index,
		}
		if err := f.push(ctx, s, p); err != nil {
			f.slab.Recycle(slot)
			return pos, err
		}
		f.pending = append(f.pending, pendingPacket{fence: p.Fence, slot: slot})
		pos += int64(frames)
	}
	for len(f.pending) > 0 {
		if err := f.waitOldest(ctx); err != nil {
			return pos, err
		}
	}
	return pos, nil
}

func (f *Feeder) acquire(ctx context.Context) (packet.Slot, error) {
	for {
		f.recycle()
		if slot, ok := f.slab.Acquire(); ok {
			return slot, nil
		}
		if err := f.waitOldest(ctx); err != nil {
			return packet.Slot{}, err
		}
	}
}

func (f *Feeder) push(ctx context.Context, s *packet.Stream, p packet.Packet) error {
	for {
		err := s.Push(p)
		if !errors.Is(err, packet.ErrQueueFull) {
			return err
		}
		if err := f.waitOldest(ctx); err != nil {
			return err
		}
	}
}

// waitOldest blocks until the oldest pending packet is released.
func (f *Feeder) waitOldest(ctx context.Context) error {
	if len(f.pending) == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
			return nil
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.pending[0].fence.Done():
	}
	f.recycle()
	return nil
}

// recycle returns released slots to the slab.
func (f *Feeder) recycle() {
	var i int
	for i < len(f.pending) && f.pending[i].fence.Signaled() {
		f.slab.Recycle(f.pending[i].slot)
		i++
	}
	n := copy(f.pending, f.pending[i:])
	f.pending = f.pending[:n]
}

// Close closes the file.
func (f *Feeder) Close() error {
	return f.file.Close()
}
