package wav

import (
	"context"
	"os"
	"time"

	gowav "github.com/go-audio/wav"

	"pipelined.dev/mix/format"
	"pipelined.dev/mix/packet"
)

// wavPCM is the PCM audio format tag of wav header.
const wavPCM = 1

// PacketReader is a source of captured packets, usually a
// stage.PacketWriter. Empty packet marks the end of capture.
type PacketReader interface {
	Next() (packet.Packet, bool)
	Recycle(packet.Packet)
}

// Sink saves captured packets to wav file. Gaps between packets are filled
// with silence.
type Sink struct {
	file    *os.File
	encoder *gowav.Encoder
	format  format.Format
	next    int64
	started bool
	frames  int64
}

// CreateSink creates wav file for frames of format f. Float and 8 bit
// samples are saved with 16 bits.
func CreateSink(path string, f format.Format) (*Sink, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	depth := 16
	if f.SampleType == format.Signed24In32 {
		depth = 24
	}
	return &Sink{
		file:    file,
		encoder: gowav.NewEncoder(file, f.FramesPerSecond, depth, f.Channels, wavPCM),
		format:  f,
	}, nil
}

// Write saves packet frames.
func (s *Sink) Write(p packet.Packet) error {
	if p.Length == 0 {
		return nil
	}
	start := p.Start.Floor()
	if s.started && start > s.next {
		if err := s.silence(start - s.next); err != nil {
			return err
		}
	}
	if err := s.encoder.Write(s.format.IntBuffer(p.Payload)); err != nil {
		return err
	}
	s.started = true
	s.next = start + p.Length
	s.frames += p.Length
	return nil
}

func (s *Sink) silence(frames int64) error {
	b := make([]byte, frames*int64(s.format.BytesPerFrame()))
	s.format.Silence(b)
	s.frames += frames
	return s.encoder.Write(s.format.IntBuffer(b))
}

// Frames returns number of saved frames.
func (s *Sink) Frames() int64 {
	return s.frames
}

// Drain saves packets of the reader until the end packet or ctx is done.
// Reader is polled every poll interval when it has no packets.
func (s *Sink) Drain(ctx context.Context, r PacketReader, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		for {
			p, ok := r.Next()
			if !ok {
				break
			}
			err := s.Write(p)
			end := p.Length == 0
			r.Recycle(p)
			if err != nil {
				return err
			}
			if end {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close finalizes wav header and closes the file.
func (s *Sink) Close() error {
	if err := s.encoder.Close(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
