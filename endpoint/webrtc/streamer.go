package webrtc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/mix/packet"
)

// PacketReader is a source of captured packets, usually a
// stage.PacketWriter. Empty packet marks the end of capture.
type PacketReader interface {
	Next() (packet.Packet, bool)
	Recycle(packet.Packet)
}

// Streamer moves captured packets through framer to the broadcaster.
type Streamer struct {
	framer      *Framer
	broadcaster *Broadcaster
	logger      logrus.FieldLogger
}

// NewStreamer returns streamer which broadcasts frames of framer.
func NewStreamer(fr *Framer, b *Broadcaster, logger logrus.FieldLogger) *Streamer {
	return &Streamer{
		framer:      fr,
		broadcaster: b,
		logger:      logger,
	}
}

// Run streams packets of the reader until the end packet or ctx is done.
// Reader is polled every poll interval when it has no packets.
func (s *Streamer) Run(ctx context.Context, r PacketReader, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	var frames int
	emit := func(frame []int16) {
		frames++
		s.broadcaster.Broadcast(frame)
	}
	defer func() {
		s.framer.Flush(emit)
		s.logger.WithField("frames", frames).Debug("streamer stopped")
	}()
	for {
		for {
			p, ok := r.Next()
			if !ok {
				break
			}
			end := p.Length == 0
			s.framer.Write(p, emit)
			r.Recycle(p)
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
