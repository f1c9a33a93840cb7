package wav_test

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/mix/endpoint/wav"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/packet"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var stereo = format.Format{SampleType: format.Signed16, Channels: 2, FramesPerSecond: 48000}

// ramp returns frames where sample i has value i+offset.
func ramp(f format.Format, frames, offset int) []byte {
	b := make([]byte, frames*f.BytesPerFrame())
	for i := 0; i < frames*f.Channels; i++ {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(int16(i+offset)))
	}
	return b
}

func view(start, length int64, payload []byte) packet.Packet {
	return packet.Packet{
		View: packet.View{
			Format:  stereo,
			Start:   format.FixedFromInt(start),
			Length:  length,
			Payload: payload,
		},
		Slot: packet.NoSlot,
	}
}

type collected struct {
	start   int64
	payload []byte
}

// drain plays the mix thread: it reads the stream and releases packets
// until done is closed.
func drain(s *packet.Stream, done <-chan struct{}) <-chan []collected {
	out := make(chan []collected, 1)
	go func() {
		var result []collected
		for {
			cmd, ok := s.Next()
			if ok {
				result = append(result, collected{
					start:   cmd.Packet.Start.Floor(),
					payload: append([]byte(nil), cmd.Packet.Payload...),
				})
				cmd.Fence.Signal()
				continue
			}
			select {
			case <-done:
				out <- result
				return
			default:
				time.Sleep(100 * time.Microsecond)
			}
		}
	}()
	return out
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	sink, err := wav.CreateSink(path, stereo)
	require.NoError(t, err)
	require.NoError(t, sink.Write(view(0, 100, ramp(stereo, 100, 0))))
	require.NoError(t, sink.Write(view(150, 50, ramp(stereo, 50, 200))))
	assert.Equal(t, int64(200), sink.Frames())
	require.NoError(t, sink.Close())

	feeder, err := wav.OpenFeeder(path, 64, 4)
	require.NoError(t, err)
	defer feeder.Close()
	assert.Equal(t, stereo, feeder.Format())

	stream, err := packet.NewStream(feeder.Format(), 4)
	require.NoError(t, err)
	done := make(chan struct{})
	result := drain(stream, done)
	frames, err := feeder.Feed(context.Background(), stream)
	close(done)
	require.NoError(t, err)
	assert.Equal(t, int64(200), frames)

	packets := <-result
	require.Len(t, packets, 4)
	var all []byte
	for i, p := range packets {
		assert.Equal(t, int64(i*64), p.start)
		all = append(all, p.payload...)
	}
	silence := make([]byte, 50*stereo.BytesPerFrame())
	expected := append(append(ramp(stereo, 100, 0), silence...), ramp(stereo, 50, 200)...)
	assert.Equal(t, expected, all)
}

func TestFeedCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	sink, err := wav.CreateSink(path, stereo)
	require.NoError(t, err)
	require.NoError(t, sink.Write(view(0, 256, ramp(stereo, 256, 0))))
	require.NoError(t, sink.Close())

	feeder, err := wav.OpenFeeder(path, 32, 2)
	require.NoError(t, err)
	defer feeder.Close()
	stream, err := packet.NewStream(feeder.Format(), 8)
	require.NoError(t, err)

	// Nobody releases packets.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	frames, err := feeder.Feed(ctx, stream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(64), frames)
}

func TestOpenInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff file"), 0o600))
	_, err := wav.OpenFeeder(path, 64, 4)
	assert.ErrorIs(t, err, wav.ErrInvalidFile)

	_, err = wav.OpenFeeder(filepath.Join(t.TempDir(), "missing.wav"), 64, 4)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateSinkInvalidFormat(t *testing.T) {
	_, err := wav.CreateSink(filepath.Join(t.TempDir(), "out.wav"), format.Format{})
	assert.ErrorIs(t, err, format.ErrUnsupportedSampleType)
}

type reader struct {
	packets  []packet.Packet
	recycled int
}

func (r *reader) Next() (packet.Packet, bool) {
	if len(r.packets) == 0 {
		return packet.Packet{}, false
	}
	p := r.packets[0]
	r.packets = r.packets[1:]
	return p, true
}

func (r *reader) Recycle(packet.Packet) { r.recycled++ }

func TestDrain(t *testing.T) {
	sink, err := wav.CreateSink(filepath.Join(t.TempDir(), "out.wav"), stereo)
	require.NoError(t, err)
	defer sink.Close()

	r := &reader{packets: []packet.Packet{
		view(10, 20, ramp(stereo, 20, 0)),
		view(30, 20, ramp(stereo, 20, 40)),
		{View: packet.View{Format: stereo}, Slot: packet.NoSlot},
		view(50, 20, ramp(stereo, 20, 80)),
	}}
	require.NoError(t, sink.Drain(context.Background(), r, time.Millisecond))
	assert.Equal(t, int64(40), sink.Frames())
	assert.Equal(t, 3, r.recycled)
	assert.Len(t, r.packets, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.packets = nil
	assert.ErrorIs(t, sink.Drain(ctx, r, time.Millisecond), context.Canceled)
}
