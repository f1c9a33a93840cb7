// Package portaudio plays output ring buffers on the default portaudio
// device.
package portaudio

import (
	"sync"
	"sync/atomic"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"pipelined.dev/mix/format"
	"pipelined.dev/mix/ringbuffer"
)

// Reader converts ring buffer frames into float samples. Each Fill reads
// frames right after the previous one.
type Reader struct {
	buffer   *ringbuffer.RingBuffer
	format   format.Format
	position atomic.Int64
}

// NewReader returns reader starting at frame start.
func NewReader(rb *ringbuffer.RingBuffer, start int64) *Reader {
	r := &Reader{
		buffer: rb,
		format: rb.Format(),
	}
	r.position.Store(start)
	return r
}

// Position returns the next frame to read.
func (r *Reader) Position() int64 {
	return r.position.Load()
}

// Fill reads len(out)/channels frames into out.
func (r *Reader) Fill(out []float32) {
	frames := int64(len(out) / r.format.Channels)
	start := r.position.Load()
	for read := int64(0); read < frames; {
		v, ok := r.buffer.Read(start+read, frames-read)
		if !ok {
			break
		}
		offset := read * int64(r.format.Channels)
		r.format.Float32s(out[offset:], v.Payload)
		read += v.Length
	}
	r.position.Store(start + frames)
}

// Device plays ring buffer frames on the default output device.
type Device struct {
	reader *Reader
	stream *pa.Stream
	once   sync.Once
}

// Open initializes portaudio and opens default output stream which pulls
// framesPerBuffer frames per callback.
func Open(r *Reader, framesPerBuffer int) (*Device, error) {
	if err := pa.Initialize(); err != nil {
		return nil, err
	}
	f := r.format
	stream, err := pa.OpenDefaultStream(0, f.Channels, float64(f.FramesPerSecond), framesPerBuffer, r.Fill)
	if err != nil {
		pa.Terminate()
		return nil, err
	}
	return &Device{
		reader: r,
		stream: stream,
	}, nil
}

// Start starts playback.
func (d *Device) Start() error {
	return d.stream.Start()
}

// Latency returns output latency reported by the device. It is the
// external delay of consumer writing the ring buffer.
func (d *Device) Latency() time.Duration {
	return d.stream.Info().OutputLatency
}

// Close stops playback and terminates portaudio.
func (d *Device) Close() error {
	var err error
	d.once.Do(func() {
		if err = d.stream.Stop(); err != nil {
			return
		}
		if err = d.stream.Close(); err != nil {
			return
		}
		err = pa.Terminate()
	})
	return err
}
