package stage

import (
	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/ringbuffer"
)

// SplitterArgs configure new splitter.
type SplitterArgs struct {
	Name      string
	Format    format.Format
	Reference clock.Clock
	Direction Direction
	Buffer    ringbuffer.Buffer
	MaxFrames int64
}

// Splitter copies frames of its consumer into a ring buffer that any number
// of producers read independently. Consumer and producers are started with
// the same command, so they share one frame timeline.
type Splitter struct {
	name     string
	ring     *ringbuffer.RingBuffer
	consumer *Consumer
	start    StartCommand
}

// NewSplitter returns splitter with started consumer.
func NewSplitter(args SplitterArgs) (*Splitter, error) {
	rb, err := ringbuffer.New(ringbuffer.Args{
		Format:    args.Format,
		Reference: args.Reference,
		Buffer:    args.Buffer,
	})
	if err != nil {
		return nil, err
	}
	s := &Splitter{
		name: args.Name,
		ring: rb,
		consumer: NewConsumer(ConsumerArgs{
			Name:      args.Name + ".consumer",
			Format:    args.Format,
			Reference: args.Reference,
			Direction: args.Direction,
			Writer:    NewRingBufferWriter(rb),
			MaxFrames: args.MaxFrames,
		}),
		start: StartCommand{
			StartTime: &RealTime{Clock: Reference, Time: args.Reference.Now()},
		},
	}
	s.consumer.Start(s.start)
	return s, nil
}

// Name returns splitter name.
func (s *Splitter) Name() string { return s.name }

// Consumer returns the stage that writes into the ring buffer.
func (s *Splitter) Consumer() *Consumer { return s.consumer }

// RingBuffer returns the shared ring buffer.
func (s *Splitter) RingBuffer() *ringbuffer.RingBuffer { return s.ring }

// NewProducer returns started producer reading the ring buffer.
func (s *Splitter) NewProducer(name string) *Producer {
	p := NewProducer(ProducerArgs{
		Name:      name,
		Reference: s.ring.Reference(),
		Source:    NewRingBufferSource(s.ring),
	})
	p.Start(s.start)
	return p
}
