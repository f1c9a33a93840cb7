package mix

import (
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/packet"
	"pipelined.dev/mix/ringbuffer"
	"pipelined.dev/mix/stage"
)

// Option configures the graph.
type Option func(*Graph)

// WithLogger sets graph logger. Threads log with the same logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

// ThreadOptions configure new mix thread.
type ThreadOptions struct {
	Name         string
	Period       time.Duration
	CPUPerPeriod time.Duration
	// Timer drives the thread, real timer if nil.
	Timer clock.Timer
}

// defaultStreamCapacity is the number of packets a packet stream source
// keeps queued.
const defaultStreamCapacity = 64

// ProducerOptions configure new producer. Exactly one of RingBuffer and
// Stream must be set.
type ProducerOptions struct {
	Name      string
	Format    format.Format
	Reference clock.Clock
	Direction stage.Direction
	// RingBuffer can be read by any number of destinations.
	RingBuffer *ringbuffer.RingBuffer
	// Stream has exactly one destination.
	Stream *packet.Stream
	// StreamCapacity is the number of queued packets, 64 if zero.
	StreamCapacity int
	// MaxDestinations limits ring buffer fan-out, unlimited if zero.
	MaxDestinations int
	// ExternalDelay is the capture delay of input pipelines.
	ExternalDelay time.Duration
}

// ConsumerOptions configure new consumer.
type ConsumerOptions struct {
	Name      string
	Format    format.Format
	Reference clock.Clock
	Direction stage.Direction
	Thread    xid.ID
	Writer    stage.Writer
	// ExternalDelay is the presentation delay of output pipelines.
	ExternalDelay time.Duration
	// MaxSources limits number of summed sources, 1 if zero.
	MaxSources int
}

// SplitterOptions configure new splitter.
type SplitterOptions struct {
	Name      string
	Format    format.Format
	Reference clock.Clock
	Direction stage.Direction
	Thread    xid.ID
	// Frames is the ring buffer size. It must fit the consumer period and
	// the lag of the slowest destination.
	Frames int64
}
