package mix

import (
	"fmt"
	"time"

	"github.com/rs/xid"

	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/memory"
	"pipelined.dev/mix/metric"
	"pipelined.dev/mix/mutable"
	"pipelined.dev/mix/packet"
	"pipelined.dev/mix/ringbuffer"
	"pipelined.dev/mix/stage"
	"pipelined.dev/mix/timeline"
)

// Node is a graph node. Implementations are ProducerNode, ConsumerNode and
// SplitterNode.
type Node interface {
	ID() xid.ID
	Name() string
	Format() format.Format
	Reference() clock.Clock
	Direction() stage.Direction
	base() *nodeBase
}

type (
	// source can be the source of an edge.
	source interface {
		Node
		// newChild returns producer stage reading frames of the node.
		newChild(name string, meter *metric.Meter) *stage.Producer
		// maxDestinations returns zero if unlimited.
		maxDestinations() int
	}

	// destination can be the destination of an edge.
	destination interface {
		Node
		consumer() *stage.Consumer
		thread() *thread
		maxSources() int
	}
)

type nodeBase struct {
	id        xid.ID
	name      string
	format    format.Format
	reference clock.Clock
	direction stage.Direction
	graph     *Graph
	incoming  []*edge
	outgoing  []*edge
}

func newNodeBase(g *Graph, name string, f format.Format, ref clock.Clock, d stage.Direction) (nodeBase, error) {
	if err := f.Validate(); err != nil {
		return nodeBase{}, fmt.Errorf("node %s: %w", name, err)
	}
	if ref == nil {
		return nodeBase{}, fmt.Errorf("node %s without reference clock: %w", name, ErrInvalidOptions)
	}
	return nodeBase{
		id:        xid.New(),
		name:      name,
		format:    f,
		reference: ref,
		direction: d,
		graph:     g,
	}, nil
}

// ID returns node id.
func (n *nodeBase) ID() xid.ID { return n.id }

// Name returns node name.
func (n *nodeBase) Name() string { return n.name }

// Format returns node format.
func (n *nodeBase) Format() format.Format { return n.format }

// Reference returns node reference clock.
func (n *nodeBase) Reference() clock.Clock { return n.reference }

// Direction returns pipeline direction.
func (n *nodeBase) Direction() stage.Direction { return n.direction }

func (n *nodeBase) base() *nodeBase { return n }

// stageDelays are the delays last pushed to a consumer stage.
type stageDelays struct {
	downstream time.Duration
	upstream   time.Duration
}

// ProducerNode is a source of frames. Every outgoing edge gets its own
// producer stage, executed on the thread of the destination.
type ProducerNode struct {
	nodeBase
	ring           *ringbuffer.RingBuffer
	stream         *packet.Stream
	streamCapacity int
	maxDest        int
	externalDelay  time.Duration
}

// CreateProducer adds producer node.
func (g *Graph) CreateProducer(opts ProducerOptions) (*ProducerNode, error) {
	if (opts.RingBuffer == nil) == (opts.Stream == nil) {
		return nil, fmt.Errorf("producer %s needs either ring buffer or stream: %w", opts.Name, ErrInvalidOptions)
	}
	ref := opts.Reference
	dataFormat := opts.Format
	if opts.RingBuffer != nil {
		if ref == nil {
			ref = opts.RingBuffer.Reference()
		}
		dataFormat = opts.RingBuffer.Format()
	} else {
		dataFormat = opts.Stream.Format()
	}
	if dataFormat != opts.Format {
		return nil, fmt.Errorf("producer %s format %v with data format %v: %w", opts.Name, opts.Format, dataFormat, ErrIncompatibleFormats)
	}
	capacity := opts.StreamCapacity
	if capacity == 0 {
		capacity = defaultStreamCapacity
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	b, err := newNodeBase(g, opts.Name, opts.Format, ref, opts.Direction)
	if err != nil {
		return nil, err
	}
	n := &ProducerNode{
		nodeBase:       b,
		ring:           opts.RingBuffer,
		stream:         opts.Stream,
		streamCapacity: capacity,
		maxDest:        opts.MaxDestinations,
		externalDelay:  opts.ExternalDelay,
	}
	g.nodes[n.id] = n
	g.logger.WithField("node", n.name).Debug("producer created")
	return n, nil
}

func (n *ProducerNode) newChild(name string, meter *metric.Meter) *stage.Producer {
	var src stage.InternalSource
	if n.ring != nil {
		src = stage.NewRingBufferSource(n.ring)
	} else {
		s := stage.NewPacketQueueSource(n.stream, n.streamCapacity)
		s.SetMeter(meter)
		src = s
	}
	return stage.NewProducer(stage.ProducerArgs{
		Name:      name,
		Reference: n.reference,
		Source:    src,
	})
}

func (n *ProducerNode) maxDestinations() int {
	if n.stream != nil {
		return 1
	}
	return n.maxDest
}

// PacketUnderflows returns number of stream packets released without being
// read by the stages of current edges.
func (n *ProducerNode) PacketUnderflows() int64 {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	var total int64
	for _, e := range n.outgoing {
		if s, ok := e.child.Source().(*stage.PacketQueueSource); ok {
			total += s.Underflows()
		}
	}
	return total
}

// Destinations returns number of outgoing edges.
func (n *ProducerNode) Destinations() int {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	return len(n.outgoing)
}

// Start starts every producer stage of the node. Callback is called once,
// after the last stage applied or canceled the command, with the first
// error.
func (n *ProducerNode) Start(cmd stage.StartCommand) error {
	g := n.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := n.fanOut(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	callback := newFanIn(len(n.outgoing), cmd.Callback)
	ms := make([]mutable.Mutation, 0, len(n.outgoing))
	for _, e := range n.outgoing {
		child, cmd := e.child, cmd
		cmd.Callback = callback
		ms = append(ms, e.dest.thread().Context().Mutate(func() {
			child.Start(cmd)
		}))
	}
	g.push(ms...)
	return nil
}

// Stop stops every producer stage of the node. Callback is called as for
// Start.
func (n *ProducerNode) Stop(cmd stage.StopCommand) error {
	g := n.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := n.fanOut(); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	callback := newFanIn(len(n.outgoing), cmd.Callback)
	ms := make([]mutable.Mutation, 0, len(n.outgoing))
	for _, e := range n.outgoing {
		child, cmd := e.child, cmd
		cmd.Callback = callback
		ms = append(ms, e.dest.thread().Context().Mutate(func() {
			child.Stop(cmd)
		}))
	}
	g.push(ms...)
	return nil
}

func (n *ProducerNode) fanOut() error {
	if err := n.graph.check(n); err != nil {
		return err
	}
	if len(n.outgoing) == 0 {
		return fmt.Errorf("producer %s: %w", n.name, ErrNotConnected)
	}
	return nil
}

// SetExternalDelay changes capture delay and propagates it.
func (n *ProducerNode) SetExternalDelay(d time.Duration) error {
	g := n.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(n); err != nil {
		return err
	}
	n.externalDelay = d
	g.propagateDelays()
	return nil
}

// ConsumerNode is a terminal node. Its consumer stage runs on the assigned
// thread.
type ConsumerNode struct {
	nodeBase
	stage         *stage.Consumer
	th            *thread
	maxSrc        int
	externalDelay time.Duration
	delays        stageDelays
}

// CreateConsumer adds consumer node and assigns its stage to the thread.
func (g *Graph) CreateConsumer(opts ConsumerOptions) (*ConsumerNode, error) {
	if opts.Writer == nil {
		return nil, fmt.Errorf("consumer %s without writer: %w", opts.Name, ErrInvalidOptions)
	}
	maxSources := opts.MaxSources
	if maxSources == 0 {
		maxSources = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t, err := g.thread(opts.Thread)
	if err != nil {
		return nil, fmt.Errorf("consumer %s: %w", opts.Name, err)
	}
	b, err := newNodeBase(g, opts.Name, opts.Format, opts.Reference, opts.Direction)
	if err != nil {
		return nil, err
	}
	n := &ConsumerNode{
		nodeBase: b,
		stage: stage.NewConsumer(stage.ConsumerArgs{
			Name:      opts.Name,
			Format:    opts.Format,
			Reference: opts.Reference,
			Direction: opts.Direction,
			Writer:    opts.Writer,
			MaxFrames: opts.Format.IntegerFramesPer(t.Period(), timeline.Ceiling),
		}),
		th:            t,
		maxSrc:        maxSources,
		externalDelay: opts.ExternalDelay,
	}
	g.nodes[n.id] = n
	t.nodes++
	c := n.stage
	g.push(t.Context().Mutate(func() {
		t.AddConsumer(c)
	}))
	g.propagateDelays()
	g.logger.WithFields(map[string]interface{}{"node": n.name, "thread": t.Name()}).Debug("consumer created")
	return n, nil
}

func (n *ConsumerNode) consumer() *stage.Consumer { return n.stage }
func (n *ConsumerNode) thread() *thread           { return n.th }
func (n *ConsumerNode) maxSources() int           { return n.maxSrc }

// Stage returns consumer stage. It must be accessed only by mutators
// executed on the node thread.
func (n *ConsumerNode) Stage() *stage.Consumer { return n.stage }

// Start starts consumer stage.
func (n *ConsumerNode) Start(cmd stage.StartCommand) error {
	g := n.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(n); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	c, t := n.stage, n.th
	g.push(t.Context().Mutate(func() {
		c.Start(cmd)
		t.NotifyConsumerStarting(c)
	}))
	return nil
}

// Stop stops consumer stage.
func (n *ConsumerNode) Stop(cmd stage.StopCommand) error {
	g := n.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(n); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	c := n.stage
	g.push(n.th.Context().Mutate(func() {
		c.Stop(cmd)
	}))
	return nil
}

// SetExternalDelay changes presentation delay and propagates it.
func (n *ConsumerNode) SetExternalDelay(d time.Duration) error {
	g := n.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(n); err != nil {
		return err
	}
	n.externalDelay = d
	g.propagateDelays()
	return nil
}

// SplitterNode copies frames of its single source to any number of
// destinations. Its consumer stage runs on the assigned thread and starts
// when created.
type SplitterNode struct {
	nodeBase
	splitter *stage.Splitter
	th       *thread
	delays   stageDelays
}

// CreateSplitter adds splitter node.
func (g *Graph) CreateSplitter(opts SplitterOptions) (*SplitterNode, error) {
	if opts.Frames <= 0 {
		return nil, fmt.Errorf("splitter %s with %d frames: %w", opts.Name, opts.Frames, ErrInvalidOptions)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t, err := g.thread(opts.Thread)
	if err != nil {
		return nil, fmt.Errorf("splitter %s: %w", opts.Name, err)
	}
	b, err := newNodeBase(g, opts.Name, opts.Format, opts.Reference, opts.Direction)
	if err != nil {
		return nil, err
	}
	heap, err := memory.NewHeap(int(opts.Frames) * opts.Format.BytesPerFrame())
	if err != nil {
		return nil, fmt.Errorf("splitter %s: %w", opts.Name, err)
	}
	s, err := stage.NewSplitter(stage.SplitterArgs{
		Name:      opts.Name,
		Format:    opts.Format,
		Reference: opts.Reference,
		Direction: opts.Direction,
		Buffer: ringbuffer.Buffer{
			Memory:         heap,
			ProducerFrames: opts.Frames / 2,
			ConsumerFrames: opts.Frames / 2,
		},
		MaxFrames: opts.Format.IntegerFramesPer(t.Period(), timeline.Ceiling),
	})
	if err != nil {
		return nil, fmt.Errorf("splitter %s: %w", opts.Name, err)
	}
	n := &SplitterNode{
		nodeBase: b,
		splitter: s,
		th:       t,
	}
	g.nodes[n.id] = n
	t.nodes++
	c := s.Consumer()
	g.push(t.Context().Mutate(func() {
		t.AddConsumer(c)
		t.NotifyConsumerStarting(c)
	}))
	g.logger.WithFields(map[string]interface{}{"node": n.name, "thread": t.Name()}).Debug("splitter created")
	return n, nil
}

func (n *SplitterNode) consumer() *stage.Consumer { return n.splitter.Consumer() }
func (n *SplitterNode) thread() *thread           { return n.th }
func (n *SplitterNode) maxSources() int           { return 1 }
func (n *SplitterNode) maxDestinations() int      { return 0 }

func (n *SplitterNode) newChild(name string, _ *metric.Meter) *stage.Producer {
	return n.splitter.NewProducer(name)
}

// Splitter returns splitter stages. They must be accessed only by
// mutators executed on the threads running them.
func (n *SplitterNode) Splitter() *stage.Splitter { return n.splitter }
