package mix

import (
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/mix/log"
	"pipelined.dev/mix/mixer"
	"pipelined.dev/mix/mutable"
)

// Graph is a set of nodes connected by edges and the mix threads which run
// them. A single mutex serializes all graph operations, stage changes are
// pushed as mutations to the queues of mix threads.
type Graph struct {
	mu      sync.Mutex
	logger  logrus.FieldLogger
	pusher  *mutable.Pusher
	threads map[xid.ID]*thread
	nodes   map[xid.ID]Node
	edges   map[edgeKey]*edge
}

// thread is a mix thread with the number of assigned nodes.
type thread struct {
	*mixer.Thread
	nodes int
}

// NewGraph returns empty graph.
func NewGraph(options ...Option) *Graph {
	g := &Graph{
		pusher:  mutable.NewPusher(),
		threads: make(map[xid.ID]*thread),
		nodes:   make(map[xid.ID]Node),
		edges:   make(map[edgeKey]*edge),
	}
	for _, option := range options {
		option(g)
	}
	if g.logger == nil {
		g.logger = log.GetLogger()
	}
	return g
}

// CreateThread starts new mix thread.
func (g *Graph) CreateThread(opts ThreadOptions) (*mixer.Thread, error) {
	t, err := mixer.New(mixer.Args{
		Name:         opts.Name,
		Period:       opts.Period,
		CPUPerPeriod: opts.CPUPerPeriod,
		Timer:        opts.Timer,
		Logger:       g.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create thread %s: %w", opts.Name, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.threads[t.ID()] = &thread{Thread: t}
	g.pusher.AddDestination(t.Context(), t.Queue())
	g.logger.WithField("thread", t.Name()).Debug("thread created")
	return t, nil
}

// DeleteThread shuts down the thread. Nodes assigned to the thread must be
// deleted first.
func (g *Graph) DeleteThread(id xid.ID) error {
	g.mu.Lock()
	t, ok := g.threads[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("delete thread %v: %w", id, ErrThreadNotFound)
	}
	if t.nodes > 0 {
		g.mu.Unlock()
		return fmt.Errorf("delete thread %s with %d nodes: %w", t.Name(), t.nodes, ErrThreadInUse)
	}
	delete(g.threads, id)
	g.pusher.RemoveDestination(t.Context())
	g.mu.Unlock()
	t.Shutdown()
	return nil
}

// Thread returns thread by id.
func (g *Graph) Thread(id xid.ID) (*mixer.Thread, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.threads[id]
	if !ok {
		return nil, false
	}
	return t.Thread, true
}

// Node returns node by id.
func (g *Graph) Node(id xid.ID) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Close shuts down all threads concurrently and cancels commands still
// pending on their stages. The graph must not be used after.
func (g *Graph) Close() error {
	g.mu.Lock()
	threads := make([]*thread, 0, len(g.threads))
	for id, t := range g.threads {
		threads = append(threads, t)
		g.pusher.RemoveDestination(t.Context())
		delete(g.threads, id)
	}
	g.mu.Unlock()

	var eg errgroup.Group
	for _, t := range threads {
		t := t
		eg.Go(func() error {
			t.Shutdown()
			return nil
		})
	}
	err := eg.Wait()

	// threads are stopped, stages can be touched from here.
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.edges {
		e.child.Control().Cancel()
	}
	for _, n := range g.nodes {
		if dst, ok := n.(destination); ok {
			dst.consumer().Control().Cancel()
		}
	}
	return err
}

// push sends mutations to thread queues.
func (g *Graph) push(ms ...mutable.Mutation) {
	g.pusher.Push(ms...)
}

func (g *Graph) thread(id xid.ID) (*thread, error) {
	t, ok := g.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %v: %w", id, ErrThreadNotFound)
	}
	return t, nil
}

// check returns error if node was deleted.
func (g *Graph) check(n Node) error {
	if existing, ok := g.nodes[n.ID()]; !ok || existing != n {
		return fmt.Errorf("node %s: %w", n.Name(), ErrNodeNotFound)
	}
	return nil
}
