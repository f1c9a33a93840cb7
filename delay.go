package mix

import (
	"fmt"
	"time"

	"github.com/rs/xid"

	"pipelined.dev/mix/mutable"
	"pipelined.dev/mix/stage"
)

// MaxDownstreamOutputPipelineDelay returns the largest delay between a
// frame passing the node and its presentation.
func (g *Graph) MaxDownstreamOutputPipelineDelay(id xid.ID) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return 0, fmt.Errorf("downstream delay %v: %w", id, ErrNodeNotFound)
	}
	return downstream(n), nil
}

// MaxUpstreamInputPipelineDelay returns the largest delay between a frame
// capture and the frame passing the node.
func (g *Graph) MaxUpstreamInputPipelineDelay(id xid.ID) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return 0, fmt.Errorf("upstream delay %v: %w", id, ErrNodeNotFound)
	}
	return upstream(n), nil
}

func downstream(n Node) time.Duration {
	if c, ok := n.(*ConsumerNode); ok {
		return c.externalDelay
	}
	var d time.Duration
	for _, e := range n.base().outgoing {
		d = max(d, lead(e.dest))
	}
	return d
}

// lead is the delay from the job of the destination thread to the
// presentation.
func lead(n destination) time.Duration {
	return downstream(n) + n.thread().Period()
}

func upstream(n Node) time.Duration {
	if p, ok := n.(*ProducerNode); ok {
		return p.externalDelay
	}
	var d time.Duration
	for _, e := range n.base().incoming {
		d = max(d, lag(e.source))
	}
	return d
}

// lag is the delay from the capture to the frame being available.
func lag(n source) time.Duration {
	if s, ok := n.(*SplitterNode); ok {
		return upstream(s) + s.th.Period()
	}
	return upstream(n)
}

// propagateDelays pushes changed delays to consumer stages. Output stages
// receive downstream delay, input stages upstream delay.
func (g *Graph) propagateDelays() {
	var ms []mutable.Mutation
	for _, n := range g.nodes {
		var delays *stageDelays
		switch n := n.(type) {
		case *ConsumerNode:
			delays = &n.delays
		case *SplitterNode:
			delays = &n.delays
		default:
			continue
		}
		next := stageDelays{}
		if n.Direction() == stage.Output {
			next.downstream = downstream(n)
		} else {
			next.upstream = upstream(n)
		}
		if next == *delays {
			continue
		}
		*delays = next
		dst := n.(destination)
		t, c := dst.thread(), dst.consumer()
		ms = append(ms, t.Context().Mutate(func() {
			c.SetDownstreamDelay(next.downstream)
			c.SetUpstreamDelay(next.upstream)
		}))
		g.logger.WithFields(map[string]interface{}{
			"node":       n.Name(),
			"downstream": next.downstream,
			"upstream":   next.upstream,
		}).Debug("delays changed")
	}
	g.push(ms...)
}
