package mix

import (
	"fmt"

	"github.com/rs/xid"

	"pipelined.dev/mix/metric"
	"pipelined.dev/mix/mutable"
	"pipelined.dev/mix/stage"
)

type edgeKey struct {
	source xid.ID
	dest   xid.ID
}

// edge links a source node to a destination node. Child is the producer
// stage created for the edge, it runs on the destination thread.
type edge struct {
	source source
	dest   destination
	child  *stage.Producer
}

// CreateEdge connects source node to destination node.
func (g *Graph) CreateEdge(sourceID, destID xid.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	src, dst, err := g.validateEdge(sourceID, destID)
	if err != nil {
		return fmt.Errorf("create edge: %w", err)
	}

	e := &edge{
		source: src,
		dest:   dst,
		child:  src.newChild(src.Name()+"->"+dst.Name(), metric.ThreadMeter(dst.thread().Name())),
	}
	g.edges[edgeKey{source: sourceID, dest: destID}] = e
	src.base().outgoing = append(src.base().outgoing, e)
	dst.base().incoming = append(dst.base().incoming, e)

	t, c, child := dst.thread(), dst.consumer(), e.child
	g.push(t.Context().Mutate(func() {
		t.AddClock(child.Reference())
		c.AddSource(child)
	}))
	g.propagateDelays()
	g.logger.WithField("edge", child.Name()).Debug("edge created")
	return nil
}

// validateEdge checks edge in the order: node existence, roles, cycles,
// duplicates, formats, clocks, directions and capacity.
func (g *Graph) validateEdge(sourceID, destID xid.ID) (source, destination, error) {
	sn, ok := g.nodes[sourceID]
	if !ok {
		return nil, nil, fmt.Errorf("source %v: %w", sourceID, ErrNodeNotFound)
	}
	dn, ok := g.nodes[destID]
	if !ok {
		return nil, nil, fmt.Errorf("destination %v: %w", destID, ErrNodeNotFound)
	}
	src, ok := sn.(source)
	if !ok {
		return nil, nil, fmt.Errorf("consumer %s as source: %w", sn.Name(), ErrInvalidRole)
	}
	dst, ok := dn.(destination)
	if !ok {
		return nil, nil, fmt.Errorf("producer %s as destination: %w", dn.Name(), ErrInvalidRole)
	}
	if sourceID == destID || reaches(dst, src) {
		return nil, nil, fmt.Errorf("%s -> %s: %w", src.Name(), dst.Name(), ErrCycle)
	}
	if _, ok := g.edges[edgeKey{source: sourceID, dest: destID}]; ok {
		return nil, nil, fmt.Errorf("%s -> %s: %w", src.Name(), dst.Name(), ErrAlreadyConnected)
	}
	if src.Format() != dst.Format() {
		return nil, nil, fmt.Errorf("%v -> %v: %w", src.Format(), dst.Format(), ErrIncompatibleFormats)
	}
	if src.Reference().ID() != dst.Reference().ID() {
		return nil, nil, fmt.Errorf("%s -> %s: %w", src.Reference().Name(), dst.Reference().Name(), ErrIncompatibleClocks)
	}
	if src.Direction() != dst.Direction() {
		return nil, nil, fmt.Errorf("%v -> %v: %w", src.Direction(), dst.Direction(), ErrIncompatibleDirections)
	}
	if len(dst.base().incoming) >= dst.maxSources() {
		return nil, nil, fmt.Errorf("%s accepts %d sources: %w", dst.Name(), dst.maxSources(), ErrTooManyIncomingEdges)
	}
	if limit := src.maxDestinations(); limit > 0 && len(src.base().outgoing) >= limit {
		return nil, nil, fmt.Errorf("%s accepts %d destinations: %w", src.Name(), limit, ErrTooManyOutgoingEdges)
	}
	return src, dst, nil
}

// reaches returns true if target is reachable from n.
func reaches(n, target Node) bool {
	if n == target {
		return true
	}
	for _, e := range n.base().outgoing {
		if reaches(e.dest, target) {
			return true
		}
	}
	return false
}

// DeleteEdge disconnects source node from destination node.
func (g *Graph) DeleteEdge(sourceID, destID xid.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[sourceID]; !ok {
		return fmt.Errorf("delete edge source %v: %w", sourceID, ErrNodeNotFound)
	}
	if _, ok := g.nodes[destID]; !ok {
		return fmt.Errorf("delete edge destination %v: %w", destID, ErrNodeNotFound)
	}
	e, ok := g.edges[edgeKey{source: sourceID, dest: destID}]
	if !ok {
		return fmt.Errorf("delete edge: %w", ErrNotConnected)
	}
	g.push(g.unlink(e))
	g.propagateDelays()
	return nil
}

// unlink removes edge from the graph and returns mutation which removes
// its stage from the destination thread.
func (g *Graph) unlink(e *edge) mutable.Mutation {
	delete(g.edges, edgeKey{source: e.source.ID(), dest: e.dest.ID()})
	src, dst := e.source.base(), e.dest.base()
	src.outgoing = remove(src.outgoing, e)
	dst.incoming = remove(dst.incoming, e)

	t, c, child := e.dest.thread(), e.dest.consumer(), e.child
	g.logger.WithField("edge", child.Name()).Debug("edge deleted")
	return t.Context().Mutate(func() {
		child.Control().Cancel()
		c.RemoveSource(child)
		t.RemoveClock(child.Reference())
	})
}

func remove(edges []*edge, e *edge) []*edge {
	for i := range edges {
		if edges[i] == e {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

// DeleteNode deletes node with all its edges. Consumer stages are removed
// from their threads.
func (g *Graph) DeleteNode(id xid.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("delete node %v: %w", id, ErrNodeNotFound)
	}
	b := n.base()
	var ms []mutable.Mutation
	for len(b.incoming) > 0 {
		ms = append(ms, g.unlink(b.incoming[0]))
	}
	for len(b.outgoing) > 0 {
		ms = append(ms, g.unlink(b.outgoing[0]))
	}
	if dst, ok := n.(destination); ok {
		t, c := dst.thread(), dst.consumer()
		t.nodes--
		ms = append(ms, t.Context().Mutate(func() {
			c.Control().Cancel()
			t.RemoveConsumer(c)
		}))
	}
	delete(g.nodes, id)
	g.push(ms...)
	g.propagateDelays()
	g.logger.WithField("node", n.Name()).Debug("node deleted")
	return nil
}
