package mutable

import "sync"

// Queue is a FIFO of mutators applied by a single goroutine. Push can be
// called from any goroutine.
type Queue struct {
	mu      sync.Mutex
	pending []MutatorFunc
	wake    func()
}

// NewQueue returns queue. Wake is called after every push, it must not
// block.
func NewQueue(wake func()) *Queue {
	return &Queue{wake: wake}
}

// Push appends mutators and wakes the owner.
func (q *Queue) Push(fns ...MutatorFunc) {
	if len(fns) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, fns...)
	q.mu.Unlock()
	if q.wake != nil {
		q.wake()
	}
}

// Drain applies pending mutators in push order. Mutators pushed while
// draining are applied too. Returns number of applied mutators.
func (q *Queue) Drain() int {
	var applied int
	for {
		q.mu.Lock()
		fns := q.pending
		q.pending = nil
		q.mu.Unlock()
		if len(fns) == 0 {
			return applied
		}
		for _, fn := range fns {
			fn()
		}
		applied += len(fns)
	}
}

// Pusher routes mutations to the queues of their contexts.
type Pusher struct {
	mu           sync.Mutex
	destinations map[Context]*Queue
}

// NewPusher creates new pusher.
func NewPusher() *Pusher {
	return &Pusher{
		destinations: make(map[Context]*Queue),
	}
}

// AddDestination adds new mapping of mutable context to queue.
func (p *Pusher) AddDestination(c Context, q *Queue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destinations[c] = q
}

// RemoveDestination removes mapping of mutable context.
func (p *Pusher) RemoveDestination(c Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.destinations, c)
}

// Push mutations to their queues. Function will panic if any mutation has
// unknown context, in that case nothing is pushed.
func (p *Pusher) Push(mutations ...Mutation) {
	var ms batch
	for _, m := range mutations {
		ms = ms.put(m)
	}
	p.mu.Lock()
	queues := make(map[Context]*Queue, len(ms))
	for c := range ms {
		q, ok := p.destinations[c]
		if !ok {
			p.mu.Unlock()
			panic("unknown mutable context")
		}
		queues[c] = q
	}
	p.mu.Unlock()
	for c, q := range queues {
		q.Push(ms[c]...)
	}
}
