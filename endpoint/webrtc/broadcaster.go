package webrtc

import (
	"sync"
	"sync/atomic"
)

// listenerFrames is listener buffer size, in frames.
const listenerFrames = 150

// Broadcaster fans out PCM frames to listeners. Slow listeners lose frames
// instead of blocking the broadcast.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives PCM frames from the broadcaster. C is closed on
// Unsubscribe.
type Listener struct {
	C       chan []int16
	dropped atomic.Int64
}

// Dropped returns number of frames lost because the listener was slow.
func (l *Listener) Dropped() int64 {
	return l.dropped.Load()
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{C: make(chan []int16, listenerFrames)}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes listener and closes its channel.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[l]; !ok {
		return
	}
	delete(b.listeners, l)
	close(l.C)
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Broadcast sends frame to all listeners. Frame must not be modified
// afterwards.
func (b *Broadcaster) Broadcast(frame []int16) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- frame:
		default:
			l.dropped.Add(1)
		}
	}
}

// Close unsubscribes all listeners.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for l := range b.listeners {
		delete(b.listeners, l)
		close(l.C)
	}
}
