package packet

import "sync/atomic"

// Fence is a one-shot completion signal. Signal never blocks and can be
// called from a mix thread.
type Fence struct {
	signaled atomic.Bool
	done     chan struct{}
}

// NewFence returns unsignaled fence.
func NewFence() *Fence {
	return &Fence{done: make(chan struct{})}
}

// Signal marks the fence completed. Subsequent calls do nothing.
func (f *Fence) Signal() {
	if f.signaled.CompareAndSwap(false, true) {
		close(f.done)
	}
}

// Done returns channel closed once the fence is signaled.
func (f *Fence) Done() <-chan struct{} {
	return f.done
}

// Signaled returns true if Signal was called.
func (f *Fence) Signaled() bool {
	return f.signaled.Load()
}
