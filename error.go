package mix

import (
	"errors"
	"sync"

	"pipelined.dev/mix/stage"
)

var (
	// ErrNodeNotFound is returned for unknown or deleted nodes.
	ErrNodeNotFound = errors.New("node not found")
	// ErrThreadNotFound is returned for unknown thread ids.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrThreadInUse is returned when deleted thread has nodes assigned.
	ErrThreadInUse = errors.New("thread in use")
	// ErrInvalidOptions is returned when node options are inconsistent.
	ErrInvalidOptions = errors.New("invalid options")
	// ErrInvalidRole is returned when consumer is used as a source or
	// producer as a destination.
	ErrInvalidRole = errors.New("invalid node role")
	// ErrCycle is returned when edge would create a cycle.
	ErrCycle = errors.New("edge creates a cycle")
	// ErrAlreadyConnected is returned for duplicate edges.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected is returned when edge doesn't exist or producer
	// has no destinations.
	ErrNotConnected = errors.New("not connected")
	// ErrIncompatibleFormats is returned when edge ends differ in format.
	ErrIncompatibleFormats = errors.New("incompatible formats")
	// ErrIncompatibleClocks is returned when edge ends differ in
	// reference clock.
	ErrIncompatibleClocks = errors.New("incompatible clocks")
	// ErrIncompatibleDirections is returned when edge ends differ in
	// pipeline direction.
	ErrIncompatibleDirections = errors.New("incompatible directions")
	// ErrTooManyIncomingEdges is returned when destination has no free
	// source slots.
	ErrTooManyIncomingEdges = errors.New("too many incoming edges")
	// ErrTooManyOutgoingEdges is returned when source has no free
	// destination slots.
	ErrTooManyOutgoingEdges = errors.New("too many outgoing edges")
)

// fanIn calls callback once all n answers are received. The first error
// wins.
type fanIn struct {
	sync.Mutex
	left     int
	when     stage.When
	err      error
	answered bool
	callback func(stage.When, error)
}

// newFanIn returns nil callback if callback is nil.
func newFanIn(n int, callback func(stage.When, error)) func(stage.When, error) {
	if callback == nil {
		return nil
	}
	f := &fanIn{left: n, callback: callback}
	return f.answer
}

func (f *fanIn) answer(w stage.When, err error) {
	f.Lock()
	if !f.answered && err == nil {
		f.when, f.answered = w, true
	}
	if err != nil && f.err == nil {
		f.err = err
	}
	f.left--
	done := f.left == 0
	f.Unlock()
	if done {
		f.callback(f.when, f.err)
	}
}
