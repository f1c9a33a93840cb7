package clock

import (
	"fmt"

	"github.com/rs/xid"

	"pipelined.dev/mix/timeline"
)

// Snapshot is an immutable copy of a clock mapping.
type Snapshot struct {
	ID         xid.ID
	Name       string
	Domain     Domain
	Adjustable bool
	ToMono     timeline.Function
}

// Take returns current snapshot of the clock.
func Take(c Clock) Snapshot {
	return Snapshot{
		ID:         c.ID(),
		Name:       c.Name(),
		Domain:     c.Domain(),
		Adjustable: c.Adjustable(),
		ToMono:     c.ToMono(),
	}
}

// MonoTimeFromReferenceTime maps reference time onto monotonic time.
func (s Snapshot) MonoTimeFromReferenceTime(ref int64) int64 {
	return s.ToMono.Apply(ref, timeline.Floor)
}

// ReferenceTimeFromMonoTime maps monotonic time onto reference time.
func (s Snapshot) ReferenceTimeFromMonoTime(mono int64) int64 {
	return s.ToMono.ApplyInverse(mono, timeline.Floor)
}

// MayDrift returns true if the clock rate can differ from monotonic rate.
func (s Snapshot) MayDrift() bool {
	return s.Adjustable || s.Domain != MonotonicDomain
}

type snapshotEntry struct {
	clock    Clock
	refs     int
	snapshot Snapshot
}

// Snapshots is a reference counted set of clocks used by one mix thread.
// It is not safe for concurrent use.
type Snapshots struct {
	entries map[xid.ID]*snapshotEntry
	monoNow int64
}

// NewSnapshots returns empty set.
func NewSnapshots() *Snapshots {
	return &Snapshots{
		entries: make(map[xid.ID]*snapshotEntry),
	}
}

// Add increments reference count of the clock.
func (s *Snapshots) Add(c Clock) {
	if e, ok := s.entries[c.ID()]; ok {
		e.refs++
		return
	}
	s.entries[c.ID()] = &snapshotEntry{
		clock:    c,
		refs:     1,
		snapshot: Take(c),
	}
}

// Remove decrements reference count of the clock. It panics if the clock
// was never added.
func (s *Snapshots) Remove(c Clock) {
	e, ok := s.entries[c.ID()]
	if !ok {
		panic(fmt.Sprintf("remove unknown clock %v", c.Name()))
	}
	e.refs--
	if e.refs == 0 {
		delete(s.entries, c.ID())
	}
}

// Update takes new snapshots of all clocks.
func (s *Snapshots) Update(monoNow int64) {
	s.monoNow = monoNow
	for _, e := range s.entries {
		e.snapshot = Take(e.clock)
	}
}

// MonoNow returns monotonic time of the last update.
func (s *Snapshots) MonoNow() int64 {
	return s.monoNow
}

// Len returns number of distinct clocks.
func (s *Snapshots) Len() int {
	return len(s.entries)
}

// SnapshotFor returns the last snapshot of the clock. It panics if the clock
// was never added.
func (s *Snapshots) SnapshotFor(c Clock) Snapshot {
	e, ok := s.entries[c.ID()]
	if !ok {
		panic(fmt.Sprintf("snapshot of unknown clock %v", c.Name()))
	}
	return e.snapshot
}
