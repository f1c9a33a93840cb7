package clock

import (
	"math"
	"sync"
	"time"
)

// Infinite is a deadline that never expires.
const Infinite = math.MaxInt64

type (
	// WakeReason tells why SleepUntil returned. More than one reason can be
	// set at once.
	WakeReason struct {
		DeadlineExpired bool
		EventSet        bool
		ShutdownSet     bool
	}

	// Timer is a wake source of a mix thread. SleepUntil is called from a
	// single goroutine, the bits can be set from any goroutine.
	Timer interface {
		// Now returns current monotonic time.
		Now() int64
		// SetEventBit wakes the sleeper. The bit is cleared when
		// SleepUntil returns.
		SetEventBit()
		// SetShutdownBit wakes the sleeper. The bit is never cleared.
		SetShutdownBit()
		// SleepUntil blocks until the deadline expires or any bit is set.
		SleepUntil(deadline int64) WakeReason
		// Stop is called by the sleeper after its last SleepUntil.
		Stop()
	}
)

func (r WakeReason) any() bool {
	return r.DeadlineExpired || r.EventSet || r.ShutdownSet
}

// RealTimer sleeps on system monotonic time.
type RealTimer struct {
	mu       sync.Mutex
	event    bool
	shutdown bool
	wake     chan struct{}
}

// NewRealTimer returns timer driven by the system clock.
func NewRealTimer() *RealTimer {
	return &RealTimer{
		wake: make(chan struct{}, 1),
	}
}

// Now returns system monotonic time.
func (t *RealTimer) Now() int64 {
	return systemNow()
}

// SetEventBit implements Timer.
func (t *RealTimer) SetEventBit() {
	t.mu.Lock()
	t.event = true
	t.mu.Unlock()
	t.notify()
}

// SetShutdownBit implements Timer.
func (t *RealTimer) SetShutdownBit() {
	t.mu.Lock()
	t.shutdown = true
	t.mu.Unlock()
	t.notify()
}

func (t *RealTimer) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// SleepUntil implements Timer.
func (t *RealTimer) SleepUntil(deadline int64) WakeReason {
	for {
		t.mu.Lock()
		reason := WakeReason{
			EventSet:        t.event,
			ShutdownSet:     t.shutdown,
			DeadlineExpired: systemNow() >= deadline,
		}
		t.event = false
		t.mu.Unlock()
		if reason.any() {
			return reason
		}

		if deadline == Infinite {
			<-t.wake
			continue
		}
		timer := time.NewTimer(time.Duration(deadline - systemNow()))
		select {
		case <-t.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// Stop implements Timer.
func (t *RealTimer) Stop() {}
