package clock

import (
	"fmt"
	"sync"
	"time"
)

// Realm is a synthetic monotonic timeline. Time moves only when advanced
// explicitly, which makes scheduling deterministic in tests. Clocks and
// timers created by the realm share its time.
type Realm struct {
	mu   sync.Mutex
	cond *sync.Cond
	now  int64
}

// NewRealm returns realm with time set to zero.
func NewRealm() *Realm {
	r := &Realm{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Now returns current synthetic monotonic time.
func (r *Realm) Now() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// AdvanceTo sets current time and wakes sleeping timers with expired
// deadlines. Time never goes backward.
func (r *Realm) AdvanceTo(t int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t < r.now {
		panic(fmt.Sprintf("realm time goes backward: %d -> %d", r.now, t))
	}
	r.now = t
	r.cond.Broadcast()
}

// AdvanceBy moves current time forward by d.
func (r *Realm) AdvanceBy(d time.Duration) {
	r.AdvanceTo(r.Now() + int64(d))
}

// NewClock returns clock driven by the realm time.
func (r *Realm) NewClock(name string, domain Domain, adjustable bool) *Custom {
	return NewCustom(Args{
		Name:       name,
		Domain:     domain,
		Adjustable: adjustable,
		Mono:       r.Now,
	})
}

// NewTimer returns timer driven by the realm time.
func (r *Realm) NewTimer() *SyntheticTimer {
	return &SyntheticTimer{
		realm:    r,
		deadline: Infinite,
	}
}

// SyntheticTimer sleeps on realm time. All state is guarded by the realm
// mutex.
type SyntheticTimer struct {
	realm    *Realm
	event    bool
	shutdown bool
	stopped  bool
	sleeping bool
	deadline int64
}

// Now returns realm time.
func (t *SyntheticTimer) Now() int64 {
	return t.realm.Now()
}

// SetEventBit implements Timer.
func (t *SyntheticTimer) SetEventBit() {
	t.realm.mu.Lock()
	defer t.realm.mu.Unlock()
	t.event = true
	t.realm.cond.Broadcast()
}

// SetShutdownBit implements Timer.
func (t *SyntheticTimer) SetShutdownBit() {
	t.realm.mu.Lock()
	defer t.realm.mu.Unlock()
	t.shutdown = true
	t.realm.cond.Broadcast()
}

// SleepUntil implements Timer.
func (t *SyntheticTimer) SleepUntil(deadline int64) WakeReason {
	r := t.realm
	r.mu.Lock()
	defer r.mu.Unlock()
	t.deadline = deadline
	for {
		reason := WakeReason{
			EventSet:        t.event,
			ShutdownSet:     t.shutdown,
			DeadlineExpired: r.now >= deadline,
		}
		if reason.any() {
			t.event = false
			t.sleeping = false
			r.cond.Broadcast()
			return reason
		}
		t.sleeping = true
		r.cond.Broadcast()
		r.cond.Wait()
	}
}

// Stop implements Timer.
func (t *SyntheticTimer) Stop() {
	t.realm.mu.Lock()
	defer t.realm.mu.Unlock()
	t.stopped = true
	t.sleeping = false
	t.realm.cond.Broadcast()
}

// WaitUntilSleepingOrStopped blocks until the sleeper either waits for a
// deadline that is not expired yet with no bits set, or is stopped.
func (t *SyntheticTimer) WaitUntilSleepingOrStopped() {
	r := t.realm
	r.mu.Lock()
	defer r.mu.Unlock()
	for !t.stopped && !t.asleep() {
		r.cond.Wait()
	}
}

// Deadline returns the deadline of the last SleepUntil call.
func (t *SyntheticTimer) Deadline() int64 {
	t.realm.mu.Lock()
	defer t.realm.mu.Unlock()
	return t.deadline
}

// Stopped returns true after Stop was called.
func (t *SyntheticTimer) Stopped() bool {
	t.realm.mu.Lock()
	defer t.realm.mu.Unlock()
	return t.stopped
}

func (t *SyntheticTimer) asleep() bool {
	return t.sleeping && !t.event && !t.shutdown && t.deadline > t.realm.now
}
