// Package mixer implements mix threads. A thread owns a set of consumer
// stages and runs their mix jobs once per period against a monotonic
// timer. All structural changes are pushed to the thread as mutators and
// applied at the start of a wake cycle, before any job runs.
package mixer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/mix/clock"
	"pipelined.dev/mix/log"
	"pipelined.dev/mix/metric"
	"pipelined.dev/mix/mutable"
	"pipelined.dev/mix/stage"
	"pipelined.dev/mix/timeline"
)

// ErrInvalidPeriod is returned when thread period or CPU budget is invalid.
var ErrInvalidPeriod = errors.New("invalid period")

// fastest is the slowdown applied to wait times measured on clocks that can
// drift from monotonic time.
var fastest = timeline.NewRate(1_000_000, 1_000_000+clock.MaxRateAdjustPPM)

// State of the thread loop.
type State int

const (
	// Idle waits for a start notification.
	Idle State = iota
	// WakeFromIdle waits for the first job after idle.
	WakeFromIdle
	// Running runs jobs every period.
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WakeFromIdle:
		return "wake from idle"
	default:
		return "running"
	}
}

// Args configure new thread.
type Args struct {
	Name string
	// Period is the duration of every mix job.
	Period time.Duration
	// CPUPerPeriod is the part of period jobs are expected to take.
	CPUPerPeriod time.Duration
	// Timer drives the loop, real timer if nil.
	Timer  clock.Timer
	Logger logrus.FieldLogger
}

// Thread is a mix thread.
type Thread struct {
	id           xid.ID
	name         string
	period       time.Duration
	cpuPerPeriod time.Duration
	timer        clock.Timer
	logger       logrus.FieldLogger
	meter        *metric.Meter
	context      mutable.Context
	queue        *mutable.Queue

	done     chan struct{}
	shutdown sync.Once

	// fields below are accessed only by the loop goroutine.
	state     State
	consumers []*consumer
	clocks    *clock.Snapshots
	starting  bool
	nextJob   int64
	lastJob   int64
	hasLast   bool
}

type consumer struct {
	*stage.Consumer
	maybeStarted bool
	// monotonic wake time of scheduled start, clock.Infinite if none.
	nextStart int64
}

// New starts a thread.
func New(args Args) (*Thread, error) {
	if args.Period <= 0 || args.CPUPerPeriod < 0 || args.CPUPerPeriod > args.Period {
		return nil, fmt.Errorf("%w: period %v cpu per period %v", ErrInvalidPeriod, args.Period, args.CPUPerPeriod)
	}
	timer := args.Timer
	if timer == nil {
		timer = clock.NewRealTimer()
	}
	logger := args.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	t := &Thread{
		id:           xid.New(),
		name:         args.Name,
		period:       args.Period,
		cpuPerPeriod: args.CPUPerPeriod,
		timer:        timer,
		logger:       logger.WithField("thread", args.Name),
		meter:        metric.ThreadMeter(args.Name),
		context:      mutable.Mutable(),
		done:         make(chan struct{}),
		clocks:       clock.NewSnapshots(),
		nextJob:      clock.Infinite,
	}
	t.queue = mutable.NewQueue(timer.SetEventBit)
	go t.loop()
	return t, nil
}

// ID returns thread id.
func (t *Thread) ID() xid.ID { return t.id }

// Name returns thread name.
func (t *Thread) Name() string { return t.name }

// Period returns mix job period.
func (t *Thread) Period() time.Duration { return t.period }

// CPUPerPeriod returns CPU budget of every period.
func (t *Thread) CPUPerPeriod() time.Duration { return t.cpuPerPeriod }

// Context returns mutable context of the thread.
func (t *Thread) Context() mutable.Context { return t.context }

// Queue returns task queue of the thread.
func (t *Thread) Queue() *mutable.Queue { return t.queue }

// Push enqueues mutators and wakes the thread.
func (t *Thread) Push(fns ...mutable.MutatorFunc) {
	t.queue.Push(fns...)
}

// Shutdown stops the loop and waits for it to exit. Pending mutators are
// discarded. It is safe to call more than once.
func (t *Thread) Shutdown() {
	t.shutdown.Do(t.timer.SetShutdownBit)
	<-t.done
}

// Done is closed when the loop exits.
func (t *Thread) Done() <-chan struct{} { return t.done }

// AddConsumer assigns consumer and its reference clock to the thread. It
// must be called on the thread. Panics if consumer is already assigned.
func (t *Thread) AddConsumer(c *stage.Consumer) {
	if t.find(c) >= 0 {
		panic(fmt.Sprintf("thread %s: consumer %s added twice", t.name, c.Name()))
	}
	t.consumers = append(t.consumers, &consumer{Consumer: c, nextStart: clock.Infinite})
	t.clocks.Add(c.Reference())
}

// RemoveConsumer unassigns consumer. It must be called on the thread.
// Panics if consumer is not assigned.
func (t *Thread) RemoveConsumer(c *stage.Consumer) {
	i := t.find(c)
	if i < 0 {
		panic(fmt.Sprintf("thread %s: remove unknown consumer %s", t.name, c.Name()))
	}
	t.consumers = append(t.consumers[:i], t.consumers[i+1:]...)
	t.clocks.Remove(c.Reference())
}

// AddClock makes snapshots of the clock available to jobs. It must be
// called on the thread.
func (t *Thread) AddClock(c clock.Clock) { t.clocks.Add(c) }

// RemoveClock releases the clock added with AddClock. It must be called on
// the thread.
func (t *Thread) RemoveClock(c clock.Clock) { t.clocks.Remove(c) }

// NotifyConsumerStarting tells that consumer received a start command. It
// must be called on the thread. Panics if consumer is not assigned.
func (t *Thread) NotifyConsumerStarting(c *stage.Consumer) {
	i := t.find(c)
	if i < 0 {
		panic(fmt.Sprintf("thread %s: start unknown consumer %s", t.name, c.Name()))
	}
	t.consumers[i].maybeStarted = true
	t.starting = true
}

// State returns state of the loop. It must be called on the thread.
func (t *Thread) State() State { return t.state }

// Consumers returns number of assigned consumers. It must be called on the
// thread.
func (t *Thread) Consumers() int { return len(t.consumers) }

func (t *Thread) find(c *stage.Consumer) int {
	for i, e := range t.consumers {
		if e.Consumer == c {
			return i
		}
	}
	return -1
}

func (t *Thread) loop() {
	defer close(t.done)
	defer t.timer.Stop()
	t.logger.Debug("thread started")
	for {
		deadline := t.nextJob
		if t.state == Idle {
			deadline = clock.Infinite
		}
		reason := t.timer.SleepUntil(deadline)
		if reason.ShutdownSet {
			t.logger.Debug("thread stopped")
			return
		}
		t.meter.Wakeup()
		if reason.EventSet {
			t.queue.Drain()
		}

		now := t.timer.Now()
		if t.starting {
			t.starting = false
			t.wake(now)
		}
		if t.state == Idle || now < t.nextJob {
			continue
		}
		t.runJobs(now)
	}
}

// wake schedules a job for a consumer that is starting.
func (t *Thread) wake(now int64) {
	next := now
	if t.hasLast {
		next = max(now, t.lastJob+int64(t.period))
	}
	if t.state == Idle {
		t.state = WakeFromIdle
		t.logger.Debug("wake from idle")
		t.nextJob = next
		return
	}
	t.nextJob = min(t.nextJob, next)
}

// runJobs runs one batch and schedules the next one.
func (t *Thread) runJobs(now int64) {
	period := int64(t.period)
	start := t.nextJob
	if now >= start+period {
		skipped := (now - start) / period * period
		start += skipped
		t.meter.Underflow(time.Duration(skipped))
		t.logger.WithField("skipped", time.Duration(skipped)).Debug("underflow")
	} else if now > start+period-int64(t.cpuPerPeriod) {
		t.meter.LateWakeup()
	}
	t.meter.MixJob()
	t.state = Running

	t.clocks.Update(now)
	ctx := &stage.Context{
		Clocks:    t.clocks,
		StartTime: start,
		Deadline:  start + period,
	}
	next := int64(clock.Infinite)
	for _, c := range t.consumers {
		if !c.maybeStarted && c.nextStart > ctx.Deadline {
			next = min(next, c.nextStart)
			continue
		}
		switch status := c.RunMixJob(ctx, start, t.period).(type) {
		case stage.StartedStatus:
			c.maybeStarted = true
			c.nextStart = clock.Infinite
			next = min(next, start+period)
		case stage.StoppedStatus:
			c.maybeStarted = false
			c.nextStart = clock.Infinite
			if status.HasNext {
				c.nextStart = t.conservative(c.Reference(), now, status.NextMixJobStartTime)
				next = min(next, c.nextStart)
			}
		}
	}
	t.lastJob, t.hasLast = start, true

	if next == clock.Infinite {
		t.state = Idle
		t.nextJob = clock.Infinite
		t.logger.Debug("idle")
		return
	}
	t.nextJob = max(next, start+period)
}

// conservative returns monotonic wake time for the job at next, assuming
// the reference clock runs at the fastest permitted rate.
func (t *Thread) conservative(ref clock.Clock, now, next int64) int64 {
	if next <= now || !t.clocks.SnapshotFor(ref).MayDrift() {
		return next
	}
	return now + fastest.Scale(next-now, timeline.Floor)
}
