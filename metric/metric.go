package metric

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const threadsLabel = "mix.threads"

const (
	// WakeupCounter counts returns from the thread timer.
	WakeupCounter = "Wakeups"
	// MixJobCounter counts job batches.
	MixJobCounter = "MixJobs"
	// UnderflowCounter counts missed job deadlines.
	UnderflowCounter = "Underflows"
	// UnderflowDurationCounter sums up time skipped after underflows.
	UnderflowDurationCounter = "UnderflowDuration"
	// LateWakeupCounter counts wakeups within the CPU budget tail.
	LateWakeupCounter = "LateWakeups"
	// PacketUnderflowCounter counts packets released without being read.
	PacketUnderflowCounter = "PacketUnderflows"
)

var (
	threads = meters{
		m: make(map[string]*Meter),
	}

	counters = []string{
		WakeupCounter,
		MixJobCounter,
		UnderflowCounter,
		UnderflowDurationCounter,
		LateWakeupCounter,
		PacketUnderflowCounter,
	}
)

// Get metrics values for provided thread name.
func Get(thread string) map[string]string {
	return getCounters(thread)
}

// GetAll returns counters for all measured threads.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	threads.Lock()
	defer threads.Unlock()
	for thread := range threads.m {
		m[thread] = getCounters(thread)
	}
	return m
}

func getCounters(thread string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(thread, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// Meter captures counters of one mix thread. Threads with the same name
// share the meter. All methods are safe for concurrent use and never
// block.
type Meter struct {
	wakeups           *expvar.Int
	mixJobs           *expvar.Int
	underflows        *expvar.Int
	underflowDuration *duration
	lateWakeups       *expvar.Int
	packetUnderflows  *expvar.Int
}

// ThreadMeter returns meter of the thread.
func ThreadMeter(thread string) *Meter {
	return threads.get(thread)
}

// Wakeup records timer wakeup.
func (m *Meter) Wakeup() { m.wakeups.Add(1) }

// MixJob records job batch.
func (m *Meter) MixJob() { m.mixJobs.Add(1) }

// Underflow records missed deadline and skipped time.
func (m *Meter) Underflow(skipped time.Duration) {
	m.underflows.Add(1)
	m.underflowDuration.add(skipped)
}

// LateWakeup records wakeup after the CPU budget started.
func (m *Meter) LateWakeup() { m.lateWakeups.Add(1) }

// PacketUnderflow records packet released before it was read.
func (m *Meter) PacketUnderflow() { m.packetUnderflows.Add(1) }

type meters struct {
	sync.Mutex
	m map[string]*Meter
}

func (m *meters) get(thread string) *Meter {
	m.Lock()
	defer m.Unlock()
	if meter, ok := m.m[thread]; ok {
		return meter
	}
	meter := newMeter(thread)
	m.m[thread] = meter
	return meter
}

func newMeter(thread string) *Meter {
	m := &Meter{
		wakeups:           expvar.NewInt(key(thread, WakeupCounter)),
		mixJobs:           expvar.NewInt(key(thread, MixJobCounter)),
		underflows:        expvar.NewInt(key(thread, UnderflowCounter)),
		underflowDuration: &duration{},
		lateWakeups:       expvar.NewInt(key(thread, LateWakeupCounter)),
		packetUnderflows:  expvar.NewInt(key(thread, PacketUnderflowCounter)),
	}
	expvar.Publish(key(thread, UnderflowDurationCounter), m.underflowDuration)
	return m
}

func key(thread, counter string) string {
	return fmt.Sprintf("%s.%s.%s", threadsLabel, thread, counter)
}

// duration allows to format time.Duration metric values.
type duration struct {
	d atomic.Int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(v.d.Load()).String())
}

func (v *duration) add(delta time.Duration) {
	v.d.Add(int64(delta))
}
