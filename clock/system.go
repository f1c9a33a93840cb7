package clock

import (
	"time"

	"github.com/rs/xid"

	"pipelined.dev/mix/timeline"
)

var (
	epoch  = time.Now()
	system = &systemClock{id: xid.New()}
)

func systemNow() int64 {
	return int64(time.Since(epoch))
}

// systemClock reports monotonic time as is.
type systemClock struct {
	id xid.ID
}

// System returns the system monotonic clock.
func System() Clock {
	return system
}

func (c *systemClock) ID() xid.ID                { return c.id }
func (c *systemClock) Name() string              { return "system_monotonic" }
func (c *systemClock) Domain() Domain            { return MonotonicDomain }
func (c *systemClock) Adjustable() bool          { return false }
func (c *systemClock) Now() int64                { return systemNow() }
func (c *systemClock) ToMono() timeline.Function { return timeline.IdentityFunction }
func (c *systemClock) String() string            { return c.Name() }
