package simulation

import (
	"sync"
	"time"
)

// Clock is the simulated time source. It moves only when a tick starts, so
// every timestamp the simulation produces depends on the tick count alone.
type Clock struct {
	mu    sync.RWMutex
	epoch time.Time
	step  time.Duration
	ticks uint64
}

// NewClock starts a clock at epoch advancing step per tick.
func NewClock(epoch time.Time, step time.Duration) *Clock {
	if epoch.IsZero() {
		epoch = DefaultEpoch
	}
	return &Clock{epoch: epoch.UTC(), step: step}
}

// Now returns the instant of the current tick, or the epoch before the first.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch.Add(time.Duration(c.ticks) * c.step)
}

// Advance moves to the next tick and returns its instant.
func (c *Clock) Advance() (uint64, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks++
	return c.ticks, c.epoch.Add(time.Duration(c.ticks) * c.step)
}

// Ticks returns the number of ticks started so far.
func (c *Clock) Ticks() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticks
}

// Resume moves an unstarted clock's epoch to at, so ticks after a reloaded
// chain keep increasing from its last timestamp. It reports false once the
// clock has ticked.
func (c *Clock) Resume(at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticks > 0 {
		return false
	}
	c.epoch = at.UTC()
	return true
}
