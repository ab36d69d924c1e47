package rounds

import (
	"sync/atomic"
	"time"
)

// BlockClock is the monotonic logical height source gating the draw window.
// In this off-chain engine "current block" is a logical clock tick.
type BlockClock interface {
	Height() uint64
}

// IntervalClock derives the logical height from wall time: one tick per
// configured interval since genesis.
type IntervalClock struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
}

// NewIntervalClock constructs a wall-time backed clock.
func NewIntervalClock(genesis time.Time, interval time.Duration) *IntervalClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &IntervalClock{genesis: genesis, interval: interval, now: time.Now}
}

// Height returns the current logical height.
func (c *IntervalClock) Height() uint64 {
	elapsed := c.now().Sub(c.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.interval)
}

// ManualClock is a hand-advanced clock for tests.
type ManualClock struct {
	height atomic.Uint64
}

// NewManualClock constructs a manual clock at the given height.
func NewManualClock(height uint64) *ManualClock {
	c := &ManualClock{}
	c.height.Store(height)
	return c
}

// Height returns the current height.
func (c *ManualClock) Height() uint64 { return c.height.Load() }

// Advance moves the clock forward by n ticks.
func (c *ManualClock) Advance(n uint64) { c.height.Add(n) }

// Set positions the clock at an absolute height.
func (c *ManualClock) Set(height uint64) { c.height.Store(height) }
