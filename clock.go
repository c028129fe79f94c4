package screenrec

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBase declares the unit of a source's raw timestamps as ticks per
// second. It is fixed per source; no drift correction is applied.
type TimeBase struct {
	TicksPerSecond int64
}

// Common time bases.
var (
	TimeBaseNanoseconds  = TimeBase{TicksPerSecond: int64(time.Second)}
	TimeBaseMicroseconds = TimeBase{TicksPerSecond: int64(time.Second / time.Microsecond)}
	TimeBase100ns        = TimeBase{TicksPerSecond: 10_000_000} // QPC / TimeSpan ticks
)

// Duration converts a raw tick count to nanoseconds without overflowing for
// large tick values.
func (tb TimeBase) Duration(raw int64) time.Duration {
	tps := tb.TicksPerSecond
	if tps <= 0 || tps == int64(time.Second) {
		return time.Duration(raw)
	}
	sec := raw / tps
	rem := raw % tps
	return time.Duration(sec)*time.Second + time.Duration(rem*int64(time.Second)/tps)
}

// Clock holds the shared timeline origin. The first sample seen from either
// source fixes the origin; it never moves afterwards.
type Clock struct {
	mu     sync.Mutex
	origin time.Duration
	set    bool

	clamped atomic.Uint64
}

// NewClock returns a clock with no origin.
func NewClock() *Clock {
	return &Clock{}
}

// EstablishOrigin sets the origin if it is not yet set and reports whether
// this call set it.
func (c *Clock) EstablishOrigin(ts time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		return false
	}
	c.origin = ts
	c.set = true
	return true
}

// Origin returns the origin and whether it has been established.
func (c *Clock) Origin() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.origin, c.set
}

// Relative normalizes raw to nanoseconds using tb and returns it relative to
// the origin, establishing the origin on first use. Timestamps earlier than
// the origin clamp to zero.
func (c *Clock) Relative(raw int64, tb TimeBase) time.Duration {
	ts := tb.Duration(raw)

	c.mu.Lock()
	if !c.set {
		c.origin = ts
		c.set = true
	}
	origin := c.origin
	c.mu.Unlock()

	rel := ts - origin
	if rel < 0 {
		c.clamped.Add(1)
		rel = 0
	}
	return rel
}

// Clamped returns how many timestamps arrived earlier than the origin.
func (c *Clock) Clamped() uint64 {
	return c.clamped.Load()
}

var processEpoch = time.Now()

// monotonicNow returns nanoseconds on the process-wide monotonic clock.
// Real sources stamp with it so their timelines are directly comparable.
func monotonicNow() int64 {
	return int64(time.Since(processEpoch))
}
