package game

import (
	"math"
	"time"
)

const (
	DefaultTickRate = 30
	MinTickRate     = 10
	MaxTickRate     = 60
)

// Clock is the fixed-timestep source for one room. It never reads wall time:
// every Advance moves the simulation forward by exactly Dt seconds.
type Clock struct {
	rate int
	dt   float64
	tick uint64
}

// NewClock creates a clock clamped to [MinTickRate, MaxTickRate].
func NewClock(rate int) *Clock {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	if rate < MinTickRate {
		rate = MinTickRate
	}
	if rate > MaxTickRate {
		rate = MaxTickRate
	}
	return &Clock{rate: rate, dt: 1.0 / float64(rate)}
}

func (c *Clock) Rate() int { return c.rate }
func (c *Clock) Dt() float64 { return c.dt }
func (c *Clock) Tick() uint64 { return c.tick }

// Interval is the wall-clock period the room loop ticker should use.
func (c *Clock) Interval() time.Duration {
	return time.Second / time.Duration(c.rate)
}

// Advance increments the tick counter and returns the new tick number.
func (c *Clock) Advance() uint64 {
	c.tick++
	return c.tick
}

// Ticks converts seconds into a whole number of ticks (at least 1 for positive input).
func (c *Clock) Ticks(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	n := int(math.Round(seconds * float64(c.rate)))
	if n < 1 {
		n = 1
	}
	return n
}

// Seconds converts ticks into seconds.
func (c *Clock) Seconds(ticks int) float64 {
	return float64(ticks) / float64(c.rate)
}
