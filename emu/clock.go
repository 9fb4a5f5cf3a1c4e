package emu

import (
	"sync/atomic"
	"time"

	"github.com/sarchlab/akita/v4/sim"
)

// DefaultTimebaseFreq is the guest timebase frequency (79.8 MHz).
const DefaultTimebaseFreq = sim.Freq(79_800_000)

// Clock reports guest time in timebase ticks.
type Clock interface {
	Now() uint64
}

// Timebase is a Clock driven by host wall time.
type Timebase struct {
	freq  sim.Freq
	start time.Time
}

// NewTimebase creates a timebase that starts counting at zero now.
func NewTimebase(freq sim.Freq) *Timebase {
	return &Timebase{freq: freq, start: time.Now()}
}

// Freq returns the tick frequency.
func (t *Timebase) Freq() sim.Freq { return t.freq }

// Now returns the ticks elapsed since the timebase was created.
func (t *Timebase) Now() uint64 {
	return uint64(time.Since(t.start).Seconds() * float64(t.freq))
}

// ManualClock is a Clock that only moves when told to. It makes decrementer
// behavior deterministic.
type ManualClock struct {
	ticks atomic.Uint64
}

// Now returns the current tick count.
func (c *ManualClock) Now() uint64 { return c.ticks.Load() }

// Advance moves the clock forward by n ticks.
func (c *ManualClock) Advance(n uint64) { c.ticks.Add(n) }

// Set moves the clock to an absolute tick count.
func (c *ManualClock) Set(n uint64) { c.ticks.Store(n) }
