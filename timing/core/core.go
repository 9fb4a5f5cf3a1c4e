// Package core provides a single-stepping driver for an SPU unit.
// It runs the interpreter on the caller's goroutine, one instruction per
// tick, which makes cycle accounting deterministic.
package core

import (
	"github.com/sarchlab/spusim/spu"
)

// Stats holds performance statistics for the core.
type Stats struct {
	// Ticks is the number of instructions stepped.
	Ticks uint64
	// Cycles is the modeled cost, including MFC transfers.
	Cycles uint64
	// Instructions is the number of instructions executed.
	Instructions uint64
	// MFC is a snapshot of the unit's DMA counters.
	MFC spu.MFCStats
}

// Core steps an SPU unit through its interpreter.
//
// A blocking channel read executed by Tick waits on the caller's goroutine
// until data arrives or the unit is stopped from elsewhere.
type Core struct {
	// Unit is the stepped unit.
	Unit *spu.Unit

	interp     *spu.Interpreter
	ticks      uint64
	baseCycles uint64
	err        error
}

// NewCore creates a Core driving u.
func NewCore(u *spu.Unit) *Core {
	return &Core{
		Unit:       u,
		interp:     spu.NewInterpreter(),
		baseCycles: u.Cycles(),
	}
}

// SetPC sets the program counter and marks the unit running.
func (c *Core) SetPC(pc uint32) {
	c.Unit.Regs.PC = pc & (spu.LocalStoreSize - 4)
	c.Unit.Start()
}

// Tick executes one instruction. A decode failure halts the core and is
// returned by Err.
func (c *Core) Tick() {
	if c.Halted() {
		return
	}

	c.ticks++
	if err := c.interp.Step(c.Unit); err != nil {
		c.err = err
		c.Unit.Stop()
	}
}

// Halted returns true once the unit stopped running.
func (c *Core) Halted() bool {
	return !c.Unit.IsRunning()
}

// Err returns the error that halted the core, if any.
func (c *Core) Err() error {
	return c.err
}

// ExitCode returns the last stop-and-signal code of the unit.
func (c *Core) ExitCode() uint32 {
	return c.Unit.ExitStatus()
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	return Stats{
		Ticks:        c.ticks,
		Cycles:       c.Unit.Cycles() - c.baseCycles,
		Instructions: c.interp.InstructionCount(),
		MFC:          c.Unit.Stats(),
	}
}

// Run executes the unit until it halts.
// Returns the exit code.
func (c *Core) Run() uint32 {
	for !c.Halted() {
		c.Tick()
	}
	return c.ExitCode()
}

// RunCycles executes at most n instructions.
// Returns true if still running, false if halted.
func (c *Core) RunCycles(n uint64) bool {
	for i := uint64(0); i < n && !c.Halted(); i++ {
		c.Tick()
	}
	return !c.Halted()
}

// Reset stops the unit, clears its architectural state and the core's
// statistics.
func (c *Core) Reset() {
	c.Unit.Stop()
	c.Unit.Reset()

	c.interp = spu.NewInterpreter()
	c.ticks = 0
	c.baseCycles = c.Unit.Cycles()
	c.err = nil
}
