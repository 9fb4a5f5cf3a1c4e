package spu

import (
	"sync"

	"github.com/sarchlab/spusim/emu"
)

type slot struct {
	value uint32
	set   bool
}

// Channel is a fixed-capacity queue of 32-bit values with per-slot
// occupancy, shared between a unit and its outside world.
//
// Push and pop cursors advance independently around the ring: Push fails
// when the slot under the push cursor is occupied, Pop fails when the slot
// under the pop cursor is empty.
type Channel struct {
	mu    sync.Mutex
	slots []slot
	push  int
	pop   int

	changed emu.Broadcast
}

// NewChannel creates an empty channel with capacity slots.
func NewChannel(capacity int) *Channel {
	if capacity < 1 {
		panic("spu: channel capacity must be at least 1")
	}
	return &Channel{slots: make([]slot, capacity)}
}

// Capacity returns the number of slots.
func (c *Channel) Capacity() int {
	return len(c.slots)
}

// Changed returns a channel closed on the next mutation.
func (c *Channel) Changed() <-chan struct{} {
	return c.changed.Wait()
}

func (c *Channel) advance(i int) int {
	return (i + 1) % len(c.slots)
}

// Push stores v if the next slot is free.
func (c *Channel) Push(v uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.slots[c.push].set {
		return false
	}
	c.pushLocked(v)
	return true
}

func (c *Channel) pushLocked(v uint32) {
	c.slots[c.push] = slot{value: v, set: true}
	c.push = c.advance(c.push)
	c.changed.Notify()
}

// PushUncond stores v in the next slot, overwriting whatever is there.
func (c *Channel) PushUncond(v uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pushLocked(v)
}

// PushUncondOR ORs v into the next slot and marks it occupied.
func (c *Channel) PushUncondOR(v uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.slots[c.push]
	s.value |= v
	s.set = true
	c.push = c.advance(c.push)
	c.changed.Notify()
}

// Pop removes the next value if present.
func (c *Channel) Pop() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.slots[c.pop]
	if !s.set {
		return 0, false
	}
	c.slots[c.pop] = slot{}
	c.pop = c.advance(c.pop)
	c.changed.Notify()
	return s.value, true
}

// PopUncond removes the next slot regardless of occupancy.
func (c *Channel) PopUncond() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.slots[c.pop].value
	c.slots[c.pop] = slot{}
	c.pop = c.advance(c.pop)
	c.changed.Notify()
	return v
}

// PopExchange atomically takes and clears the next slot. It is the read
// side of OR-mode signal notification.
func (c *Channel) PopExchange() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.slots[c.pop]
	c.slots[c.pop] = slot{}
	if !s.set {
		return 0, false
	}
	c.pop = c.advance(c.pop)
	c.changed.Notify()
	return s.value, true
}

// Count returns the number of occupied slots.
func (c *Channel) Count() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n uint32
	for _, s := range c.slots {
		if s.set {
			n++
		}
	}
	return n
}

// FreeCount returns the number of free slots.
func (c *Channel) FreeCount() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n uint32
	for _, s := range c.slots {
		if !s.set {
			n++
		}
	}
	return n
}

// SetValue overwrites the value under the push cursor without changing
// occupancy.
func (c *Channel) SetValue(v uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.slots[c.push].value = v
	c.changed.Notify()
}

// Value returns the value under the pop cursor without consuming it.
func (c *Channel) Value() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.slots[c.pop].value
}

// Reset empties the channel.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.slots)
	c.push = 0
	c.pop = 0
	c.changed.Notify()
}
