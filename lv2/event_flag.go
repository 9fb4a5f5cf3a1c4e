package lv2

import (
	"sync"
	"time"

	"github.com/sarchlab/spusim/emu"
)

// Event flag wait modes.
const (
	EventFlagWaitAND      uint32 = 0x01
	EventFlagWaitOR       uint32 = 0x02
	EventFlagWaitClear    uint32 = 0x10
	EventFlagWaitClearAll uint32 = 0x20
)

// EventFlag is a 64-bit pattern threads can wait on.
type EventFlag struct {
	mu       sync.Mutex
	pattern  uint64
	protocol Protocol
	waiters  int
	Name     uint64

	changed emu.Broadcast
}

// NewEventFlag creates a flag holding init.
func NewEventFlag(init uint64, protocol Protocol) (*EventFlag, error) {
	if !protocol.Valid() {
		return nil, EINVAL
	}
	return &EventFlag{pattern: init, protocol: protocol}, nil
}

// Changed returns a channel closed on the next pattern change.
func (f *EventFlag) Changed() <-chan struct{} {
	return f.changed.Wait()
}

// Pattern returns the current bit pattern.
func (f *EventFlag) Pattern() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pattern
}

// Waiters returns the number of blocked waiters.
func (f *EventFlag) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.waiters
}

// SetBit sets a single bit. Bits above 63 are rejected with EINVAL and
// leave the pattern unchanged.
func (f *EventFlag) SetBit(bit uint32) error {
	if bit > 63 {
		return EINVAL
	}
	f.Set(1 << bit)
	return nil
}

// Set ORs bits into the pattern.
func (f *EventFlag) Set(bits uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pattern |= bits
	f.changed.Notify()
}

// Clear ANDs the pattern with bits.
func (f *EventFlag) Clear(bits uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pattern &= bits
}

func validMode(mode uint32) bool {
	wait := mode & (EventFlagWaitAND | EventFlagWaitOR)
	clr := mode & (EventFlagWaitClear | EventFlagWaitClearAll)
	if wait != EventFlagWaitAND && wait != EventFlagWaitOR {
		return false
	}
	if clr == EventFlagWaitClear|EventFlagWaitClearAll {
		return false
	}
	return mode&^(EventFlagWaitAND|EventFlagWaitOR|EventFlagWaitClear|EventFlagWaitClearAll) == 0
}

// match tests the pattern and applies the clear mode. f.mu must be held.
func (f *EventFlag) match(bits uint64, mode uint32) (uint64, bool) {
	var ok bool
	if mode&EventFlagWaitAND != 0 {
		ok = f.pattern&bits == bits
	} else {
		ok = f.pattern&bits != 0
	}
	if !ok {
		return 0, false
	}

	result := f.pattern
	switch {
	case mode&EventFlagWaitClear != 0:
		f.pattern &^= bits
	case mode&EventFlagWaitClearAll != 0:
		f.pattern = 0
	}
	return result, true
}

// TryWait checks the condition once. It returns the pattern seen before any
// clearing, or EBUSY.
func (f *EventFlag) TryWait(bits uint64, mode uint32) (uint64, error) {
	if !validMode(mode) {
		return 0, EINVAL
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if result, ok := f.match(bits, mode); ok {
		return result, nil
	}
	return 0, EBUSY
}

// Wait blocks until the pattern satisfies bits under mode. A zero timeout
// waits forever.
func (f *EventFlag) Wait(done <-chan struct{}, bits uint64, mode uint32, timeout time.Duration) (uint64, error) {
	if !validMode(mode) {
		return 0, EINVAL
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	f.mu.Lock()
	f.waiters++
	defer func() {
		f.waiters--
		f.mu.Unlock()
	}()

	for {
		if result, ok := f.match(bits, mode); ok {
			return result, nil
		}

		changed := f.changed.Wait()
		f.mu.Unlock()

		select {
		case <-changed:
			f.mu.Lock()
		case <-expired:
			f.mu.Lock()
			if result, ok := f.match(bits, mode); ok {
				return result, nil
			}
			return 0, ETIMEDOUT
		case <-done:
			f.mu.Lock()
			return 0, emu.ErrSessionStopped
		}
	}
}
