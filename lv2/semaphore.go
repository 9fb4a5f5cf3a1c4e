package lv2

import (
	"sync"
	"time"

	"github.com/sarchlab/spusim/emu"
)

// Semaphore is a counting semaphore with a fixed maximum.
type Semaphore struct {
	mu       sync.Mutex
	protocol Protocol
	name     uint64
	max      int32
	value    int32
	waiters  int32

	changed emu.Broadcast
}

// NewSemaphore creates a semaphore. max must be positive and initial must
// lie in [0, max].
func NewSemaphore(initial, max int32, protocol Protocol, name uint64) (*Semaphore, error) {
	if max <= 0 || initial > max || initial < 0 {
		return nil, EINVAL
	}
	if !protocol.Valid() {
		return nil, EINVAL
	}

	return &Semaphore{
		protocol: protocol,
		name:     name,
		max:      max,
		value:    initial,
	}, nil
}

// Wait takes one unit, blocking while none is available. A zero timeout
// waits forever.
func (s *Semaphore) Wait(done <-chan struct{}, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.waiters++
	defer func() { s.waiters-- }()

	for s.value <= 0 {
		changed := s.changed.Wait()
		s.mu.Unlock()

		select {
		case <-changed:
			s.mu.Lock()
		case <-expired:
			s.mu.Lock()
			if s.value <= 0 {
				return ETIMEDOUT
			}
		case <-done:
			s.mu.Lock()
			return emu.ErrSessionStopped
		}
	}

	s.value--
	return nil
}

// TryWait takes one unit without blocking. It fails with EBUSY when no
// unit is available or other threads are already waiting.
func (s *Semaphore) TryWait() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.value <= 0 || s.waiters > 0 {
		return EBUSY
	}
	s.value--
	return nil
}

// Post releases count units.
func (s *Semaphore) Post(count int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if count < 0 {
		return EINVAL
	}
	if int64(s.value)+int64(count) > int64(s.max)+int64(s.waiters) {
		return EBUSY
	}
	s.value += count
	s.changed.Notify()

	return nil
}

// Value returns the count visible to the guest: units not already claimed
// by waiters, never negative.
func (s *Semaphore) Value() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return max(0, s.value-s.waiters)
}

// Waiters returns the number of blocked waiters.
func (s *Semaphore) Waiters() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.waiters
}

// Changed returns a channel closed on the next post.
func (s *Semaphore) Changed() <-chan struct{} {
	return s.changed.Wait()
}
