package emu

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/rs/xid"
)

// ErrSessionStopped is returned by blocking operations that were cut short
// because the session stopped.
var ErrSessionStopped = errors.New("emu: session stopped")

// Session is the emulation context shared by every unit and kernel object
// of one run: guest memory, the object ID table, the guest clock and the
// stop/pause state.
type Session struct {
	id     xid.ID
	log    logr.Logger
	memory *Memory
	ids    *IDManager
	clock  Clock

	stopped  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	mu          sync.Mutex
	paused      bool
	pauseReason error
	pausedCh    chan struct{}
	resumed     chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(log logr.Logger) SessionOption {
	return func(s *Session) {
		s.log = log
	}
}

// WithMemory shares an existing address space with the session.
func WithMemory(m *Memory) SessionOption {
	return func(s *Session) {
		s.memory = m
	}
}

// WithClock sets the guest clock.
func WithClock(c Clock) SessionOption {
	return func(s *Session) {
		s.clock = c
	}
}

// NewSession creates a running session.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		id:      xid.New(),
		log:     logr.Discard(),
		ids:     NewIDManager(),
		done:     make(chan struct{}),
		pausedCh: make(chan struct{}),
		resumed:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.memory == nil {
		s.memory = NewMemory()
	}
	if s.clock == nil {
		s.clock = NewTimebase(DefaultTimebaseFreq)
	}
	s.log = s.log.WithValues("session", s.id.String())

	return s
}

// ID returns the unique session identifier.
func (s *Session) ID() xid.ID { return s.id }

// Logger returns the session logger.
func (s *Session) Logger() logr.Logger { return s.log }

// Memory returns the guest address space.
func (s *Session) Memory() *Memory { return s.memory }

// IDs returns the object ID table.
func (s *Session) IDs() *IDManager { return s.ids }

// Clock returns the guest clock.
func (s *Session) Clock() Clock { return s.clock }

// IsStopped reports whether Stop has been called.
func (s *Session) IsStopped() bool {
	return s.stopped.Load()
}

// Done returns a channel that is closed when the session stops.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop ends the session. Every blocked wait observing Done returns.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.done)
		s.log.V(1).Info("session stopped")
	})
}

// Pause halts guest progress because of a fatal condition. Only the first
// reason is kept.
func (s *Session) Pause(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pauseReason == nil {
		s.pauseReason = reason
	}
	if !s.paused {
		s.paused = true
		close(s.pausedCh)
		s.log.Error(reason, "session paused")
	}
}

// Paused returns a channel that is closed while the session is paused.
func (s *Session) Paused() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pausedCh
}

// IsPaused reports whether the session is paused.
func (s *Session) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.paused
}

// PauseReason returns the first error passed to Pause, or nil.
func (s *Session) PauseReason() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pauseReason
}

// Resumed returns a channel closed by the next call to Resume.
func (s *Session) Resumed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resumed
}

// Resume clears the paused state. The recorded reason is kept.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return
	}
	s.paused = false
	s.pausedCh = make(chan struct{})
	close(s.resumed)
	s.resumed = make(chan struct{})
}
