package emu

import (
	"sync"
	"sync/atomic"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// LineSize is the reservation granularity in bytes.
const LineSize = 128

// ReservationConfig sizes the reservation directory. A line evicted from
// the directory loses every reservation held on it.
type ReservationConfig struct {
	// Sets is the number of directory sets.
	Sets int
	// Ways is the number of lines tracked per set.
	Ways int
}

// DefaultReservationConfig returns a directory large enough for every
// unit of a full group to hold a reservation without conflicts in the
// common case.
func DefaultReservationConfig() ReservationConfig {
	return ReservationConfig{
		Sets: 64,
		Ways: 8,
	}
}

// ReservationStats counts reservation traffic.
type ReservationStats struct {
	Acquires      uint64
	Updates       uint64
	Failures      uint64
	Unconditional uint64
	Losses        uint64
	Evictions     uint64
}

type holder struct {
	owner uint32
	lost  func()
}

// ReservationStation tracks load-linked reservations on 128-byte lines of
// guest memory. Each owner holds at most one reservation at a time.
//
// Lost callbacks are always invoked after the station lock is released.
type ReservationStation struct {
	mu     sync.Mutex
	memory *Memory
	config ReservationConfig

	directory *akitacache.DirectoryImpl

	// holders is indexed by (setID * ways + wayID).
	holders [][]holder
	owners  map[uint32]uint64

	active atomic.Int32
	stats  ReservationStats
}

// NewReservationStation creates a station guarding memory.
func NewReservationStation(memory *Memory, config ReservationConfig) *ReservationStation {
	return &ReservationStation{
		memory: memory,
		config: config,
		directory: akitacache.NewDirectory(
			config.Sets,
			config.Ways,
			LineSize,
			akitacache.NewLRUVictimFinder(),
		),
		holders: make([][]holder, config.Sets*config.Ways),
		owners:  make(map[uint32]uint64),
	}
}

// Stats returns a snapshot of the reservation counters.
func (r *ReservationStation) Stats() ReservationStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stats
}

func (r *ReservationStation) blockIndex(block *akitacache.Block) int {
	return block.SetID*r.config.Ways + block.WayID
}

func lineOf(addr uint32) uint64 {
	return uint64(addr) &^ (LineSize - 1)
}

func (r *ReservationStation) lookup(line uint64) *akitacache.Block {
	block := r.directory.Lookup(0, line)
	if block != nil && block.IsValid {
		return block
	}
	return nil
}

// dropLine invalidates a line and returns the callbacks of every holder
// other than except.
func (r *ReservationStation) dropLine(block *akitacache.Block, except uint32) []func() {
	idx := r.blockIndex(block)

	var lost []func()
	for _, h := range r.holders[idx] {
		delete(r.owners, h.owner)
		if h.owner != except && h.lost != nil {
			lost = append(lost, h.lost)
			r.stats.Losses++
		}
	}
	r.holders[idx] = nil
	block.IsValid = false
	r.active.Add(-1)

	return lost
}

// release removes owner from whatever line it holds.
func (r *ReservationStation) release(owner uint32) {
	line, ok := r.owners[owner]
	if !ok {
		return
	}
	delete(r.owners, owner)

	block := r.lookup(line)
	if block == nil {
		return
	}

	idx := r.blockIndex(block)
	kept := r.holders[idx][:0]
	for _, h := range r.holders[idx] {
		if h.owner != owner {
			kept = append(kept, h)
		}
	}
	r.holders[idx] = kept

	if len(kept) == 0 {
		block.IsValid = false
		r.active.Add(-1)
	}
}

// Acquire copies the 128-byte line containing addr into dst and records a
// reservation for owner. Any earlier reservation of owner is released
// silently. lost is called once if the reservation is broken by another
// store or by eviction.
func (r *ReservationStation) Acquire(owner, addr uint32, dst []byte, lost func()) {
	line := lineOf(addr)

	r.mu.Lock()

	r.stats.Acquires++
	r.release(owner)

	var evicted []func()
	block := r.lookup(line)
	if block == nil {
		block = r.directory.FindVictim(line)
		if block.IsValid {
			r.stats.Evictions++
			evicted = r.dropLine(block, 0)
		}
		block.Tag = line
		block.IsValid = true
		block.IsDirty = false
		r.active.Add(1)
	}
	r.directory.Visit(block)

	idx := r.blockIndex(block)
	r.holders[idx] = append(r.holders[idx], holder{owner: owner, lost: lost})
	r.owners[owner] = line

	r.memory.readRaw(uint32(line), dst[:LineSize])

	r.mu.Unlock()

	for _, fn := range evicted {
		fn()
	}
}

// Holds reports whether owner currently has a reservation on the line
// containing addr.
func (r *ReservationStation) Holds(owner, addr uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	line, ok := r.owners[owner]
	return ok && line == lineOf(addr)
}

// Update performs a conditional store of src to the line containing addr.
// It succeeds only if owner still holds that line. On success every other
// holder loses its reservation and owner's reservation is consumed.
func (r *ReservationStation) Update(owner, addr uint32, src []byte) bool {
	line := lineOf(addr)

	r.mu.Lock()

	held, ok := r.owners[owner]
	block := r.lookup(line)
	if !ok || held != line || block == nil {
		r.stats.Failures++
		r.release(owner)
		r.mu.Unlock()
		return false
	}

	r.stats.Updates++
	r.memory.writeRaw(uint32(line), src[:LineSize])
	lost := r.dropLine(block, owner)

	r.mu.Unlock()

	for _, fn := range lost {
		fn()
	}
	return true
}

// Store writes src to the line containing addr unconditionally, breaking
// every reservation on that line.
func (r *ReservationStation) Store(addr uint32, src []byte) {
	line := lineOf(addr)

	r.mu.Lock()

	r.stats.Unconditional++
	r.memory.writeRaw(uint32(line), src[:LineSize])

	var lost []func()
	if block := r.lookup(line); block != nil {
		lost = r.dropLine(block, 0)
	}

	r.mu.Unlock()

	for _, fn := range lost {
		fn()
	}
}

// Release drops owner's reservation without invoking its callback.
func (r *ReservationStation) Release(owner uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.release(owner)
}

// invalidate breaks reservations on every line overlapping
// [addr, addr+size).
func (r *ReservationStation) invalidate(addr, size uint32) {
	if size == 0 || r.active.Load() == 0 {
		return
	}

	first := lineOf(addr)
	last := lineOf(addr + size - 1)
	if last < first {
		last = 1<<32 - LineSize
	}

	r.mu.Lock()

	var lost []func()
	for line := first; line <= last; line += LineSize {
		if block := r.lookup(line); block != nil {
			lost = append(lost, r.dropLine(block, 0)...)
		}
	}

	r.mu.Unlock()

	for _, fn := range lost {
		fn()
	}
}

// Reset drops every reservation without invoking callbacks.
func (r *ReservationStation) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.directory.Reset()
	for i := range r.holders {
		r.holders[i] = nil
	}
	clear(r.owners)
	r.active.Store(0)
	r.stats = ReservationStats{}
}
