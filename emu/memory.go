// Package emu provides the shared emulation environment for SPU units:
// guest memory, atomic reservations, the session context and object IDs.
package emu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// PageSize is the allocation granularity of guest memory.
const PageSize = 0x10000

const (
	pageShift = 16
	pageMask  = PageSize - 1
	numPages  = 1 << (32 - pageShift)
)

// Default heap range used by Alloc.
const (
	DefaultHeapBase uint32 = 0x10000000
	DefaultHeapEnd  uint32 = 0x30000000
)

// ErrOutOfMemory is returned when the heap cannot satisfy an allocation.
var ErrOutOfMemory = errors.New("emu: out of guest memory")

type page [PageSize]byte

// Memory is a flat 32-bit big-endian guest address space. Pages are
// allocated on first write; reads of untouched memory return zero.
//
// Every write through the public API breaks reservations that overlap the
// written range, the same way a store from any processor would.
type Memory struct {
	pages        [numPages]atomic.Pointer[page]
	reservations *ReservationStation

	allocMu   sync.Mutex
	allocNext uint32
	allocEnd  uint32
}

// NewMemory creates an empty guest address space with a default-sized
// reservation station.
func NewMemory() *Memory {
	m := &Memory{
		allocNext: DefaultHeapBase,
		allocEnd:  DefaultHeapEnd,
	}
	m.reservations = NewReservationStation(m, DefaultReservationConfig())
	return m
}

// Reservations returns the reservation station guarding this memory.
func (m *Memory) Reservations() *ReservationStation {
	return m.reservations
}

func (m *Memory) page(addr uint32, alloc bool) *page {
	slot := &m.pages[addr>>pageShift]
	p := slot.Load()
	if p != nil || !alloc {
		return p
	}
	fresh := new(page)
	if slot.CompareAndSwap(nil, fresh) {
		return fresh
	}
	return slot.Load()
}

// readRaw copies guest memory at addr into p. The address wraps at 4 GiB.
func (m *Memory) readRaw(addr uint32, p []byte) {
	for len(p) > 0 {
		off := addr & pageMask
		n := PageSize - int(off)
		if n > len(p) {
			n = len(p)
		}
		if pg := m.page(addr, false); pg != nil {
			copy(p[:n], pg[off:int(off)+n])
		} else {
			clear(p[:n])
		}
		p = p[n:]
		addr += uint32(n)
	}
}

// writeRaw stores p at addr without touching reservations.
func (m *Memory) writeRaw(addr uint32, p []byte) {
	for len(p) > 0 {
		off := addr & pageMask
		n := PageSize - int(off)
		if n > len(p) {
			n = len(p)
		}
		pg := m.page(addr, true)
		copy(pg[off:int(off)+n], p[:n])
		p = p[n:]
		addr += uint32(n)
	}
}

// Read copies len(p) bytes starting at addr into p.
func (m *Memory) Read(addr uint32, p []byte) {
	m.readRaw(addr, p)
}

// Write stores p at addr.
func (m *Memory) Write(addr uint32, p []byte) {
	m.writeRaw(addr, p)
	m.reservations.invalidate(addr, uint32(len(p)))
}

// ReadAt implements io.ReaderAt over the guest address space.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= 1<<32 {
		return 0, fmt.Errorf("emu: offset 0x%x out of range", off)
	}
	n := len(p)
	var err error
	if rem := int64(1<<32) - off; int64(n) > rem {
		n = int(rem)
		err = io.EOF
	}
	m.Read(uint32(off), p[:n])
	return n, err
}

// WriteAt implements io.WriterAt over the guest address space.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= 1<<32 {
		return 0, fmt.Errorf("emu: offset 0x%x out of range", off)
	}
	n := len(p)
	if rem := int64(1<<32) - off; int64(n) > rem {
		return 0, fmt.Errorf("emu: write of %d bytes at 0x%x crosses the end of memory", n, off)
	}
	m.Write(uint32(off), p)
	return n, nil
}

// Copy moves size bytes from src to dst. Overlapping ranges are handled.
func (m *Memory) Copy(dst, src, size uint32) {
	if size == 0 {
		return
	}
	buf := make([]byte, size)
	m.readRaw(src, buf)
	m.Write(dst, buf)
}

// Zero clears size bytes starting at addr.
func (m *Memory) Zero(addr, size uint32) {
	m.Write(addr, make([]byte, size))
}

// Read8 reads a byte.
func (m *Memory) Read8(addr uint32) uint8 {
	var b [1]byte
	m.readRaw(addr, b[:])
	return b[0]
}

// Read16 reads a big-endian halfword.
func (m *Memory) Read16(addr uint32) uint16 {
	var b [2]byte
	m.readRaw(addr, b[:])
	return binary.BigEndian.Uint16(b[:])
}

// Read32 reads a big-endian word.
func (m *Memory) Read32(addr uint32) uint32 {
	var b [4]byte
	m.readRaw(addr, b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Read64 reads a big-endian doubleword.
func (m *Memory) Read64(addr uint32) uint64 {
	var b [8]byte
	m.readRaw(addr, b[:])
	return binary.BigEndian.Uint64(b[:])
}

// Read128 reads a quadword as it is laid out in memory.
func (m *Memory) Read128(addr uint32) [16]byte {
	var b [16]byte
	m.readRaw(addr, b[:])
	return b
}

// Write8 writes a byte.
func (m *Memory) Write8(addr uint32, value uint8) {
	m.Write(addr, []byte{value})
}

// Write16 writes a big-endian halfword.
func (m *Memory) Write16(addr uint32, value uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], value)
	m.Write(addr, b[:])
}

// Write32 writes a big-endian word.
func (m *Memory) Write32(addr uint32, value uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], value)
	m.Write(addr, b[:])
}

// Write64 writes a big-endian doubleword.
func (m *Memory) Write64(addr uint32, value uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], value)
	m.Write(addr, b[:])
}

// Write128 writes a quadword.
func (m *Memory) Write128(addr uint32, value [16]byte) {
	m.Write(addr, value[:])
}

// LoadProgram copies a raw image to addr.
func (m *Memory) LoadProgram(addr uint32, program []byte) {
	m.Write(addr, program)
}

// SetHeap sets the range handed out by Alloc. It does not free anything
// that has already been allocated.
func (m *Memory) SetHeap(base, end uint32) {
	m.allocMu.Lock()
	defer m.allocMu.Unlock()

	m.allocNext = base
	m.allocEnd = end
}

// Alloc reserves size bytes aligned to align (a power of two) from the
// heap and returns the guest address of the block.
func (m *Memory) Alloc(size, align uint32) (uint32, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, fmt.Errorf("emu: invalid alignment 0x%x", align)
	}

	m.allocMu.Lock()
	defer m.allocMu.Unlock()

	addr := (m.allocNext + align - 1) &^ (align - 1)
	if addr < m.allocNext || uint64(addr)+uint64(size) > uint64(m.allocEnd) {
		return 0, fmt.Errorf("alloc 0x%x bytes: %w", size, ErrOutOfMemory)
	}
	m.allocNext = addr + size
	return addr, nil
}

// Cast truncates an effective address to the 32-bit guest address space.
// ok is false when significant high bits were dropped.
func Cast(ea uint64) (addr uint32, ok bool) {
	return uint32(ea), ea>>32 == 0
}
