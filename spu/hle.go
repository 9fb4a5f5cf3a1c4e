package spu

import (
	"sync"

	"github.com/sarchlab/spusim/insts"
)

// HookFunc is a native function called when the unit executes the trap
// planted at its address. Returning true returns to the caller through
// the link register.
type HookFunc func(u *Unit) bool

// Instrumentation maps local store addresses to native hooks.
type Instrumentation interface {
	Register(lsa uint32, fn HookFunc)
	Unregister(lsa uint32)
	UnregisterRange(start, end uint32)
	Lookup(lsa uint32) (HookFunc, bool)
}

// TrapTable is the default Instrumentation. Registering a hook plants
// "stop 0x3" at the address and unregistering it plants "lnop".
type TrapTable struct {
	mu    sync.Mutex
	unit  *Unit
	hooks map[uint32]HookFunc
}

// NewTrapTable creates an empty hook table patching u's local store.
func NewTrapTable(u *Unit) *TrapTable {
	return &TrapTable{
		unit:  u,
		hooks: make(map[uint32]HookFunc),
	}
}

// Register installs fn at lsa, replacing any previous hook.
func (t *TrapTable) Register(lsa uint32, fn HookFunc) {
	lsa &= lsInstrMask

	t.mu.Lock()
	defer t.mu.Unlock()

	t.hooks[lsa] = fn
	t.unit.WriteLS32(lsa, insts.WordStop3)
}

// Unregister removes the hook at lsa.
func (t *TrapTable) Unregister(lsa uint32) {
	lsa &= lsInstrMask

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.hooks, lsa)
	t.unit.WriteLS32(lsa, insts.WordLNOP)
}

// UnregisterRange removes every hook in [start, end].
func (t *TrapTable) UnregisterRange(start, end uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for lsa := range t.hooks {
		if lsa >= start && lsa <= end {
			delete(t.hooks, lsa)
			t.unit.WriteLS32(lsa, insts.WordLNOP)
		}
	}
}

// Lookup returns the hook at lsa.
func (t *TrapTable) Lookup(lsa uint32) (HookFunc, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn, ok := t.hooks[lsa&lsInstrMask]
	return fn, ok
}

// Len returns the number of installed hooks.
func (t *TrapTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.hooks)
}
