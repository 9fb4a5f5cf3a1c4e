package emu

import (
	"sort"
	"sync"
)

// IDManager hands out object IDs for kernel objects and units. IDs start
// at 1 and are never reused within a session.
type IDManager struct {
	objects map[uint32]any
	nextID  uint32
	mu      sync.Mutex
}

// NewIDManager creates an empty ID table.
func NewIDManager() *IDManager {
	return &IDManager{
		objects: make(map[uint32]any),
		nextID:  1,
	}
}

// Add registers obj and returns its new ID.
func (m *IDManager) Add(obj any) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.objects[id] = obj

	return id
}

// Get returns the object registered under id.
func (m *IDManager) Get(id uint32) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[id]
	return obj, ok
}

// Remove unregisters id. It reports whether the ID existed.
func (m *IDManager) Remove(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[id]; !ok {
		return false
	}
	delete(m.objects, id)
	return true
}

// Len returns the number of live objects.
func (m *IDManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.objects)
}

// IDs returns the live IDs in ascending order.
func (m *IDManager) IDs() []uint32 {
	m.mu.Lock()
	ids := make([]uint32, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Lookup returns the object registered under id if it has type T.
func Lookup[T any](m *IDManager, id uint32) (T, bool) {
	obj, ok := m.Get(id)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := obj.(T)
	return t, ok
}
