package lv2

// Protocol selects which sleeper a primitive wakes first.
type Protocol uint32

// Scheduling protocols.
const (
	ProtocolFIFO             Protocol = 1
	ProtocolPriority         Protocol = 2
	ProtocolPriorityInherit  Protocol = 3
	protocolRetry            Protocol = 0x10
	ProtocolPriorityRetrying Protocol = ProtocolPriority | protocolRetry
)

// Valid reports whether p is a protocol a primitive may be created with.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolFIFO, ProtocolPriority, ProtocolPriorityInherit:
		return true
	}
	return false
}

type sleeper struct {
	id   uint32
	prio int32
}

// SleepQueue orders the threads blocked on one primitive. It is not safe
// for concurrent use; the owning primitive's lock guards it.
type SleepQueue struct {
	protocol Protocol
	list     []sleeper
}

// NewSleepQueue creates an empty queue using protocol.
func NewSleepQueue(protocol Protocol) *SleepQueue {
	return &SleepQueue{protocol: protocol}
}

// Push adds a sleeper. Lower prio values are woken first under the
// priority protocols.
func (q *SleepQueue) Push(id uint32, prio int32) {
	q.list = append(q.list, sleeper{id: id, prio: prio})
}

// Remove takes id out of the queue.
func (q *SleepQueue) Remove(id uint32) bool {
	for i, s := range q.list {
		if s.id == id {
			q.list = append(q.list[:i], q.list[i+1:]...)
			return true
		}
	}
	return false
}

// Signal returns the sleeper that should be woken next without removing it.
func (q *SleepQueue) Signal() (uint32, bool) {
	if len(q.list) == 0 {
		return 0, false
	}

	if q.protocol&^protocolRetry == ProtocolFIFO {
		return q.list[0].id, true
	}

	best := q.list[0]
	for _, s := range q.list[1:] {
		if s.prio < best.prio {
			best = s
		}
	}
	return best.id, true
}

// Len returns the number of sleepers.
func (q *SleepQueue) Len() int {
	return len(q.list)
}

// Clear removes every sleeper.
func (q *SleepQueue) Clear() {
	q.list = nil
}
