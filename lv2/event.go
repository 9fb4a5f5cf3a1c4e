package lv2

import (
	"sync"

	"github.com/sarchlab/spusim/emu"
)

// Event sources used for SPU thread events.
const (
	SPUThreadEventUserKey uint64 = 0xFFFFFFFF53505501
	SPUThreadEventDMAKey  uint64 = 0xFFFFFFFF53505502
)

// Queue types.
const (
	QueueTypePPU uint32 = 1
	QueueTypeSPU uint32 = 2
)

// MaxQueueSize is the largest event queue depth a caller may request.
const MaxQueueSize = 127

// Event is one entry of an event queue.
type Event struct {
	Source uint64
	Data1  uint64
	Data2  uint64
	Data3  uint64
}

// EventQueueAttr describes a queue at creation.
type EventQueueAttr struct {
	Protocol Protocol
	Type     uint32
	Name     uint64
	Key      uint64
	Size     int
}

// EventQueue is a bounded FIFO of events with a sleep queue of receivers.
//
// Lock order: an EventPort's lock is always taken before its queue's lock.
type EventQueue struct {
	mu sync.Mutex

	attr      EventQueueAttr
	events    []Event
	sq        *SleepQueue
	ports     []*EventPort
	destroyed bool

	changed emu.Broadcast
}

// NewEventQueue creates a queue. Size must be in [1, MaxQueueSize].
func NewEventQueue(attr EventQueueAttr) (*EventQueue, error) {
	if attr.Size <= 0 || attr.Size > MaxQueueSize {
		return nil, EINVAL
	}
	if !attr.Protocol.Valid() {
		return nil, EINVAL
	}
	if attr.Type == 0 {
		attr.Type = QueueTypePPU
	}

	return &EventQueue{
		attr:   attr,
		events: make([]Event, 0, attr.Size),
		sq:     NewSleepQueue(attr.Protocol),
	}, nil
}

// Attr returns the creation attributes.
func (q *EventQueue) Attr() EventQueueAttr {
	return q.attr
}

// Changed returns a channel closed on the next state change.
func (q *EventQueue) Changed() <-chan struct{} {
	return q.changed.Wait()
}

// Push appends an event. It fails when the queue is full or destroyed.
func (q *EventQueue) Push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.destroyed || len(q.events) >= q.attr.Size {
		return false
	}
	q.events = append(q.events, ev)
	q.changed.Notify()

	return true
}

// Len returns the number of pending events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.events)
}

// Waiters returns the number of threads in the sleep queue.
func (q *EventQueue) Waiters() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.sq.Len()
}

// PortCount returns the number of ports connected to the queue.
func (q *EventQueue) PortCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.ports)
}

// IsDestroyed reports whether Destroy has run.
func (q *EventQueue) IsDestroyed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.destroyed
}

// Join puts thread tid in the sleep queue.
func (q *EventQueue) Join(tid uint32, prio int32) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.destroyed {
		return ECANCELED
	}
	q.sq.Push(tid, prio)
	return nil
}

// Leave removes thread tid from the sleep queue.
func (q *EventQueue) Leave(tid uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sq.Remove(tid) {
		q.changed.Notify()
	}
}

// TryReceive pops the head event if tid is the sleeper the protocol picks.
// tid must have joined. On success tid leaves the sleep queue. It returns
// ECANCELED once the queue is destroyed and EAGAIN when tid must keep
// waiting.
func (q *EventQueue) TryReceive(tid uint32) (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.destroyed {
		return Event{}, ECANCELED
	}
	if len(q.events) == 0 {
		return Event{}, EAGAIN
	}
	if next, ok := q.sq.Signal(); !ok || next != tid {
		return Event{}, EAGAIN
	}

	ev := q.events[0]
	q.events = append(q.events[:0], q.events[1:]...)
	q.sq.Remove(tid)
	q.changed.Notify()

	return ev, nil
}

// Receive blocks thread tid until it receives an event, the queue is
// destroyed, or done is closed.
func (q *EventQueue) Receive(done <-chan struct{}, tid uint32, prio int32) (Event, error) {
	if err := q.Join(tid, prio); err != nil {
		return Event{}, err
	}

	for {
		changed := q.Changed()

		ev, err := q.TryReceive(tid)
		if err != EAGAIN {
			return ev, err
		}

		select {
		case <-changed:
		case <-done:
			q.Leave(tid)
			return Event{}, emu.ErrSessionStopped
		}
	}
}

// Drain removes and returns every pending event.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	events := append([]Event(nil), q.events...)
	q.events = q.events[:0]
	q.changed.Notify()

	return events
}

// Destroy cancels every receiver and disconnects every port. A destroyed
// queue rejects pushes and connections.
func (q *EventQueue) Destroy() {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return
	}
	q.destroyed = true
	q.events = nil
	q.sq.Clear()
	ports := q.ports
	q.ports = nil
	q.changed.Notify()
	q.mu.Unlock()

	for _, p := range ports {
		p.mu.Lock()
		if p.queue == q {
			p.queue = nil
		}
		p.mu.Unlock()
	}
}

func (q *EventQueue) addPort(p *EventPort) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.destroyed {
		return ESRCH
	}
	q.ports = append(q.ports, p)
	return nil
}

func (q *EventQueue) removePort(p *EventPort) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, port := range q.ports {
		if port == p {
			q.ports = append(q.ports[:i], q.ports[i+1:]...)
			return
		}
	}
}

// EventPort forwards events to at most one queue.
type EventPort struct {
	mu    sync.Mutex
	queue *EventQueue
	Name  uint64
}

// NewEventPort creates an unbound port.
func NewEventPort() *EventPort {
	return &EventPort{}
}

// Connect binds the port to q.
func (p *EventPort) Connect(q *EventQueue) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue != nil {
		return EISCONN
	}
	if err := q.addPort(p); err != nil {
		return err
	}
	p.queue = q
	return nil
}

// Disconnect unbinds the port.
func (p *EventPort) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue == nil {
		return ENOTCONN
	}
	p.queue.removePort(p)
	p.queue = nil
	return nil
}

// Queue returns the bound queue or nil.
func (p *EventPort) Queue() *EventQueue {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.queue
}

// Send pushes ev to the bound queue. It returns ENOTCONN when the port is
// unbound and EBUSY when the queue is full.
func (p *EventPort) Send(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue == nil {
		return ENOTCONN
	}
	if !p.queue.Push(ev) {
		return EBUSY
	}
	return nil
}
