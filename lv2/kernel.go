package lv2

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/sarchlab/spusim/emu"
)

// Kernel exposes the ID-based system calls over the objects of this
// package. Objects live in the session's ID table.
type Kernel struct {
	session *emu.Session
	log     logr.Logger
}

// NewKernel creates a kernel bound to session.
func NewKernel(session *emu.Session) *Kernel {
	return &Kernel{
		session: session,
		log:     session.Logger().WithName("lv2"),
	}
}

// Session returns the session the kernel serves.
func (k *Kernel) Session() *emu.Session {
	return k.session
}

func lookup[T any](k *Kernel, id uint32) (T, error) {
	obj, ok := emu.Lookup[T](k.session.IDs(), id)
	if !ok {
		return obj, ESRCH
	}
	return obj, nil
}

// SemaphoreCreate creates a semaphore and returns its ID.
func (k *Kernel) SemaphoreCreate(initial, max int32, protocol Protocol, name uint64) (uint32, error) {
	sema, err := NewSemaphore(initial, max, protocol, name)
	if err != nil {
		k.log.Error(err, "semaphore create: invalid parameters", "initial", initial, "max", max, "protocol", protocol)
		return 0, err
	}
	id := k.session.IDs().Add(sema)
	k.log.V(1).Info("semaphore created", "id", id, "initial", initial, "max", max)
	return id, nil
}

// SemaphoreDestroy removes an idle semaphore.
func (k *Kernel) SemaphoreDestroy(id uint32) error {
	sema, err := lookup[*Semaphore](k, id)
	if err != nil {
		return err
	}
	if sema.Waiters() > 0 {
		return EBUSY
	}
	k.session.IDs().Remove(id)
	return nil
}

// SemaphoreWait waits on semaphore id. A zero timeout waits forever.
func (k *Kernel) SemaphoreWait(id uint32, timeout time.Duration) error {
	sema, err := lookup[*Semaphore](k, id)
	if err != nil {
		return err
	}
	err = sema.Wait(k.session.Done(), timeout)
	if err == emu.ErrSessionStopped {
		k.log.Info("semaphore wait aborted", "id", id)
	}
	return err
}

// SemaphoreTryWait takes a unit from semaphore id without blocking.
func (k *Kernel) SemaphoreTryWait(id uint32) error {
	sema, err := lookup[*Semaphore](k, id)
	if err != nil {
		return err
	}
	return sema.TryWait()
}

// SemaphorePost releases count units of semaphore id.
func (k *Kernel) SemaphorePost(id uint32, count int32) error {
	sema, err := lookup[*Semaphore](k, id)
	if err != nil {
		return err
	}
	return sema.Post(count)
}

// SemaphoreGetValue returns the visible count of semaphore id.
func (k *Kernel) SemaphoreGetValue(id uint32) (int32, error) {
	sema, err := lookup[*Semaphore](k, id)
	if err != nil {
		return 0, err
	}
	return sema.Value(), nil
}

// EventQueueCreate creates an event queue and returns its ID.
func (k *Kernel) EventQueueCreate(attr EventQueueAttr) (uint32, *EventQueue, error) {
	q, err := NewEventQueue(attr)
	if err != nil {
		return 0, nil, err
	}
	return k.session.IDs().Add(q), q, nil
}

// EventQueueDestroy destroys queue id, cancelling its receivers.
func (k *Kernel) EventQueueDestroy(id uint32) error {
	q, err := lookup[*EventQueue](k, id)
	if err != nil {
		return err
	}
	q.Destroy()
	k.session.IDs().Remove(id)
	return nil
}

// EventQueueReceive blocks thread tid on queue id until an event arrives.
func (k *Kernel) EventQueueReceive(id, tid uint32, prio int32) (Event, error) {
	q, err := lookup[*EventQueue](k, id)
	if err != nil {
		return Event{}, err
	}
	return q.Receive(k.session.Done(), tid, prio)
}

// EventPortCreate creates an unbound event port and returns its ID.
func (k *Kernel) EventPortCreate(name uint64) uint32 {
	p := NewEventPort()
	p.Name = name
	return k.session.IDs().Add(p)
}

// EventPortConnect binds port portID to queue queueID.
func (k *Kernel) EventPortConnect(portID, queueID uint32) error {
	p, err := lookup[*EventPort](k, portID)
	if err != nil {
		return err
	}
	q, err := lookup[*EventQueue](k, queueID)
	if err != nil {
		return err
	}
	return p.Connect(q)
}

// EventPortDisconnect unbinds port portID.
func (k *Kernel) EventPortDisconnect(portID uint32) error {
	p, err := lookup[*EventPort](k, portID)
	if err != nil {
		return err
	}
	return p.Disconnect()
}

// EventPortSend sends an event through port portID.
func (k *Kernel) EventPortSend(portID uint32, data1, data2, data3 uint64) error {
	p, err := lookup[*EventPort](k, portID)
	if err != nil {
		return err
	}
	return p.Send(Event{Source: p.Name, Data1: data1, Data2: data2, Data3: data3})
}

// EventFlagCreate creates an event flag and returns its ID.
func (k *Kernel) EventFlagCreate(init uint64, protocol Protocol) (uint32, error) {
	f, err := NewEventFlag(init, protocol)
	if err != nil {
		return 0, err
	}
	return k.session.IDs().Add(f), nil
}

// EventFlagDestroy removes an idle event flag.
func (k *Kernel) EventFlagDestroy(id uint32) error {
	f, err := lookup[*EventFlag](k, id)
	if err != nil {
		return err
	}
	if f.Waiters() > 0 {
		return EBUSY
	}
	k.session.IDs().Remove(id)
	return nil
}

// EventFlagSetBit sets bit of flag id.
func (k *Kernel) EventFlagSetBit(id, bit uint32) error {
	f, err := lookup[*EventFlag](k, id)
	if err != nil {
		return err
	}
	return f.SetBit(bit)
}

// EventFlagWait waits on flag id.
func (k *Kernel) EventFlagWait(id uint32, bits uint64, mode uint32, timeout time.Duration) (uint64, error) {
	f, err := lookup[*EventFlag](k, id)
	if err != nil {
		return 0, err
	}
	return f.Wait(k.session.Done(), bits, mode, timeout)
}

// SemaphoreAttributes describes a semaphore for debuggers.
type SemaphoreAttributes struct {
	Name     uint64
	Protocol Protocol
	Max      int32
	Value    int32
	Waiters  int32
}

// EventFlagAttributes describes an event flag for debuggers.
type EventFlagAttributes struct {
	Name     uint64
	Protocol Protocol
	Pattern  uint64
	Waiters  int
}

// EventQueueAttributes describes an event queue for debuggers.
type EventQueueAttributes struct {
	EventQueueAttr
	Pending int
	Waiters int
	Ports   int
}

// SemaphoreData reports the state of semaphore id.
func (k *Kernel) SemaphoreData(id uint32) (SemaphoreAttributes, error) {
	sema, err := lookup[*Semaphore](k, id)
	if err != nil {
		return SemaphoreAttributes{}, err
	}

	sema.mu.Lock()
	defer sema.mu.Unlock()

	return SemaphoreAttributes{
		Name:     sema.name,
		Protocol: sema.protocol,
		Max:      sema.max,
		Value:    sema.value,
		Waiters:  sema.waiters,
	}, nil
}

// EventFlagData reports the state of event flag id.
func (k *Kernel) EventFlagData(id uint32) (EventFlagAttributes, error) {
	f, err := lookup[*EventFlag](k, id)
	if err != nil {
		return EventFlagAttributes{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return EventFlagAttributes{
		Name:     f.Name,
		Protocol: f.protocol,
		Pattern:  f.pattern,
		Waiters:  f.waiters,
	}, nil
}

// EventQueueData reports the state of event queue id.
func (k *Kernel) EventQueueData(id uint32) (EventQueueAttributes, error) {
	q, err := lookup[*EventQueue](k, id)
	if err != nil {
		return EventQueueAttributes{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return EventQueueAttributes{
		EventQueueAttr: q.attr,
		Pending:        len(q.events),
		Waiters:        q.sq.Len(),
		Ports:          len(q.ports),
	}, nil
}
