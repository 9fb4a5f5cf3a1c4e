package spu

import (
	"github.com/sarchlab/spusim/lv2"
)

// NumPorts is the number of event ports of a unit.
const NumPorts = 64

// Port returns event port index, or nil if index is out of range.
func (u *Unit) Port(index int) *lv2.EventPort {
	if index < 0 || index >= NumPorts {
		return nil
	}
	return u.ports[index]
}

// ConnectPort binds event port index to q. Binding an already bound port
// fails with EISCONN.
func (u *Unit) ConnectPort(index int, q *lv2.EventQueue) error {
	p := u.Port(index)
	if p == nil || q == nil {
		return lv2.EINVAL
	}
	return p.Connect(q)
}

// DisconnectPort unbinds event port index.
func (u *Unit) DisconnectPort(index int) error {
	p := u.Port(index)
	if p == nil {
		return lv2.EINVAL
	}
	return p.Disconnect()
}

// BindQueue makes q receivable through SPU queue number num.
func (u *Unit) BindQueue(num uint32, q *lv2.EventQueue) error {
	if q == nil {
		return lv2.EINVAL
	}

	u.queuesMu.Lock()
	defer u.queuesMu.Unlock()

	key := SPUQKey(num)
	if _, ok := u.queues[key]; ok {
		return lv2.EBUSY
	}
	u.queues[key] = q
	return nil
}

// UnbindQueue removes SPU queue number num.
func (u *Unit) UnbindQueue(num uint32) error {
	u.queuesMu.Lock()
	defer u.queuesMu.Unlock()

	key := SPUQKey(num)
	if _, ok := u.queues[key]; !ok {
		return lv2.ESRCH
	}
	delete(u.queues, key)
	return nil
}

// Queue returns the queue bound under key, or nil.
func (u *Unit) Queue(key uint64) *lv2.EventQueue {
	u.queuesMu.Lock()
	defer u.queuesMu.Unlock()

	return u.queues[key]
}
