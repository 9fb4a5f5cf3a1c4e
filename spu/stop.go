package spu

import (
	"fmt"
	"runtime"

	"github.com/sarchlab/spusim/lv2"
)

// StopAndSignal executes "stop code". It returns true when control flow
// was redirected and PC must not advance.
func (u *Unit) StopAndSignal(code uint32) bool {
	u.exitStatus.Store(code)

	u.log.V(2).Info("stop", "code", fmt.Sprintf("0x%x", code), "pc", fmt.Sprintf("0x%x", u.Regs.PC))

	switch code {
	case StopYield:
		runtime.Gosched()

	case StopHalt:
		u.Stop()

	case StopHook:
		return u.callHook()

	case StopReceiveEvent:
		u.receiveEvent()

	case StopGroupExit:
		if u.group == nil {
			u.log.Error(ErrNoGroup, "sys_spu_thread_group_exit")
			return false
		}

		status := u.OutMbox.Value()
		u.log.V(1).Info("sys_spu_thread_group_exit", "status", status)
		u.group.Exit(status)

	case StopThreadExit:
		u.log.V(1).Info("sys_spu_thread_exit", "status", u.OutMbox.Value())
		u.Status.SetValue(StatusStoppedByStop)
		u.Stop()

	default:
		u.session.Pause(fmt.Errorf("%w: 0x%x", ErrUnknownStopCode, code))
	}

	return false
}

func (u *Unit) callHook() bool {
	pc := u.Regs.PC

	hook, ok := u.hooks.Lookup(pc)
	if !ok {
		u.session.Pause(fmt.Errorf("%w: 0x%05x", ErrMissingHook, pc))
		return false
	}

	if !hook(u) {
		return false
	}

	u.Regs.PC = u.Regs.LR() & lsInstrMask
	return true
}

// receiveEvent implements sys_spu_thread_receive_event. The queue number
// comes from the outbound mailbox; the result code and the event payload
// go to the inbound mailbox.
func (u *Unit) receiveEvent() {
	num, ok := u.OutMbox.Pop()
	if !ok {
		u.log.Error(ErrEmptyMailbox, "sys_spu_thread_receive_event without queue number")
		u.InMbox.PushUncond(uint32(lv2.EINVAL))
		return
	}

	if u.InMbox.Count() > 0 {
		u.log.Error(ErrUnknownChannel, "sys_spu_thread_receive_event with full inbound mailbox", "spuq", num)
		u.InMbox.PushUncond(uint32(lv2.EBUSY))
		return
	}

	u.log.V(1).Info("sys_spu_thread_receive_event", "spuq", num)

	q := u.Queue(SPUQKey(num))
	if q == nil {
		u.InMbox.PushUncond(uint32(lv2.EINVAL))
		return
	}

	if err := q.Join(u.id, u.prio); err != nil {
		u.InMbox.PushUncond(uint32(lv2.CodeOf(err)))
		return
	}

	for {
		changed := q.Changed()

		ev, err := q.TryReceive(u.id)
		switch {
		case err == nil:
			u.InMbox.PushUncond(uint32(lv2.OK))
			u.InMbox.PushUncond(uint32(ev.Data1))
			u.InMbox.PushUncond(uint32(ev.Data2))
			u.InMbox.PushUncond(uint32(ev.Data3))
			return
		case err != lv2.EAGAIN:
			u.InMbox.PushUncond(uint32(lv2.CodeOf(err)))
			return
		}

		if !u.wait(changed) {
			q.Leave(u.id)
			u.log.Info("sys_spu_thread_receive_event aborted", "spuq", num)
			return
		}
	}
}
