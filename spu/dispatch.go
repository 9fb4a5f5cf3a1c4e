package spu

import (
	"fmt"

	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/lv2"
)

// interrupt class used by the outbound interrupt mailbox
const mailboxIntrClass = 2

// outbound interrupt mailbox selectors of grouped units
const (
	intrSendEvent  = 64
	intrThrowEvent = 128
	intrSetBit     = 128
	intrSetBitImpt = 192
)

// ChannelCount returns the occupancy or availability count of channel ch.
func (u *Unit) ChannelCount(ch uint32) uint32 {
	switch ch {
	case SPUWrOutMbox:
		return u.OutMbox.FreeCount()
	case SPUWrOutIntrMbox:
		return u.OutIntrMbox.FreeCount()
	case SPURdInMbox:
		return u.InMbox.Count()
	case MFCRdTagStat, MFCWrTagUpdate:
		return u.MFC1.TagStatus.Count()
	case MFCRdListStallStat:
		return u.StallStat.Count()
	case SPURdSigNotify1:
		return u.SNR[0].Count()
	case SPURdSigNotify2:
		return u.SNR[1].Count()
	case MFCRdAtomicStat:
		return u.MFC1.AtomicStat.Count()
	case SPURdEventStat:
		if u.CheckEvents() {
			return 1
		}
		return 0
	case SPUWrSRR0, SPURdSRR0:
		return 1
	}

	u.log.Error(ErrUnknownChannel, "Count of unknown channel", "ch", ch, "name", ChannelName(ch))
	return 0
}

// ReadChannel reads channel ch. Reads of empty blocking channels wait
// until a value arrives or the unit or session stops; a stopped read
// returns 0.
func (u *Unit) ReadChannel(ch uint32) uint32 {
	switch ch {
	case SPURdInMbox:
		return u.readBlocking(ch, u.InMbox, false)
	case MFCRdTagStat:
		return u.readBlocking(ch, u.MFC1.TagStatus, false)
	case SPURdSigNotify1:
		return u.readBlocking(ch, u.SNR[0], u.snrCfg.Load()&1 != 0)
	case SPURdSigNotify2:
		return u.readBlocking(ch, u.SNR[1], u.snrCfg.Load()&2 != 0)
	case MFCRdAtomicStat:
		return u.readBlocking(ch, u.MFC1.AtomicStat, false)
	case MFCRdListStallStat:
		return u.readBlocking(ch, u.StallStat, false)

	case SPURdSRR0:
		return u.Regs.SRR0
	case MFCRdTagMask:
		return u.MFC1.QueryMask.Value()
	case SPURdDec:
		elapsed := u.session.Clock().Now() - u.decStart.Load()
		return u.decValue.Load() - uint32(elapsed)
	case SPURdEventMask:
		return u.eventMask.Load()
	case SPURdMachStat:
		return 1

	case SPURdEventStat:
		for {
			changed := u.eventsChanged.Wait()
			if ev := u.events.Load() & u.eventMask.Load(); ev != 0 {
				return ev
			}
			if !u.wait(changed) {
				u.log.Info("Channel read aborted", "ch", ChannelName(ch))
				return 0
			}
		}
	}

	u.log.Error(ErrUnknownChannel, "Read of unknown channel", "ch", ch, "name", ChannelName(ch))
	return 0
}

func (u *Unit) readBlocking(ch uint32, c *Channel, exchange bool) uint32 {
	v, ok := u.popBlocking(c, exchange)
	if !ok {
		u.log.Info("Channel read aborted", "ch", ChannelName(ch))
	}
	return v
}

// WriteChannel writes v to channel ch.
func (u *Unit) WriteChannel(ch, v uint32) {
	switch ch {
	case SPUWrSRR0:
		u.Regs.SRR0 = v & lsInstrMask

	case SPUWrOutIntrMbox:
		u.writeOutIntrMbox(v)

	case SPUWrOutMbox:
		if !u.pushBlocking(u.OutMbox, v) {
			u.log.Info("Channel write aborted", "ch", ChannelName(ch))
		}

	case MFCWrMSSyncReq:
		u.fence.Add(1)

	case MFCWrTagMask:
		u.MFC1.QueryMask.SetValue(v)

	case MFCWrTagUpdate:
		u.MFC1.TagStatus.PushUncond(u.MFC1.QueryMask.Value())

	case MFCLSA:
		u.MFC1.LSA.SetValue(v)

	case MFCEAH:
		u.MFC1.EAH.SetValue(v)

	case MFCEAL:
		u.MFC1.EAL.SetValue(v)

	case MFCSize:
		c := u.MFC1.SizeTag
		c.SetValue(c.Value()&0xffff | v<<16)

	case MFCTagID:
		c := u.MFC1.SizeTag
		c.SetValue(c.Value()&0xffff0000 | v&0xffff)

	case MFCCmd:
		u.MFC1.CMDStatus.SetValue(v)
		u.Enqueue(u.MFC1)

	case MFCWrListStallAck:
		u.AckListStall(v)

	case SPUWrDec:
		u.decStart.Store(u.session.Clock().Now())
		u.decValue.Store(v)

	case SPUWrEventMask:
		if v&^EventImplemented != 0 {
			u.log.Error(ErrUnknownChannel, "Unsupported events in mask", "mask", fmt.Sprintf("0x%x", v))
		}
		u.eventMask.Store(v)
		u.eventsChanged.Notify()

	case SPUWrEventAck:
		u.events.And(^v)
		u.eventsChanged.Notify()

	default:
		u.log.Error(ErrUnknownChannel, "Write to unknown channel", "ch", ch, "name", ChannelName(ch),
			"value", fmt.Sprintf("0x%x", v))
	}
}

func (u *Unit) writeOutIntrMbox(v uint32) {
	if u.group == nil {
		u.raiseMailboxInterrupt(v)
		return
	}

	code := v >> 24
	switch {
	case code < intrSendEvent:
		u.sendEvent(code, v, true)
	case code < intrThrowEvent:
		u.sendEvent(code&63, v, false)
	case code == intrSetBit:
		u.setFlagBit(v, true)
	case code == intrSetBitImpt:
		u.setFlagBit(v, false)
	default:
		if _, ok := u.OutMbox.Pop(); !ok {
			u.log.Error(ErrEmptyMailbox, "Interrupt mailbox write without payload", "value", fmt.Sprintf("0x%x", v))
		}
		u.log.Error(ErrUnknownChannel, "Unknown interrupt mailbox code", "code", code)
		u.InMbox.PushUncond(uint32(lv2.EINVAL))
	}
}

func (u *Unit) raiseMailboxInterrupt(v uint32) {
	if !u.pushBlocking(u.OutIntrMbox, v) {
		u.log.Info("Channel write aborted", "ch", ChannelName(SPUWrOutIntrMbox))
		return
	}

	u.intrMu.Lock()
	tag := &u.intrTags[mailboxIntrClass]
	tag.Stat |= 1
	thread, arg := tag.Thread, tag.Arg
	u.intrMu.Unlock()

	if thread == nil {
		u.log.V(1).Info("No interrupt thread established", "class", mailboxIntrClass)
		return
	}
	if thread.IsAlive() {
		u.session.Pause(fmt.Errorf("%w: class %d", ErrDoubleInterrupt, mailboxIntrClass))
		return
	}

	thread.FastCall(arg)
}

// sendEvent pushes a user event through port spup. The payload word is
// taken from the outbound mailbox.
func (u *Unit) sendEvent(spup, v uint32, respond bool) {
	data, ok := u.OutMbox.Pop()
	if !ok {
		u.log.Error(ErrEmptyMailbox, "Event send without payload", "value", fmt.Sprintf("0x%x", v))
		return
	}

	u.log.V(1).Info("sys_spu_thread_send_event", "port", spup,
		"data0", fmt.Sprintf("0x%x", v&0x00ffffff), "data1", fmt.Sprintf("0x%x", data), "respond", respond)

	err := u.ports[spup].Send(lv2.Event{
		Source: lv2.SPUThreadEventUserKey,
		Data1:  uint64(u.id),
		Data2:  uint64(spup)<<32 | uint64(v&0x00ffffff),
		Data3:  uint64(data),
	})
	if !respond {
		if err != nil {
			u.log.V(1).Info("Event throw dropped", "port", spup, "reason", err.Error())
		}
		return
	}
	u.InMbox.PushUncond(uint32(lv2.CodeOf(err)))
}

// setFlagBit sets bit v&0xffffff of the event flag whose ID is taken from
// the outbound mailbox.
func (u *Unit) setFlagBit(v uint32, respond bool) {
	bit := v & 0x00ffffff

	id, ok := u.OutMbox.Pop()
	if !ok {
		u.log.Error(ErrEmptyMailbox, "Event flag set without ID", "value", fmt.Sprintf("0x%x", v))
		return
	}

	u.log.V(1).Info("sys_event_flag_set_bit", "id", id, "bit", bit, "respond", respond)

	var err error
	if flag, found := emu.Lookup[*lv2.EventFlag](u.session.IDs(), id); !found {
		err = lv2.ESRCH
	} else {
		err = flag.SetBit(bit)
	}

	if err != nil {
		u.log.V(1).Info("Event flag set failed", "id", id, "bit", bit, "reason", err.Error())
	}
	if respond {
		u.InMbox.PushUncond(uint32(lv2.CodeOf(err)))
	}
}

// Fences returns the number of memory fences the unit has issued.
func (u *Unit) Fences() uint64 {
	return u.fence.Load()
}
