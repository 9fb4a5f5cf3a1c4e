package spu

import (
	"context"
	"errors"
	"fmt"

	"github.com/sarchlab/spusim/emu"
)

// ReadProblemState reads the problem-state register at offset. The second
// result is false for unknown offsets.
func (u *Unit) ReadProblemState(offset uint32) (uint32, bool) {
	switch offset {
	case MFCCMDStatusOffs:
		return u.MFC2.CMDStatus.Value(), true

	case MFCQStatusOffs:
		return ProxyQueueEmptyFlag | ProxyQueueSpace, true

	case PrxyQueryTypeOffs:
		return u.MFC2.QueryType.Value(), true

	case PrxyQueryMaskOffs:
		return u.MFC2.QueryMask.Value(), true

	case PrxyTagStatusOffs:
		return u.MFC2.TagStatus.Value(), true

	case SPUOutMBoxOffs:
		v, ok := u.OutMbox.Pop()
		if !ok {
			u.log.Error(ErrEmptyMailbox, "Problem state read of empty outbound mailbox")
		}
		return v, true

	case SPUMBoxStatusOffs:
		out := u.OutMbox.Count() & 0xff
		in := u.InMbox.FreeCount() << 8 & 0xff00
		intr := u.OutIntrMbox.Count() << 16 & 0xff0000
		return out | in | intr, true

	case SPURunCntlOffs:
		return u.runCntl.Load(), true

	case SPUStatusOffs:
		return u.Status.Value(), true

	case SPUNPCOffs:
		return u.NPC.Value(), true
	}

	u.log.Error(ErrUnknownMMIO, "Problem state read", "offset", fmt.Sprintf("0x%x", offset))
	return 0, false
}

// WriteProblemState writes the problem-state register at offset. The
// result is false for unknown offsets.
func (u *Unit) WriteProblemState(offset, v uint32) bool {
	switch offset {
	case MFCLSAOffs:
		u.MFC2.LSA.SetValue(v)

	case MFCEAHOffs:
		u.MFC2.EAH.SetValue(v)

	case MFCEALOffs:
		u.MFC2.EAL.SetValue(v)

	case MFCSizeTagOffs:
		u.MFC2.SizeTag.SetValue(v)

	case MFCClassCMDOffs:
		u.MFC2.CMDStatus.SetValue(v)
		u.Enqueue(u.MFC2)

	case PrxyQueryTypeOffs:
		if v != 2 {
			u.log.V(1).Info("Unexpected proxy query type", "type", v)
		}
		u.MFC2.QueryType.SetValue(v)
		u.MFC2.TagStatus.SetValue(u.MFC2.QueryMask.Value())

	case PrxyQueryMaskOffs:
		u.MFC2.QueryMask.SetValue(v)

	case SPUInMBoxOffs:
		if !u.InMbox.Push(v) {
			u.log.Info("Inbound mailbox full, value dropped", "value", fmt.Sprintf("0x%x", v))
		}

	case SPURunCntlOffs:
		u.runCntl.Store(v)
		switch v {
		case RunCntlRunnable:
			u.runFromNPC()
		case RunCntlStop:
			u.Stop()
			u.Status.SetValue(StatusStopped)
		default:
			u.log.Error(ErrUnknownMMIO, "Unknown run control value", "value", v)
		}

	case SPUNPCOffs:
		if v&3 != 0 {
			u.log.Error(ErrUnknownMMIO, "Misaligned NPC", "value", fmt.Sprintf("0x%x", v))
		}
		u.NPC.SetValue(v & lsInstrMask)

	case SPURdSigNotify1Offs:
		u.WriteSNR(0, v)

	case SPURdSigNotify2Offs:
		u.WriteSNR(1, v)

	default:
		u.log.Error(ErrUnknownMMIO, "Problem state write", "offset", fmt.Sprintf("0x%x", offset),
			"value", fmt.Sprintf("0x%x", v))
		return false
	}

	return true
}

func (u *Unit) runFromNPC() {
	if !u.startAt(u.NPC.Value()) {
		return
	}

	go func() {
		err := u.loop(context.Background())
		if err != nil && !errors.Is(err, emu.ErrSessionStopped) {
			u.log.Error(err, "Raw unit stopped")
		}
	}()
}
