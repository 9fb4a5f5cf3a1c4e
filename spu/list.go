package spu

import (
	"fmt"

	"github.com/sarchlab/spusim/timing/latency"
)

// stalledList is the resume point of a list command parked on a stall bit.
type stalledList struct {
	regs *MFCReg
	cmd  uint32
	ea   uint64
	lsa  uint32
	size uint16
}

// StalledList describes a parked list command.
type StalledList struct {
	Cmd  uint32
	EA   uint64
	LSA  uint32
	Size uint16
}

// Stalled returns the list command parked on tag, if any.
func (u *Unit) Stalled(tag uint32) (StalledList, bool) {
	u.mfcMu.Lock()
	defer u.mfcMu.Unlock()

	if tag >= uint32(len(u.stallList)) || u.stallList[tag].regs == nil {
		return StalledList{}, false
	}

	s := u.stallList[tag]
	return StalledList{Cmd: s.cmd, EA: s.ea, LSA: s.lsa, Size: s.size}, true
}

// listTransfer walks the list of size/8 elements at local store address
// ea. Each element is {u16 stall|reserved, u16 size, u32 eal}. An element
// with the stall bit set parks the rest of the list until the tag is
// acknowledged.
func (u *Unit) listTransfer(regs *MFCReg, cmd, lsa uint32, ea uint64, tag, size uint16) {
	listAddr := uint32(ea) & lsMask
	count := uint32(size) / 8
	lsa &= lsQuadMask
	result := uint32(DMAEnqueueSuccessful)

	u.stats.ListCommands++

	if uint32(tag) >= uint32(len(u.stallList)) {
		u.log.Error(ErrStallTag, "Tag out of range", "tag", tag)
		u.stats.SequenceErrors++
		regs.CMDStatus.SetValue(DMASequenceError)
		return
	}

	for i := uint32(0); i < count; i++ {
		rec := listAddr + i*8
		stall := u.ReadLS16(rec)
		ts := uint32(u.ReadLS16(rec + 2))
		eal := u.ReadLS32(rec + 4)

		if stall&0x8000 == 0 && ts < 16 && ts != 1 && ts != 2 && ts != 4 && ts != 8 {
			u.log.Error(ErrInvalidList, "Invalid transfer size", "element", i,
				"size", ts, "eal", fmt.Sprintf("0x%x", eal))
			result = DMASequenceError
			break
		}

		if ts != 0 {
			u.processCommand(cmd, uint32(tag), lsa|eal&0xf, uint64(eal), ts)
			lsa += max(ts, 16)
			u.stats.ListElements++
			u.charge(latency.TransferListElement, 0)
		}

		if stall&0x8000 != 0 {
			u.StallStat.PushUncondOR(1 << tag)

			if u.stallList[tag].regs != nil {
				u.log.Error(ErrStallTag, "Tag already stalled", "tag", tag)
				result = DMASequenceError
				break
			}

			u.stallList[tag] = stalledList{
				regs: regs,
				cmd:  cmd,
				ea:   ea&^0xffffffff | uint64(listAddr+(i+1)*8),
				lsa:  lsa,
				size: uint16((count - i - 1) * 8),
			}
			u.stats.ListStalls++
			break
		}
	}

	if result == DMASequenceError {
		u.stats.SequenceErrors++
	}
	regs.CMDStatus.SetValue(result)
}

// AckListStall resumes the list command parked on tag.
func (u *Unit) AckListStall(tag uint32) {
	u.mfcMu.Lock()
	defer u.mfcMu.Unlock()

	if tag >= uint32(len(u.stallList)) {
		u.log.Error(ErrStallTag, "Invalid tag", "tag", tag)
		return
	}

	s := u.stallList[tag]
	if s.regs == nil {
		u.log.Error(ErrStallTag, "No stalled list", "tag", tag)
		return
	}
	u.stallList[tag] = stalledList{}

	u.listTransfer(s.regs, s.cmd, s.lsa, s.ea, uint16(tag), s.size)
}
