package spu

import (
	"fmt"

	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/timing/latency"
)

// MFCStats counts the work done by a unit's MFC.
type MFCStats struct {
	Commands       uint64
	Puts           uint64
	Gets           uint64
	BytesMoved     uint64
	ListCommands   uint64
	ListElements   uint64
	ListStalls     uint64
	SequenceErrors uint64
	GroupMMIO      uint64
	AtomicCommands uint64
	PutLLCFailures uint64
	Cycles         uint64
}

// Stats returns a snapshot of the MFC counters.
func (u *Unit) Stats() MFCStats {
	u.mfcMu.Lock()
	defer u.mfcMu.Unlock()

	return u.stats
}

// ProcessCommand performs one transfer of size bytes between local store
// address lsa and effective address ea. Effective addresses inside the
// thread group window are redirected to a member's local store or signal
// notification registers.
func (u *Unit) ProcessCommand(cmd, tag, lsa uint32, ea uint64, size uint32) {
	u.mfcMu.Lock()
	defer u.mfcMu.Unlock()

	u.processCommand(cmd, tag, lsa, ea, size)
}

func (u *Unit) processCommand(cmd, tag, lsa uint32, ea uint64, size uint32) {
	if cmd&(MFCBarrierMask|MFCFenceMask) != 0 {
		u.fence.Add(1)
	}

	eal, ok := emu.Cast(ea)
	if !ok {
		u.log.Error(ErrBadAddress, "Truncating effective address", "ea", fmt.Sprintf("0x%x", ea))
	}
	lsa &= lsMask

	if eal >= ThreadBaseLow && u.group != nil {
		num := (eal & ThreadBaseMask) / ThreadOffset
		offset := (eal & ThreadBaseMask) % ThreadOffset
		u.stats.GroupMMIO++

		member := u.group.Member(int(num))
		switch {
		case member == nil:
			u.log.Error(ErrGroupMMIO, "Invalid thread", "cmd", fmt.Sprintf("0x%x", cmd),
				"ea", fmt.Sprintf("0x%x", eal), "num", num)
			return
		case offset+size-1 < LocalStoreSize:
			eal = member.lsBase + offset
		case cmd&MFCPut != 0 && size == 4 && (offset == ThreadSNR1 || offset == ThreadSNR2):
			index := 0
			if offset == ThreadSNR2 {
				index = 1
			}
			member.WriteSNR(index, u.ReadLS32(lsa))
			return
		default:
			u.log.Error(ErrGroupMMIO, "Invalid offset", "cmd", fmt.Sprintf("0x%x", cmd),
				"ea", fmt.Sprintf("0x%x", eal), "offset", fmt.Sprintf("0x%x", offset), "size", size)
			return
		}
	}

	switch cmd &^ (MFCBarrierMask | MFCFenceMask | MFCListMask | MFCResultMask) {
	case MFCPut:
		u.memory.Copy(eal, u.lsBase+lsa, size)
		u.stats.Puts++
	case MFCGet:
		u.memory.Copy(u.lsBase+lsa, eal, size)
		u.stats.Gets++
	default:
		u.session.Pause(fmt.Errorf("%w: cmd=0x%x lsa=0x%x ea=0x%x tag=0x%x size=0x%x",
			ErrUnknownDMA, cmd, lsa, ea, tag, size))
		return
	}

	u.stats.BytesMoved += uint64(size)
	u.charge(latency.TransferDMA, size)
}

func (u *Unit) charge(kind latency.TransferKind, size uint32) {
	cycles := u.latency.TransferCycles(kind, size)
	u.stats.Cycles += cycles
	u.cycles.Add(cycles)
}

// Enqueue executes the command described by regs.
func (u *Unit) Enqueue(regs *MFCReg) {
	u.mfcMu.Lock()
	defer u.mfcMu.Unlock()

	u.enqueue(regs)
}

func (u *Unit) enqueue(regs *MFCReg) {
	cmd := regs.CMDStatus.Value()
	op := cmd & MFCMaskCmd
	lsa := regs.LSA.Value()
	ea := uint64(regs.EAL.Value()) | uint64(regs.EAH.Value())<<32
	sizeTag := regs.SizeTag.Value()
	tag := uint16(sizeTag)
	size := uint16(sizeTag >> 16)

	u.stats.Commands++

	switch op &^ (MFCBarrierMask | MFCFenceMask) {
	case MFCPut, MFCPutR, MFCGet:
		u.log.V(2).Info("DMA", "regs", regs.Name, "cmd", fmt.Sprintf("0x%x", op),
			"lsa", fmt.Sprintf("0x%x", lsa), "ea", fmt.Sprintf("0x%x", ea),
			"tag", tag, "size", size)
		u.processCommand(cmd, uint32(tag), lsa, ea, uint32(size))
		regs.CMDStatus.SetValue(DMAEnqueueSuccessful)

	case MFCPutL, MFCPutRL, MFCGetL:
		u.log.V(2).Info("DMA list", "regs", regs.Name, "cmd", fmt.Sprintf("0x%x", op),
			"lsa", fmt.Sprintf("0x%x", lsa), "ea", fmt.Sprintf("0x%x", ea),
			"tag", tag, "size", size)
		u.listTransfer(regs, cmd, lsa, ea, tag, size)

	case MFCGetLLAR, MFCPutLLC, MFCPutLLUC, MFCPutQLLUC:
		u.log.V(2).Info("Atomic", "regs", regs.Name, "cmd", fmt.Sprintf("0x%x", op),
			"lsa", fmt.Sprintf("0x%x", lsa), "ea", fmt.Sprintf("0x%x", ea))
		if size != emu.LineSize {
			u.log.V(1).Info("Atomic command with unexpected size", "size", size)
		}
		u.atomic(regs, op, lsa, ea)

	default:
		u.session.Pause(fmt.Errorf("%w: cmd=0x%x lsa=0x%x ea=0x%x tag=0x%x size=0x%x",
			ErrUnknownCommand, cmd, lsa, ea, tag, size))
	}
}

func (u *Unit) atomic(regs *MFCReg, op, lsa uint32, ea uint64) {
	eal, ok := emu.Cast(ea)
	if !ok {
		u.log.Error(ErrBadAddress, "Truncating effective address", "ea", fmt.Sprintf("0x%x", ea))
	}

	rs := u.memory.Reservations()
	line := make([]byte, emu.LineSize)
	lsa &= lsMask

	u.stats.AtomicCommands++
	u.charge(latency.TransferAtomic, emu.LineSize)

	switch op {
	case MFCGetLLAR:
		rs.Acquire(u.id, eal, line, u.reservationLost)
		u.WriteLS(lsa, line)
		regs.AtomicStat.PushUncond(GetLLARSuccess)

	case MFCPutLLC:
		u.ReadLS(lsa, line)
		if rs.Update(u.id, eal, line) {
			regs.AtomicStat.PushUncond(PutLLCSuccess)
		} else {
			u.stats.PutLLCFailures++
			regs.AtomicStat.PushUncond(PutLLCFailure)
		}

	case MFCPutLLUC, MFCPutQLLUC:
		u.ReadLS(lsa, line)
		rs.Store(eal, line)
		if op == MFCPutLLUC {
			regs.AtomicStat.PushUncond(PutLLUCSuccess)
		}
	}
}
