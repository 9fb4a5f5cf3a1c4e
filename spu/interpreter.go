package spu

import (
	"fmt"

	"github.com/sarchlab/spusim/insts"
)

// Backend executes guest code for a unit, one step at a time. A returned
// error stops the unit and pauses the session.
type Backend interface {
	Step(u *Unit) error
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(u *Unit) error

// Step calls f(u).
func (f BackendFunc) Step(u *Unit) error {
	return f(u)
}

// Interpreter executes the channel-class subset of the SPU instruction
// set from local store.
type Interpreter struct {
	decoder *insts.Decoder

	instructionCount uint64
}

// NewInterpreter creates an interpreter backend.
func NewInterpreter() *Interpreter {
	return &Interpreter{decoder: insts.NewDecoder()}
}

// InstructionCount returns the number of instructions executed.
func (i *Interpreter) InstructionCount() uint64 {
	return i.instructionCount
}

// Step fetches, decodes and executes the instruction at PC.
func (i *Interpreter) Step(u *Unit) error {
	pc := u.Regs.PC
	word := u.ReadLS32(pc)
	inst := i.decoder.Decode(word)

	u.AddCycles(u.latency.GetLatency(inst))
	i.instructionCount++

	next := (pc + 4) & lsInstrMask

	switch inst.Op {
	case insts.OpSTOP, insts.OpSTOPD:
		if u.StopAndSignal(inst.Code) {
			return nil
		}

	case insts.OpLNOP, insts.OpNOP:

	case insts.OpSYNC, insts.OpDSYNC:
		u.fence.Add(1)

	case insts.OpRDCH:
		u.Regs.WriteReg(inst.RT, u.ReadChannel(uint32(inst.Channel)))

	case insts.OpRCHCNT:
		u.Regs.WriteReg(inst.RT, u.ChannelCount(uint32(inst.Channel)))

	case insts.OpWRCH:
		u.WriteChannel(uint32(inst.Channel), u.Regs.ReadReg(inst.RT))

	case insts.OpIL, insts.OpILA:
		u.Regs.SplatReg(inst.RT, uint32(inst.Imm))

	case insts.OpBR:
		next = (pc + uint32(inst.Imm<<2)) & lsInstrMask

	case insts.OpBI:
		next = u.Regs.ReadReg(inst.RA) & lsInstrMask

	default:
		return fmt.Errorf("%w: 0x%08x at 0x%05x", ErrUnknownInstruction, word, pc)
	}

	u.Regs.PC = next
	return nil
}
