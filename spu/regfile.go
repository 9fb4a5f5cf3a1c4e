package spu

// Reg is a 128-bit SPU register held as four big-endian words. Word 0 is
// the preferred slot.
type Reg [4]uint32

// RegFile represents the SPU register file.
// It contains 128 general-purpose registers, the program counter and the
// save/restore register used by interrupt handling.
type RegFile struct {
	// GPR holds the general-purpose registers. GPR[0] is the link register
	// and GPR[1] the stack pointer by convention.
	GPR [128]Reg

	// PC is the local store address of the next instruction.
	PC uint32

	// SRR0 is the machine state save/restore register.
	SRR0 uint32
}

// ReadReg returns the preferred slot of register reg.
func (r *RegFile) ReadReg(reg uint8) uint32 {
	return r.GPR[reg&0x7F][0]
}

// WriteReg writes value to the preferred slot of register reg and clears
// the other words.
func (r *RegFile) WriteReg(reg uint8, value uint32) {
	r.GPR[reg&0x7F] = Reg{value}
}

// SplatReg writes value to every word of register reg.
func (r *RegFile) SplatReg(reg uint8, value uint32) {
	r.GPR[reg&0x7F] = Reg{value, value, value, value}
}

// LR returns the preferred slot of the link register.
func (r *RegFile) LR() uint32 {
	return r.GPR[0][0]
}

// Reset clears every register.
func (r *RegFile) Reset() {
	*r = RegFile{}
}
