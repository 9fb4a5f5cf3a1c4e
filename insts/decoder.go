package insts

import "fmt"

// Op represents an SPU opcode.
type Op uint16

// SPU opcodes.
const (
	OpUnknown Op = iota
	OpSTOP
	OpSTOPD
	OpLNOP
	OpNOP
	OpSYNC
	OpDSYNC
	OpRDCH
	OpWRCH
	OpRCHCNT
	OpIL
	OpILA
	OpBR
	OpBI
)

var opNames = [...]string{
	OpUnknown: "unknown",
	OpSTOP:    "stop",
	OpSTOPD:   "stopd",
	OpLNOP:    "lnop",
	OpNOP:     "nop",
	OpSYNC:    "sync",
	OpDSYNC:   "dsync",
	OpRDCH:    "rdch",
	OpWRCH:    "wrch",
	OpRCHCNT:  "rchcnt",
	OpIL:      "il",
	OpILA:     "ila",
	OpBR:      "br",
	OpBI:      "bi",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint16(o))
}

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatRR          // 11-bit opcode, RB, RA, RT
	FormatRI16        // 9-bit opcode, 16-bit immediate, RT
	FormatRI18        // 7-bit opcode, 18-bit immediate, RT
	FormatStop        // 11-bit opcode, 14-bit signal code
)

// Primary opcode values, left-aligned in the instruction word.
const (
	op11STOP   = 0x000
	op11LNOP   = 0x001
	op11SYNC   = 0x002
	op11DSYNC  = 0x003
	op11RDCH   = 0x00D
	op11RCHCNT = 0x00F
	op11STOPD  = 0x140
	op11WRCH   = 0x10D
	op11NOP    = 0x201
	op11BI     = 0x1A8
	op9IL      = 0x081
	op9BR      = 0x064
	op7ILA     = 0x21
)

// Instruction represents a decoded SPU instruction.
type Instruction struct {
	Op     Op     // Operation code
	Format Format // Encoding format

	RT uint8 // Target register
	RA uint8 // Source register A
	RB uint8 // Source register B

	Channel uint8  // Channel number (RA field of channel instructions)
	Code    uint32 // Stop-and-signal code
	Imm     int32  // Sign-extended immediate (IL, BR) or zero-extended (ILA)
}

// Decoder decodes SPU machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new SPU instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit big-endian SPU instruction word.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown}

	op11 := word >> 21
	switch op11 {
	case op11STOP:
		d.decodeStop(word, OpSTOP, inst)
		return inst
	case op11STOPD:
		d.decodeStop(word, OpSTOPD, inst)
		return inst
	case op11LNOP:
		d.decodeRR(word, OpLNOP, inst)
		return inst
	case op11NOP:
		d.decodeRR(word, OpNOP, inst)
		return inst
	case op11SYNC:
		d.decodeRR(word, OpSYNC, inst)
		return inst
	case op11DSYNC:
		d.decodeRR(word, OpDSYNC, inst)
		return inst
	case op11RDCH:
		d.decodeRR(word, OpRDCH, inst)
		inst.Channel = inst.RA
		return inst
	case op11WRCH:
		d.decodeRR(word, OpWRCH, inst)
		inst.Channel = inst.RA
		return inst
	case op11RCHCNT:
		d.decodeRR(word, OpRCHCNT, inst)
		inst.Channel = inst.RA
		return inst
	case op11BI:
		d.decodeRR(word, OpBI, inst)
		return inst
	}

	switch word >> 23 {
	case op9IL:
		d.decodeRI16(word, OpIL, inst)
		return inst
	case op9BR:
		d.decodeRI16(word, OpBR, inst)
		return inst
	}

	if word>>25 == op7ILA {
		inst.Op = OpILA
		inst.Format = FormatRI18
		inst.RT = uint8(word & 0x7F)
		inst.Imm = int32((word >> 7) & 0x3FFFF)
	}

	return inst
}

// decodeStop decodes STOP and STOPD.
// Format: op11 | 0 | code14
func (d *Decoder) decodeStop(word uint32, op Op, inst *Instruction) {
	inst.Op = op
	inst.Format = FormatStop
	inst.Code = word & 0x3FFF
}

// decodeRR decodes the register form.
// Format: op11 | RB | RA | RT
func (d *Decoder) decodeRR(word uint32, op Op, inst *Instruction) {
	inst.Op = op
	inst.Format = FormatRR
	inst.RB = uint8((word >> 14) & 0x7F)
	inst.RA = uint8((word >> 7) & 0x7F)
	inst.RT = uint8(word & 0x7F)
}

// decodeRI16 decodes the 16-bit immediate form.
// Format: op9 | I16 | RT
func (d *Decoder) decodeRI16(word uint32, op Op, inst *Instruction) {
	inst.Op = op
	inst.Format = FormatRI16
	inst.RT = uint8(word & 0x7F)
	inst.Imm = int32(int16(uint16(word >> 7)))
}
