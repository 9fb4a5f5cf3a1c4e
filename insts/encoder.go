package insts

// Well-known instruction words.
const (
	WordLNOP  uint32 = 0x00200000
	WordNOP   uint32 = 0x40200000
	WordSYNC  uint32 = 0x00400000
	WordDSYNC uint32 = 0x00600000
	WordStop3 uint32 = 0x00000003
)

func rr(op11, rb, ra, rt uint32) uint32 {
	return op11<<21 | (rb&0x7F)<<14 | (ra&0x7F)<<7 | rt&0x7F
}

// EncodeStop returns STOP with the given signal code.
func EncodeStop(code uint32) uint32 {
	return op11STOP<<21 | code&0x3FFF
}

// EncodeStopD returns STOPD with the given signal code.
func EncodeStopD(code uint32) uint32 {
	return op11STOPD<<21 | code&0x3FFF
}

// EncodeRDCH returns RDCH rt, ch.
func EncodeRDCH(rt, ch uint8) uint32 {
	return rr(op11RDCH, 0, uint32(ch), uint32(rt))
}

// EncodeWRCH returns WRCH ch, rt.
func EncodeWRCH(ch, rt uint8) uint32 {
	return rr(op11WRCH, 0, uint32(ch), uint32(rt))
}

// EncodeRCHCNT returns RCHCNT rt, ch.
func EncodeRCHCNT(rt, ch uint8) uint32 {
	return rr(op11RCHCNT, 0, uint32(ch), uint32(rt))
}

// EncodeBI returns BI ra.
func EncodeBI(ra uint8) uint32 {
	return rr(op11BI, 0, uint32(ra), 0)
}

// EncodeIL returns IL rt, imm.
func EncodeIL(rt uint8, imm int16) uint32 {
	return op9IL<<23 | uint32(uint16(imm))<<7 | uint32(rt&0x7F)
}

// EncodeILA returns ILA rt, imm. Only the low 18 bits of imm are kept.
func EncodeILA(rt uint8, imm uint32) uint32 {
	return op7ILA<<25 | (imm&0x3FFFF)<<7 | uint32(rt&0x7F)
}

// EncodeBR returns BR with a word offset relative to the instruction.
func EncodeBR(words int16) uint32 {
	return op9BR<<23 | uint32(uint16(words))<<7
}
