package benchmarks

import (
	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/insts"
	"github.com/sarchlab/spusim/spu"
)

// Main memory buffers used by the benchmarks. They stay below 0x40000 so
// that a single ila can load them.
const (
	srcBuffer = 0x20000
	dstBuffer = 0x30000
	lineAddr  = 0x38000
)

// Local store layout shared by the benchmarks.
const (
	dataLSA = 0x8000
	listLSA = 0x4000
)

// GetMicrobenchmarks returns the standard set of MFC microbenchmarks.
// Each benchmark targets one cost of the model.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		channelOps(),
		dmaSmallGets(),
		dmaLargeGet(),
		dmaRoundTrip(),
		dmaList(),
		atomicUpdate(),
	}
}

// GetCoreBenchmarks returns a minimal set for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		channelOps(),
		dmaRoundTrip(),
		atomicUpdate(),
	}
}

// 1. Channel ops - non-blocking channel reads and writes only
func channelOps() Benchmark {
	var prog []uint32
	prog = append(prog, insts.EncodeIL(3, 1))
	for i := 0; i < 10; i++ {
		prog = append(prog,
			insts.EncodeWRCH(spu.MFCWrTagMask, 3),
			insts.EncodeRCHCNT(4, spu.SPUWrOutMbox),
		)
	}

	return Benchmark{
		Name:         "channel_ops",
		Description:  "10 tag mask writes and mailbox counts - measures channel latency",
		Program:      BuildProgram(prog, halt()),
		ExpectedExit: spu.StopHalt,
	}
}

// 2. Small GETs - setup-dominated transfers
func dmaSmallGets() Benchmark {
	var parts [][]uint32
	for i := uint32(0); i < 4; i++ {
		parts = append(parts, DMA(spu.MFCGet, dataLSA+16*i, srcBuffer+16*i, 16, 0))
	}
	parts = append(parts, WaitTags(1), halt())

	return Benchmark{
		Name:         "dma_small_gets",
		Description:  "4 GETs of 16 bytes - measures DMA setup cost",
		Setup:        fillSource(64),
		Program:      BuildProgram(parts...),
		ExpectedExit: spu.StopHalt,
	}
}

// 3. Large GET - bandwidth-dominated transfer
func dmaLargeGet() Benchmark {
	return Benchmark{
		Name:        "dma_large_get",
		Description: "1 GET of 16 KiB - measures DMA bandwidth",
		Setup:       fillSource(0x4000),
		Program: BuildProgram(
			DMA(spu.MFCGet, dataLSA, srcBuffer, 0x4000, 2),
			WaitTags(1<<2),
			halt(),
		),
		ExpectedExit: spu.StopHalt,
	}
}

// 4. Round trip - GET then PUT of the same block
func dmaRoundTrip() Benchmark {
	return Benchmark{
		Name:        "dma_round_trip",
		Description: "GET and PUT of 128 bytes - measures a read-modify-write block move",
		Setup:       fillSource(128),
		Program: BuildProgram(
			DMA(spu.MFCGet, dataLSA, srcBuffer, 128, 0),
			DMA(spu.MFCPut, dataLSA, dstBuffer, 128, 0),
			WaitTags(1),
			halt(),
		),
		ExpectedExit: spu.StopHalt,
	}
}

// 5. List GET - 4 elements gathered into contiguous local store
func dmaList() Benchmark {
	return Benchmark{
		Name:        "dma_list",
		Description: "GETL with 4 elements of 64 bytes - measures list element cost",
		Setup: func(u *spu.Unit, memory *emu.Memory) {
			fillSource(0x400)(u, memory)
			for i := uint32(0); i < 4; i++ {
				u.WriteLS16(listLSA+8*i, 0)
				u.WriteLS16(listLSA+8*i+2, 64)
				u.WriteLS32(listLSA+8*i+4, srcBuffer+0x100*i)
			}
		},
		Program: BuildProgram(
			DMA(spu.MFCGetL, dataLSA, listLSA, 32, 3),
			WaitTags(1<<3),
			halt(),
		),
		ExpectedExit: spu.StopHalt,
	}
}

// 6. Atomic update - GETLLAR followed by a successful PUTLLC
func atomicUpdate() Benchmark {
	return Benchmark{
		Name:        "atomic_update",
		Description: "GETLLAR and PUTLLC on one line - measures atomic cost",
		Program: BuildProgram(
			DMA(spu.MFCGetLLAR, dataLSA, lineAddr, 128, 0),
			[]uint32{insts.EncodeRDCH(5, spu.MFCRdAtomicStat)},
			DMA(spu.MFCPutLLC, dataLSA, lineAddr, 128, 0),
			[]uint32{insts.EncodeRDCH(5, spu.MFCRdAtomicStat)},
			halt(),
		),
		ExpectedExit: spu.StopHalt,
	}
}

func fillSource(size uint32) func(u *spu.Unit, memory *emu.Memory) {
	return func(_ *spu.Unit, memory *emu.Memory) {
		for off := uint32(0); off < size; off += 4 {
			memory.Write32(srcBuffer+off, off)
		}
	}
}

func halt() []uint32 {
	return []uint32{insts.EncodeStop(spu.StopHalt)}
}

// Helper functions for building SPU programs

// BuildProgram concatenates instruction sequences.
func BuildProgram(parts ...[]uint32) []uint32 {
	var n int
	for _, p := range parts {
		n += len(p)
	}

	program := make([]uint32, 0, n)
	for _, p := range parts {
		program = append(program, p...)
	}
	return program
}

// DMA stages and issues one MFC command through the channel interface,
// using r3 as scratch. Every operand must fit an 18-bit immediate.
func DMA(cmd, lsa, ea, size, tag uint32) []uint32 {
	return []uint32{
		insts.EncodeILA(3, lsa),
		insts.EncodeWRCH(spu.MFCLSA, 3),
		insts.EncodeILA(3, 0),
		insts.EncodeWRCH(spu.MFCEAH, 3),
		insts.EncodeILA(3, ea),
		insts.EncodeWRCH(spu.MFCEAL, 3),
		insts.EncodeILA(3, size),
		insts.EncodeWRCH(spu.MFCSize, 3),
		insts.EncodeILA(3, tag),
		insts.EncodeWRCH(spu.MFCTagID, 3),
		insts.EncodeILA(3, cmd),
		insts.EncodeWRCH(spu.MFCCmd, 3),
	}
}

// WaitTags waits for the tag groups in mask, leaving the status in r4.
func WaitTags(mask uint32) []uint32 {
	return []uint32{
		insts.EncodeILA(3, mask),
		insts.EncodeWRCH(spu.MFCWrTagMask, 3),
		insts.EncodeIL(3, 2),
		insts.EncodeWRCH(spu.MFCWrTagUpdate, 3),
		insts.EncodeRDCH(4, spu.MFCRdTagStat),
	}
}
