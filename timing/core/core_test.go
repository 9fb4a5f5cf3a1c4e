package core_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/insts"
	"github.com/sarchlab/spusim/spu"
	"github.com/sarchlab/spusim/timing/core"
)

var _ = Describe("Core", func() {
	var (
		session *emu.Session
		u       *spu.Unit
		c       *core.Core
	)

	load := func(lsa uint32, words ...uint32) {
		for i, w := range words {
			u.WriteLS32(lsa+uint32(i)*4, w)
		}
	}

	BeforeEach(func() {
		session = emu.NewSession(emu.WithLogger(GinkgoLogr))
		DeferCleanup(session.Stop)

		var err error
		u, err = spu.NewUnit(session)
		Expect(err).NotTo(HaveOccurred())

		c = core.NewCore(u)
	})

	It("should not be running before SetPC", func() {
		Expect(c.Halted()).To(BeTrue())
		Expect(c.Unit).To(BeIdenticalTo(u))
	})

	It("should set PC and start the unit", func() {
		c.SetPC(0x1002)

		Expect(u.Regs.PC).To(Equal(uint32(0x1000)))
		Expect(c.Halted()).To(BeFalse())
		Expect(u.Status.Value()).To(Equal(uint32(spu.StatusRunning)))
	})

	It("should execute one instruction per tick", func() {
		load(0x100,
			insts.EncodeIL(3, 42),
			insts.EncodeWRCH(spu.SPUWrOutMbox, 3),
		)

		c.SetPC(0x100)
		c.Tick()

		Expect(u.Regs.ReadReg(3)).To(Equal(uint32(42)))
		Expect(u.Regs.PC).To(Equal(uint32(0x104)))
		Expect(u.OutMbox.Count()).To(BeZero())

		c.Tick()

		Expect(u.OutMbox.Value()).To(Equal(uint32(42)))
		Expect(c.Stats().Ticks).To(Equal(uint64(2)))
		Expect(c.Stats().Instructions).To(Equal(uint64(2)))
	})

	It("should run until halt and return the stop code", func() {
		load(0x100,
			insts.EncodeIL(3, 7),
			insts.EncodeWRCH(spu.SPUWrOutMbox, 3),
			insts.EncodeStop(spu.StopHalt),
		)

		c.SetPC(0x100)
		code := c.Run()

		Expect(c.Halted()).To(BeTrue())
		Expect(code).To(Equal(uint32(spu.StopHalt)))
		Expect(c.Err()).NotTo(HaveOccurred())
		Expect(c.Stats().Cycles).To(BeNumerically(">", 0))
	})

	It("should account MFC transfers", func() {
		session.Memory().Write32(0x2000, 0xcafe)
		load(0x100,
			insts.EncodeIL(3, 0x80),
			insts.EncodeWRCH(spu.MFCLSA, 3),
			insts.EncodeIL(3, 0),
			insts.EncodeWRCH(spu.MFCEAH, 3),
			insts.EncodeILA(3, 0x2000),
			insts.EncodeWRCH(spu.MFCEAL, 3),
			insts.EncodeIL(3, 16),
			insts.EncodeWRCH(spu.MFCSize, 3),
			insts.EncodeIL(3, 0),
			insts.EncodeWRCH(spu.MFCTagID, 3),
			insts.EncodeIL(3, spu.MFCGet),
			insts.EncodeWRCH(spu.MFCCmd, 3),
			insts.EncodeStop(spu.StopHalt),
		)

		c.SetPC(0x100)
		c.Run()

		stats := c.Stats()
		Expect(stats.MFC.Gets).To(Equal(uint64(1)))
		Expect(stats.MFC.BytesMoved).To(Equal(uint64(16)))
		Expect(u.ReadLS32(0x80)).To(Equal(uint32(0xcafe)))
	})

	It("should run for the given number of instructions", func() {
		load(0x100, insts.EncodeBR(0))

		c.SetPC(0x100)
		running := c.RunCycles(5)

		Expect(running).To(BeTrue())
		Expect(c.Stats().Ticks).To(Equal(uint64(5)))
		Expect(u.Regs.PC).To(Equal(uint32(0x100)))
	})

	It("should stop running cycles when halted", func() {
		load(0x100, insts.EncodeStop(spu.StopHalt))

		c.SetPC(0x100)
		running := c.RunCycles(100)

		Expect(running).To(BeFalse())
		Expect(c.Stats().Ticks).To(Equal(uint64(1)))
	})

	It("should halt on an undecodable word", func() {
		load(0x100, 0x1C000000)

		c.SetPC(0x100)
		c.Run()

		Expect(c.Err()).To(MatchError(spu.ErrUnknownInstruction))
	})

	It("should reset core state", func() {
		load(0x100, insts.EncodeBR(0))

		c.SetPC(0x100)
		c.RunCycles(10)
		Expect(c.Stats().Cycles).To(BeNumerically(">", 0))

		c.Reset()

		stats := c.Stats()
		Expect(stats.Ticks).To(BeZero())
		Expect(stats.Cycles).To(BeZero())
		Expect(stats.Instructions).To(BeZero())
		Expect(c.Halted()).To(BeTrue())
		Expect(u.ReadLS32(0x100)).To(BeZero())
	})
})
