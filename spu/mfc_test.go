package spu_test

import (
	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/spu"
)

var _ = Describe("MFC", func() {
	var (
		session *emu.Session
		memory  *emu.Memory
		group   *spu.Group
		u0, u1  *spu.Unit
	)

	BeforeEach(func() {
		session = newSession()
		memory = session.Memory()
		group = spu.NewGroup("mfc")
		u0 = newUnit(session, spu.WithGroup(group))
		u1 = newUnit(session, spu.WithGroup(group))
	})

	Context("contiguous transfers", func() {
		It("should put local store to main memory", func() {
			u0.WriteLS32(0x100, 0xcafebabe)

			issue(u0, spu.MFCPut, 0x100, 0x100000, 16, 3)

			Expect(memory.Read32(0x100000)).To(Equal(uint32(0xcafebabe)))
			Expect(u0.MFC1.CMDStatus.Value()).To(Equal(uint32(spu.DMAEnqueueSuccessful)))
			Expect(u0.Stats().Puts).To(Equal(uint64(1)))
			Expect(u0.Stats().BytesMoved).To(Equal(uint64(16)))
		})

		It("should get main memory into local store", func() {
			memory.Write64(0x180000, 0x0102030405060708)

			issue(u0, spu.MFCGet, 0x40, 0x180000, 8, 0)

			Expect(u0.ReadLS64(0x40)).To(Equal(uint64(0x0102030405060708)))
			Expect(u0.Stats().Gets).To(Equal(uint64(1)))
		})

		It("should fence on barrier and fence variants", func() {
			issue(u0, spu.MFCGetB, 0x40, 0x180000, 8, 0)
			issue(u0, spu.MFCPutF, 0x40, 0x180000, 8, 0)

			Expect(u0.Fences()).To(Equal(uint64(2)))
		})

		It("should treat the result variant as a put", func() {
			u0.WriteLS32(0x80, 7)

			issue(u0, spu.MFCPutR, 0x80, 0x100000, 4, 0)

			Expect(memory.Read32(0x100000)).To(Equal(uint32(7)))
		})

		It("should report the tag mask on tag update", func() {
			u0.WriteChannel(spu.MFCWrTagMask, 0x8)
			u0.WriteChannel(spu.MFCWrTagUpdate, 2)

			Expect(u0.ChannelCount(spu.MFCRdTagStat)).To(Equal(uint32(1)))
			Expect(u0.ReadChannel(spu.MFCRdTagStat)).To(Equal(uint32(0x8)))
			Expect(u0.ReadChannel(spu.MFCRdTagMask)).To(Equal(uint32(0x8)))
		})

		It("should pause the session on an unknown command", func() {
			issue(u0, spu.MFCSndSig, 0, 0x100000, 4, 0)

			Expect(session.IsPaused()).To(BeTrue())
			Expect(session.PauseReason()).To(MatchError(spu.ErrUnknownCommand))
		})
	})

	Context("thread group MMIO", func() {
		It("should redirect a put into another member's local store", func() {
			for i := uint32(0); i < 128; i += 4 {
				u0.WriteLS32(0x200+i, 0xa0000000|i)
			}

			ea := uint64(spu.ThreadBaseLow + 1*spu.ThreadOffset + 0x3000)
			issue(u0, spu.MFCPut, 0x200, ea, 128, 1)

			for i := uint32(0); i < 128; i += 4 {
				Expect(u1.ReadLS32(0x3000 + i)).To(Equal(0xa0000000 | i))
			}
			Expect(u0.ReadLS32(0x3000)).To(BeZero())
			Expect(u0.Stats().GroupMMIO).To(Equal(uint64(1)))
		})

		It("should get from a member's local store", func() {
			u0.WriteLS32(0x500, 0x55)

			ea := uint64(spu.ThreadBaseLow + 0*spu.ThreadOffset + 0x500)
			issue(u1, spu.MFCGet, 0x600, ea, 16, 0)

			Expect(u1.ReadLS32(0x600)).To(Equal(uint32(0x55)))
		})

		It("should write a member's signal notification register", func() {
			u0.WriteLS32(0x10, 0x1234)

			ea := uint64(spu.ThreadBaseLow + 1*spu.ThreadOffset + spu.ThreadSNR1)
			issue(u0, spu.MFCPut, 0x10, ea, 4, 0)

			Expect(u1.ChannelCount(spu.SPURdSigNotify1)).To(Equal(uint32(1)))
			Expect(u1.ReadChannel(spu.SPURdSigNotify1)).To(Equal(uint32(0x1234)))
		})

		It("should drop accesses to a missing member", func() {
			ea := uint64(spu.ThreadBaseLow + 5*spu.ThreadOffset)
			issue(u0, spu.MFCPut, 0x10, ea, 16, 0)

			Expect(session.IsPaused()).To(BeFalse())
			Expect(u0.Stats().Puts).To(BeZero())
		})

		It("should drop accesses to unknown offsets", func() {
			ea := uint64(spu.ThreadBaseLow + 1*spu.ThreadOffset + 0x80000)
			issue(u0, spu.MFCPut, 0x10, ea, 16, 0)

			Expect(session.IsPaused()).To(BeFalse())
			Expect(u0.Stats().Puts).To(BeZero())
		})
	})

	Context("list transfers", func() {
		writeElement := func(u *spu.Unit, lsa uint32, stall bool, size uint16, eal uint32) {
			var flags uint16
			if stall {
				flags = 0x8000
			}
			u.WriteLS16(lsa, flags)
			u.WriteLS16(lsa+2, size)
			u.WriteLS32(lsa+4, eal)
		}

		BeforeEach(func() {
			for i := uint32(0); i < 64; i += 4 {
				memory.Write32(0x100000+i, 0xb0000000|i)
			}
		})

		expectCopied := func(u *spu.Unit) {
			for i := uint32(0); i < 64; i += 4 {
				Expect(u.ReadLS32(0x2000 + i)).To(Equal(0xb0000000 | i))
			}
		}

		It("should gather every element", func() {
			writeElement(u0, 0x1000, false, 16, 0x100000)
			writeElement(u0, 0x1008, false, 16, 0x100010)
			writeElement(u0, 0x1010, false, 32, 0x100020)

			issue(u0, spu.MFCGetL, 0x2000, 0x1000, 24, 5)

			expectCopied(u0)
			Expect(u0.MFC1.CMDStatus.Value()).To(Equal(uint32(spu.DMAEnqueueSuccessful)))
			Expect(u0.Stats().ListElements).To(Equal(uint64(3)))
		})

		It("should resume a stalled list with the remaining elements", func() {
			writeElement(u0, 0x1000, false, 16, 0x100000)
			writeElement(u0, 0x1008, true, 16, 0x100010)
			writeElement(u0, 0x1010, false, 32, 0x100020)

			issue(u0, spu.MFCGetL, 0x2000, 0x1000, 24, 5)

			stalled, ok := u0.Stalled(5)
			Expect(ok).To(BeTrue())
			Expect(cmp.Diff(spu.StalledList{
				Cmd:  spu.MFCGetL,
				EA:   0x1010,
				LSA:  0x2020,
				Size: 8,
			}, stalled)).To(BeEmpty())
			Expect(u0.ReadLS32(0x2020)).To(BeZero())
			Expect(u0.ChannelCount(spu.MFCRdListStallStat)).To(Equal(uint32(1)))
			Expect(u0.ReadChannel(spu.MFCRdListStallStat)).To(Equal(uint32(1 << 5)))

			u0.WriteChannel(spu.MFCWrListStallAck, 5)

			expectCopied(u0)
			_, ok = u0.Stalled(5)
			Expect(ok).To(BeFalse())
			Expect(u0.Stats().ListStalls).To(Equal(uint64(1)))
		})

		It("should keep the high effective address bits across a stall", func() {
			writeElement(u0, 0x1000, true, 0, 0)
			writeElement(u0, 0x1008, false, 16, 0x100000)

			issue(u0, spu.MFCGetL, 0x2000, 0x5_0000_1000, 16, 2)

			stalled, ok := u0.Stalled(2)
			Expect(ok).To(BeTrue())
			Expect(stalled.EA).To(Equal(uint64(0x5_0000_1008)))
		})

		It("should abort the list on an invalid element size", func() {
			writeElement(u0, 0x1000, false, 3, 0x100000)
			writeElement(u0, 0x1008, false, 16, 0x100010)

			issue(u0, spu.MFCGetL, 0x2000, 0x1000, 16, 0)

			Expect(u0.MFC1.CMDStatus.Value()).To(Equal(uint32(spu.DMASequenceError)))
			Expect(u0.ReadLS32(0x2010)).To(BeZero())
			Expect(u0.Stats().ListElements).To(BeZero())
			Expect(u0.Stats().SequenceErrors).To(Equal(uint64(1)))
		})

		It("should reject a zero size element without the stall bit", func() {
			writeElement(u0, 0x1000, false, 0, 0x100000)

			issue(u0, spu.MFCGetL, 0x2000, 0x1000, 8, 0)

			Expect(u0.MFC1.CMDStatus.Value()).To(Equal(uint32(spu.DMASequenceError)))
		})

		It("should report a sequence error on a second stall of the same tag", func() {
			writeElement(u0, 0x1000, true, 0, 0)

			issue(u0, spu.MFCGetL, 0x2000, 0x1000, 8, 4)
			Expect(u0.MFC1.CMDStatus.Value()).To(Equal(uint32(spu.DMAEnqueueSuccessful)))

			issue(u0, spu.MFCGetL, 0x2000, 0x1000, 8, 4)
			Expect(u0.MFC1.CMDStatus.Value()).To(Equal(uint32(spu.DMASequenceError)))
		})

		It("should ignore acknowledges without a stalled list", func() {
			u0.WriteChannel(spu.MFCWrListStallAck, 7)
			u0.WriteChannel(spu.MFCWrListStallAck, 40)

			Expect(session.IsPaused()).To(BeFalse())
		})

		It("should scatter with a put list", func() {
			for i := uint32(0); i < 32; i += 4 {
				u0.WriteLS32(0x3000+i, 0xc0000000|i)
			}
			writeElement(u0, 0x1000, false, 16, 0x140000)
			writeElement(u0, 0x1008, false, 16, 0x150000)

			issue(u0, spu.MFCPutL, 0x3000, 0x1000, 16, 0)

			Expect(memory.Read32(0x140000)).To(Equal(uint32(0xc0000000)))
			Expect(memory.Read32(0x150000)).To(Equal(uint32(0xc0000010)))
		})
	})

	Context("atomic commands", func() {
		const line = 0x200000

		BeforeEach(func() {
			memory.Write32(line, 0x11)
		})

		It("should succeed a conditional store after a reservation", func() {
			issue(u0, spu.MFCGetLLAR, 0x400, line, 128, 0)

			Expect(u0.ReadChannel(spu.MFCRdAtomicStat)).To(Equal(uint32(spu.GetLLARSuccess)))
			Expect(u0.ReadLS32(0x400)).To(Equal(uint32(0x11)))

			u0.WriteLS32(0x400, 0x22)
			issue(u0, spu.MFCPutLLC, 0x400, line, 128, 0)

			Expect(u0.ReadChannel(spu.MFCRdAtomicStat)).To(Equal(uint32(spu.PutLLCSuccess)))
			Expect(memory.Read32(line)).To(Equal(uint32(0x22)))
		})

		It("should fail a conditional store after another unit's unconditional store", func() {
			issue(u0, spu.MFCGetLLAR, 0x400, line, 128, 0)
			Expect(u0.ReadChannel(spu.MFCRdAtomicStat)).To(Equal(uint32(spu.GetLLARSuccess)))

			u1.WriteLS32(0x400, 0x33)
			issue(u1, spu.MFCPutLLUC, 0x400, line, 128, 0)
			Expect(u1.ReadChannel(spu.MFCRdAtomicStat)).To(Equal(uint32(spu.PutLLUCSuccess)))

			Expect(u0.Events() & spu.EventLR).NotTo(BeZero())

			u0.WriteLS32(0x400, 0x22)
			issue(u0, spu.MFCPutLLC, 0x400, line, 128, 0)

			Expect(u0.ReadChannel(spu.MFCRdAtomicStat)).To(Equal(uint32(spu.PutLLCFailure)))
			Expect(memory.Read32(line)).To(Equal(uint32(0x33)))
			Expect(u0.Stats().PutLLCFailures).To(Equal(uint64(1)))
		})

		It("should fail a conditional store without a reservation", func() {
			issue(u0, spu.MFCPutLLC, 0x400, line, 128, 0)

			Expect(u0.ReadChannel(spu.MFCRdAtomicStat)).To(Equal(uint32(spu.PutLLCFailure)))
			Expect(memory.Read32(line)).To(Equal(uint32(0x11)))
		})

		It("should post no status for a queued unconditional store", func() {
			u0.WriteLS32(0x400, 0x44)

			issue(u0, spu.MFCPutQLLUC, 0x400, line, 128, 0)

			Expect(u0.ChannelCount(spu.MFCRdAtomicStat)).To(BeZero())
			Expect(memory.Read32(line)).To(Equal(uint32(0x44)))
		})

		It("should wake an event reader when the reservation is lost", func() {
			u0.WriteChannel(spu.SPUWrEventMask, spu.EventLR)
			issue(u0, spu.MFCGetLLAR, 0x400, line, 128, 0)

			events := make(chan uint32, 1)
			go func() {
				defer GinkgoRecover()
				events <- u0.ReadChannel(spu.SPURdEventStat)
			}()
			Consistently(events).ShouldNot(Receive())

			issue(u1, spu.MFCPutLLUC, 0x400, line, 128, 0)

			Eventually(events).Should(Receive(Equal(uint32(spu.EventLR))))

			u0.WriteChannel(spu.SPUWrEventAck, spu.EventLR)
			Expect(u0.Events()).To(BeZero())
		})
	})
})
