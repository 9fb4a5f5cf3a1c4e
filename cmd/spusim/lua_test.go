package main

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/lv2"
	"github.com/sarchlab/spusim/spu"
)

var _ = Describe("LuaBackend", func() {
	It("should move data with mfc and exit the group", func() {
		sim, err := simulate(parse(`
memory:
  - addr: 0x2000
    words: [0xdeadbeef, 0x01020304]
units:
  - name: dma
    script: |
      mfc(0x40, 0x80, 0x2000, 16, 1)
      ls_write32(0x84, ls_read32(0x84) + 1)
      mfc(0x20, 0x80, 0x3000, 16, 1)
      mem_write32(0x4000, rchcnt(ch.SPU_WrOutMbox))
      wrch(ch.SPU_WrOutMbox, 0x55)
      stop(0x101)
`))
		Expect(err).NotTo(HaveOccurred())

		mem := sim.Session.Memory()
		Expect(sim.Units[0].ReadLS32(0x80)).To(Equal(uint32(0xdeadbeef)))
		Expect(mem.Read32(0x3000)).To(Equal(uint32(0xdeadbeef)))
		Expect(mem.Read32(0x3004)).To(Equal(uint32(0x01020305)))
		Expect(mem.Read32(0x4000)).To(Equal(uint32(1)))

		status, exited := sim.Group.ExitStatus()
		Expect(exited).To(BeTrue())
		Expect(status).To(Equal(uint32(0x55)))
	})

	It("should send events through a connected port", func() {
		sim, err := simulate(parse(`
queues:
  - name: out
units:
  - name: sender
    ports:
      - port: 1
        queue: out
    script: |
      wrch(ch.SPU_WrOutMbox, 0xabc)
      wrch(ch.SPU_WrOutIntrMbox, 1 * 16777216 + 0x42)
      ls_write32(0x300, rdch(ch.SPU_RdInMbox))
`))
		Expect(err).NotTo(HaveOccurred())

		u := sim.Units[0]
		Expect(u.ReadLS32(0x300)).To(Equal(uint32(lv2.OK)))
		Expect(u.Status.Value()).To(Equal(uint32(spu.StatusStoppedByStop)))

		q, ok := emu.Lookup[*lv2.EventQueue](sim.Session.IDs(), sim.IDs["out"])
		Expect(ok).To(BeTrue())
		Expect(q.Drain()).To(Equal([]lv2.Event{{
			Source: lv2.SPUThreadEventUserKey,
			Data1:  uint64(u.ID()),
			Data2:  1<<32 | 0x42,
			Data3:  0xabc,
		}}))
	})

	It("should set event flag bits by name", func() {
		sim, err := simulate(parse(`
flags:
  - name: done
units:
  - script: |
      wrch(ch.SPU_WrOutMbox, id("done"))
      wrch(ch.SPU_WrOutIntrMbox, 128 * 16777216 + 5)
      ls_write32(0x300, rdch(ch.SPU_RdInMbox))
`))
		Expect(err).NotTo(HaveOccurred())

		flag, ok := emu.Lookup[*lv2.EventFlag](sim.Session.IDs(), sim.IDs["done"])
		Expect(ok).To(BeTrue())
		Expect(flag.Pattern()).To(Equal(uint64(1 << 5)))
		Expect(sim.Units[0].ReadLS32(0x300)).To(Equal(uint32(lv2.OK)))
	})

	It("should receive events from a bound SPU queue", func() {
		sim, err := simulate(parse(`
queues:
  - name: in
events:
  - queue: in
    data: [1, 2, 3]
units:
  - spu_queues:
      - num: 7
        queue: in
    script: |
      wrch(ch.SPU_WrOutMbox, 7)
      stop(0x110)
      for i = 0, 3 do
        ls_write32(0x400 + 4 * i, rdch(ch.SPU_RdInMbox))
      end
`))
		Expect(err).NotTo(HaveOccurred())

		u := sim.Units[0]
		Expect([]uint32{
			u.ReadLS32(0x400),
			u.ReadLS32(0x404),
			u.ReadLS32(0x408),
			u.ReadLS32(0x40c),
		}).To(Equal([]uint32{uint32(lv2.OK), 1, 2, 3}))
	})

	It("should fail the group on a script error", func() {
		sim, err := simulate(parse(`
units:
  - name: broken
    script: |
      error("boom")
`))
		Expect(err).To(MatchError(ContainSubstring("boom")))
		Expect(sim.Session.IsPaused()).To(BeTrue())
	})

	It("should reject unknown object names", func() {
		_, err := simulate(parse(`
units:
  - script: |
      id("missing")
`))
		Expect(err).To(MatchError(ContainSubstring("unknown object")))
	})

	It("should stop a blocked script when the group exits", func() {
		sim, err := simulate(parse(`
units:
  - name: waiter
    script: |
      rdch(ch.SPU_RdInMbox)
      if running() then
        ls_write32(0x10, 1)
      end
  - name: exiter
    script: |
      wrch(ch.SPU_WrOutMbox, 0)
      stop(0x101)
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(sim.Session.PauseReason()).To(BeNil())
		Expect(sim.Units[0].Status.Value()).To(Equal(uint32(spu.StatusStopped)))
		Expect(sim.Units[0].ReadLS32(0x10)).To(BeZero())
	})
})
