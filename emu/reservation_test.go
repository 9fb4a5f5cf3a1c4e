package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/spusim/emu"
)

var _ = Describe("ReservationStation", func() {
	var (
		m    *emu.Memory
		rs   *emu.ReservationStation
		line []byte
		lost map[uint32]int
	)

	lostFn := func(owner uint32) func() {
		return func() { lost[owner]++ }
	}

	fill := func(b byte) []byte {
		data := make([]byte, emu.LineSize)
		for i := range data {
			data[i] = b
		}
		return data
	}

	BeforeEach(func() {
		m = emu.NewMemory()
		rs = m.Reservations()
		line = make([]byte, emu.LineSize)
		lost = map[uint32]int{}
	})

	It("should copy the whole line on acquire", func() {
		m.Write32(0x1080, 0xdeadbeef)

		rs.Acquire(1, 0x10a4, line, lostFn(1))

		Expect(line[0:4]).To(Equal([]byte{0xde, 0xad, 0xbe, 0xef}))
		Expect(rs.Holds(1, 0x1080)).To(BeTrue())
	})

	It("should let the holder update the line once", func() {
		rs.Acquire(1, 0x1000, line, lostFn(1))

		Expect(rs.Update(1, 0x1000, fill(7))).To(BeTrue())
		Expect(m.Read8(0x107f)).To(Equal(uint8(7)))
		Expect(rs.Update(1, 0x1000, fill(8))).To(BeFalse())
		Expect(m.Read8(0x107f)).To(Equal(uint8(7)))
		Expect(lost[1]).To(BeZero())
	})

	It("should break other holders on a successful update", func() {
		rs.Acquire(1, 0x1000, line, lostFn(1))
		rs.Acquire(2, 0x1000, make([]byte, emu.LineSize), lostFn(2))

		Expect(rs.Update(1, 0x1000, fill(1))).To(BeTrue())
		Expect(lost[2]).To(Equal(1))
		Expect(rs.Update(2, 0x1000, fill(2))).To(BeFalse())
	})

	It("should break reservations on an unconditional store", func() {
		rs.Acquire(1, 0x2000, line, lostFn(1))

		rs.Store(0x2000, fill(9))

		Expect(lost[1]).To(Equal(1))
		Expect(rs.Update(1, 0x2000, fill(1))).To(BeFalse())
		Expect(m.Read8(0x2000)).To(Equal(uint8(9)))
	})

	It("should break reservations on plain overlapping writes", func() {
		rs.Acquire(1, 0x3000, line, lostFn(1))

		m.Write32(0x307c, 1)

		Expect(lost[1]).To(Equal(1))
		Expect(rs.Holds(1, 0x3000)).To(BeFalse())
	})

	It("should keep reservations on writes to other lines", func() {
		rs.Acquire(1, 0x3000, line, lostFn(1))

		m.Write32(0x3080, 1)

		Expect(lost[1]).To(BeZero())
		Expect(rs.Holds(1, 0x3000)).To(BeTrue())
	})

	It("should silently move an owner's reservation", func() {
		rs.Acquire(1, 0x4000, line, lostFn(1))
		rs.Acquire(1, 0x5000, line, lostFn(1))

		m.Write32(0x4000, 1)

		Expect(lost[1]).To(BeZero())
		Expect(rs.Holds(1, 0x5000)).To(BeTrue())
	})

	It("should release without calling back", func() {
		rs.Acquire(1, 0x4000, line, lostFn(1))
		rs.Release(1)

		m.Write32(0x4000, 1)

		Expect(lost[1]).To(BeZero())
		Expect(rs.Holds(1, 0x4000)).To(BeFalse())
	})

	It("should lose reservations evicted from the directory", func() {
		small := emu.NewReservationStation(m, emu.ReservationConfig{Sets: 1, Ways: 1})

		small.Acquire(1, 0x1000, line, lostFn(1))
		small.Acquire(2, 0x2000, line, lostFn(2))

		Expect(lost[1]).To(Equal(1))
		Expect(small.Stats().Evictions).To(Equal(uint64(1)))
		Expect(small.Update(1, 0x1000, fill(1))).To(BeFalse())
		Expect(small.Update(2, 0x2000, fill(2))).To(BeTrue())
	})

	It("should count traffic", func() {
		rs.Acquire(1, 0x1000, line, nil)
		rs.Update(1, 0x1000, fill(1))
		rs.Update(1, 0x1000, fill(1))
		rs.Store(0x1000, fill(2))

		stats := rs.Stats()
		Expect(stats.Acquires).To(Equal(uint64(1)))
		Expect(stats.Updates).To(Equal(uint64(1)))
		Expect(stats.Failures).To(Equal(uint64(1)))
		Expect(stats.Unconditional).To(Equal(uint64(1)))
	})
})
