package lv2_test

import (
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/lv2"
)

var _ = Describe("EventQueue", func() {
	var (
		q    *lv2.EventQueue
		done chan struct{}
	)

	BeforeEach(func() {
		var err error
		q, err = lv2.NewEventQueue(lv2.EventQueueAttr{
			Protocol: lv2.ProtocolFIFO,
			Type:     lv2.QueueTypeSPU,
			Size:     2,
		})
		Expect(err).NotTo(HaveOccurred())
		done = make(chan struct{})
	})

	AfterEach(func() {
		close(done)
	})

	It("should reject invalid sizes", func() {
		_, err := lv2.NewEventQueue(lv2.EventQueueAttr{Protocol: lv2.ProtocolFIFO, Size: 0})
		Expect(err).To(MatchError(lv2.EINVAL))
		_, err = lv2.NewEventQueue(lv2.EventQueueAttr{Protocol: lv2.ProtocolFIFO, Size: 128})
		Expect(err).To(MatchError(lv2.EINVAL))
	})

	It("should be bounded", func() {
		Expect(q.Push(lv2.Event{Data1: 1})).To(BeTrue())
		Expect(q.Push(lv2.Event{Data1: 2})).To(BeTrue())
		Expect(q.Push(lv2.Event{Data1: 3})).To(BeFalse())
		Expect(q.Len()).To(Equal(2))
	})

	It("should deliver to a waiting receiver", func() {
		got := make(chan lv2.Event, 1)
		go func() {
			defer GinkgoRecover()
			ev, err := q.Receive(done, 7, 0)
			Expect(err).NotTo(HaveOccurred())
			got <- ev
		}()
		Eventually(q.Waiters).Should(Equal(1))

		want := lv2.Event{Source: lv2.SPUThreadEventUserKey, Data1: 1, Data2: 2, Data3: 3}
		Expect(q.Push(want)).To(BeTrue())

		var ev lv2.Event
		Eventually(got).Should(Receive(&ev))
		Expect(cmp.Diff(want, ev)).To(BeEmpty())
		Expect(q.Waiters()).To(BeZero())
	})

	It("should hand events to sleepers in FIFO order", func() {
		Expect(q.Join(1, 0)).To(Succeed())
		Expect(q.Join(2, 0)).To(Succeed())
		q.Push(lv2.Event{Data1: 10})

		_, err := q.TryReceive(2)
		Expect(err).To(MatchError(lv2.EAGAIN))

		ev, err := q.TryReceive(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Data1).To(Equal(uint64(10)))
	})

	It("should cancel receivers on destroy", func() {
		errs := make(chan error, 1)
		go func() {
			_, err := q.Receive(done, 3, 0)
			errs <- err
		}()
		Eventually(q.Waiters).Should(Equal(1))

		q.Destroy()

		Eventually(errs).Should(Receive(MatchError(lv2.ECANCELED)))
		Expect(q.Push(lv2.Event{})).To(BeFalse())
	})

	It("should return when done is closed", func() {
		stop := make(chan struct{})
		errs := make(chan error, 1)
		go func() {
			_, err := q.Receive(stop, 3, 0)
			errs <- err
		}()
		Eventually(q.Waiters).Should(Equal(1))

		close(stop)

		Eventually(errs).Should(Receive(MatchError(emu.ErrSessionStopped)))
		Expect(q.Waiters()).To(BeZero())
	})
})

var _ = Describe("EventPort", func() {
	var (
		q *lv2.EventQueue
		p *lv2.EventPort
	)

	BeforeEach(func() {
		q, _ = lv2.NewEventQueue(lv2.EventQueueAttr{Protocol: lv2.ProtocolFIFO, Size: 1})
		p = lv2.NewEventPort()
	})

	It("should refuse a second connection", func() {
		Expect(p.Connect(q)).To(Succeed())
		Expect(p.Connect(q)).To(MatchError(lv2.EISCONN))
		Expect(q.PortCount()).To(Equal(1))
	})

	It("should report send failures", func() {
		Expect(p.Send(lv2.Event{})).To(MatchError(lv2.ENOTCONN))

		Expect(p.Connect(q)).To(Succeed())
		Expect(p.Send(lv2.Event{})).To(Succeed())
		Expect(p.Send(lv2.Event{})).To(MatchError(lv2.EBUSY))
	})

	It("should remove itself from the queue on disconnect", func() {
		Expect(p.Connect(q)).To(Succeed())
		Expect(p.Disconnect()).To(Succeed())

		Expect(q.PortCount()).To(BeZero())
		Expect(p.Queue()).To(BeNil())
		Expect(p.Disconnect()).To(MatchError(lv2.ENOTCONN))
	})

	It("should be unbound when its queue is destroyed", func() {
		Expect(p.Connect(q)).To(Succeed())

		q.Destroy()

		Expect(p.Queue()).To(BeNil())
		Expect(p.Connect(q)).To(MatchError(lv2.ESRCH))
	})
})

var _ = Describe("SleepQueue", func() {
	It("should pick the highest priority sleeper", func() {
		sq := lv2.NewSleepQueue(lv2.ProtocolPriority)
		sq.Push(1, 100)
		sq.Push(2, 10)
		sq.Push(3, 10)

		id, ok := sq.Signal()
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal(uint32(2)))

		Expect(sq.Remove(2)).To(BeTrue())
		id, _ = sq.Signal()
		Expect(id).To(Equal(uint32(3)))
	})

	It("should report an empty queue", func() {
		sq := lv2.NewSleepQueue(lv2.ProtocolFIFO)
		_, ok := sq.Signal()
		Expect(ok).To(BeFalse())
		Expect(sq.Remove(1)).To(BeFalse())
	})
})

var _ = Describe("EventFlag", func() {
	var f *lv2.EventFlag

	BeforeEach(func() {
		var err error
		f, err = lv2.NewEventFlag(0, lv2.ProtocolFIFO)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject bits above 63 without changing the pattern", func() {
		Expect(f.SetBit(64)).To(MatchError(lv2.EINVAL))
		Expect(f.Pattern()).To(BeZero())

		Expect(f.SetBit(63)).To(Succeed())
		Expect(f.Pattern()).To(Equal(uint64(1) << 63))
	})

	It("should wait for all bits in AND mode", func() {
		got := make(chan uint64, 1)
		go func() {
			defer GinkgoRecover()
			v, err := f.Wait(nil, 0x3, lv2.EventFlagWaitAND|lv2.EventFlagWaitClear, 0)
			Expect(err).NotTo(HaveOccurred())
			got <- v
		}()
		Eventually(f.Waiters).Should(Equal(1))

		Expect(f.SetBit(0)).To(Succeed())
		Consistently(got, 50*time.Millisecond).ShouldNot(Receive())
		Expect(f.SetBit(1)).To(Succeed())

		Eventually(got).Should(Receive(Equal(uint64(0x3))))
		Expect(f.Pattern()).To(BeZero())
	})

	It("should match any bit in OR mode", func() {
		f.Set(0x10)

		v, err := f.TryWait(0x11, lv2.EventFlagWaitOR)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(0x10)))
		Expect(f.Pattern()).To(Equal(uint64(0x10)))

		_, err = f.TryWait(0x11, lv2.EventFlagWaitAND)
		Expect(err).To(MatchError(lv2.EBUSY))
	})

	It("should clear everything in CLEAR_ALL mode", func() {
		f.Set(0xff)
		_, err := f.TryWait(0x1, lv2.EventFlagWaitOR|lv2.EventFlagWaitClearAll)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Pattern()).To(BeZero())
	})

	It("should reject invalid modes", func() {
		_, err := f.TryWait(1, lv2.EventFlagWaitAND|lv2.EventFlagWaitOR)
		Expect(err).To(MatchError(lv2.EINVAL))
	})

	It("should time out", func() {
		_, err := f.Wait(nil, 1, lv2.EventFlagWaitOR, 10*time.Millisecond)
		Expect(err).To(MatchError(lv2.ETIMEDOUT))
	})
})

var _ = Describe("Code", func() {
	It("should name known codes", func() {
		Expect(lv2.EBUSY.Error()).To(Equal("CELL_EBUSY"))
		Expect(lv2.Code(0x80010099).Error()).To(Equal("CELL_ERROR(0x80010099)"))
	})

	It("should map errors to guest status words", func() {
		Expect(lv2.CodeOf(nil)).To(Equal(lv2.OK))
		Expect(lv2.CodeOf(lv2.ESRCH)).To(Equal(lv2.ESRCH))
		Expect(lv2.CodeOf(emu.ErrSessionStopped)).To(Equal(lv2.OK))
	})
})
