package lv2_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/lv2"
)

var _ = Describe("Semaphore", func() {
	var (
		session *emu.Session
		kernel  *lv2.Kernel
	)

	BeforeEach(func() {
		session = emu.NewSession(emu.WithLogger(GinkgoLogr))
		kernel = lv2.NewKernel(session)
	})

	AfterEach(func() {
		session.Stop()
	})

	DescribeTable("rejects invalid parameters",
		func(initial, max int32, protocol lv2.Protocol) {
			_, err := kernel.SemaphoreCreate(initial, max, protocol, 0)
			Expect(err).To(MatchError(lv2.EINVAL))
		},
		Entry("zero max", int32(0), int32(0), lv2.ProtocolFIFO),
		Entry("initial above max", int32(3), int32(2), lv2.ProtocolFIFO),
		Entry("negative initial", int32(-1), int32(2), lv2.ProtocolFIFO),
		Entry("unknown protocol", int32(0), int32(2), lv2.Protocol(7)),
	)

	It("should block the third waiter until a post", func() {
		id, err := kernel.SemaphoreCreate(2, 5, lv2.ProtocolPriority, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(kernel.SemaphoreWait(id, 0)).To(Succeed())
		Expect(kernel.SemaphoreWait(id, 0)).To(Succeed())

		done := make(chan error, 1)
		go func() {
			done <- kernel.SemaphoreWait(id, 0)
		}()

		Consistently(done, 100*time.Millisecond).ShouldNot(Receive())
		Eventually(func() int32 {
			attr, _ := kernel.SemaphoreData(id)
			return attr.Waiters
		}).Should(Equal(int32(1)))

		Expect(kernel.SemaphorePost(id, 1)).To(Succeed())

		var err2 error
		Eventually(done).Should(Receive(&err2))
		Expect(err2).NotTo(HaveOccurred())

		value, err := kernel.SemaphoreGetValue(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(BeZero())
	})

	It("should time out", func() {
		id, _ := kernel.SemaphoreCreate(0, 1, lv2.ProtocolFIFO, 0)

		err := kernel.SemaphoreWait(id, 10*time.Millisecond)

		Expect(err).To(MatchError(lv2.ETIMEDOUT))
		attr, _ := kernel.SemaphoreData(id)
		Expect(attr.Waiters).To(BeZero())
	})

	It("should release waiters when the session stops", func() {
		id, _ := kernel.SemaphoreCreate(0, 1, lv2.ProtocolFIFO, 0)

		done := make(chan error, 1)
		go func() {
			done <- kernel.SemaphoreWait(id, 0)
		}()
		Eventually(func() int32 {
			attr, _ := kernel.SemaphoreData(id)
			return attr.Waiters
		}).Should(Equal(int32(1)))

		session.Stop()

		var err error
		Eventually(done).Should(Receive(&err))
		Expect(err).To(MatchError(emu.ErrSessionStopped))
		Expect(lv2.CodeOf(err)).To(Equal(lv2.OK))
	})

	It("should refuse trywait when empty", func() {
		id, _ := kernel.SemaphoreCreate(1, 1, lv2.ProtocolFIFO, 0)

		Expect(kernel.SemaphoreTryWait(id)).To(Succeed())
		Expect(kernel.SemaphoreTryWait(id)).To(MatchError(lv2.EBUSY))
	})

	It("should reject posts above the maximum", func() {
		id, _ := kernel.SemaphoreCreate(4, 5, lv2.ProtocolFIFO, 0)

		Expect(kernel.SemaphorePost(id, 2)).To(MatchError(lv2.EBUSY))
		Expect(kernel.SemaphorePost(id, -1)).To(MatchError(lv2.EINVAL))
		Expect(kernel.SemaphorePost(id, 1)).To(Succeed())

		value, _ := kernel.SemaphoreGetValue(id)
		Expect(value).To(Equal(int32(5)))
	})

	It("should refuse to destroy a semaphore with waiters", func() {
		id, _ := kernel.SemaphoreCreate(0, 1, lv2.ProtocolFIFO, 0)

		go func() {
			defer GinkgoRecover()
			_ = kernel.SemaphoreWait(id, 0)
		}()
		Eventually(func() int32 {
			attr, _ := kernel.SemaphoreData(id)
			return attr.Waiters
		}).Should(Equal(int32(1)))

		Expect(kernel.SemaphoreDestroy(id)).To(MatchError(lv2.EBUSY))
		Expect(kernel.SemaphorePost(id, 1)).To(Succeed())
		Eventually(func() error { return kernel.SemaphoreDestroy(id) }).Should(Succeed())
		Expect(kernel.SemaphoreDestroy(id)).To(MatchError(lv2.ESRCH))
	})

	It("should report ESRCH for unknown IDs", func() {
		Expect(kernel.SemaphorePost(42, 1)).To(MatchError(lv2.ESRCH))
		_, err := kernel.SemaphoreGetValue(42)
		Expect(err).To(MatchError(lv2.ESRCH))
	})
})
