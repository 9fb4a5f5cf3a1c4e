package latency_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/spusim/insts"
	"github.com/sarchlab/spusim/timing/latency"
)

var _ = Describe("Latency", func() {
	var (
		table   *latency.Table
		decoder *insts.Decoder
	)

	BeforeEach(func() {
		table = latency.NewTable()
		decoder = insts.NewDecoder()
	})

	Describe("Default Timing Values", func() {
		It("should have correct frequencies", func() {
			config := table.Config()
			Expect(config.ClockFreq).To(Equal(3.2 * sim.GHz))
			Expect(config.TimebaseFreq).To(Equal(sim.Freq(79_800_000)))
		})

		It("should have correct DMA costs", func() {
			config := table.Config()
			Expect(config.DMASetupLatency).To(Equal(uint64(30)))
			Expect(config.DMABytesPerCycle).To(Equal(uint64(16)))
		})

		It("should validate", func() {
			Expect(table.Config().Validate()).To(Succeed())
		})
	})

	Describe("Instruction Latencies", func() {
		It("should charge channel latency for RDCH", func() {
			inst := decoder.Decode(insts.EncodeRDCH(3, 29))
			Expect(table.GetLatency(inst)).To(Equal(uint64(6)))
			Expect(table.IsChannelOp(inst)).To(BeTrue())
		})

		It("should charge stop latency for STOP", func() {
			inst := decoder.Decode(insts.EncodeStop(0x102))
			Expect(table.GetLatency(inst)).To(Equal(uint64(200)))
			Expect(table.IsChannelOp(inst)).To(BeFalse())
		})

		It("should charge the default latency for other instructions", func() {
			inst := decoder.Decode(insts.WordLNOP)
			Expect(table.GetLatency(inst)).To(Equal(uint64(2)))
		})

		It("should handle nil instructions", func() {
			Expect(table.GetLatency(nil)).To(Equal(uint64(1)))
			Expect(table.IsChannelOp(nil)).To(BeFalse())
		})
	})

	Describe("Transfer costs", func() {
		It("should add bandwidth to the setup cost", func() {
			Expect(table.TransferCycles(latency.TransferDMA, 128)).To(Equal(uint64(30 + 8)))
			Expect(table.TransferCycles(latency.TransferDMA, 1)).To(Equal(uint64(31)))
		})

		It("should charge list elements separately", func() {
			Expect(table.TransferCycles(latency.TransferListElement, 16)).To(Equal(uint64(9)))
		})

		It("should use a flat cost for atomics", func() {
			Expect(table.TransferCycles(latency.TransferAtomic, 128)).To(Equal(uint64(100)))
		})

		It("should convert cycles to timebase ticks", func() {
			ticks := table.CyclesToTicks(3_200_000_000)
			Expect(ticks).To(BeNumerically("~", 79_800_000, 1))
		})
	})
})

var _ = Describe("TimingConfig", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "timing-config")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("should round-trip through JSON", func() {
		config := latency.DefaultTimingConfig()
		config.AtomicLatency = 77
		path := filepath.Join(tmpDir, "timing.json")

		Expect(config.SaveConfig(path)).To(Succeed())
		loaded, err := latency.LoadConfig(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(config))
	})

	It("should load partial YAML over the defaults", func() {
		path := filepath.Join(tmpDir, "timing.yaml")
		Expect(os.WriteFile(path, []byte("dma_setup_latency: 12\n"), 0644)).To(Succeed())

		loaded, err := latency.LoadConfig(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.DMASetupLatency).To(Equal(uint64(12)))
		Expect(loaded.ChannelLatency).To(Equal(uint64(6)))
	})

	It("should report parse errors", func() {
		path := filepath.Join(tmpDir, "bad.json")
		Expect(os.WriteFile(path, []byte("{"), 0644)).To(Succeed())

		_, err := latency.LoadConfig(path)
		Expect(err).To(HaveOccurred())
	})

	It("should report missing files", func() {
		_, err := latency.LoadConfig(filepath.Join(tmpDir, "missing.json"))
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("Validate rejects",
		func(mutate func(*latency.TimingConfig)) {
			config := latency.DefaultTimingConfig()
			mutate(config)
			Expect(config.Validate()).NotTo(Succeed())
		},
		Entry("zero clock", func(c *latency.TimingConfig) { c.ClockFreq = 0 }),
		Entry("zero timebase", func(c *latency.TimingConfig) { c.TimebaseFreq = 0 }),
		Entry("timebase above clock", func(c *latency.TimingConfig) { c.TimebaseFreq = 2 * c.ClockFreq }),
		Entry("zero bandwidth", func(c *latency.TimingConfig) { c.DMABytesPerCycle = 0 }),
		Entry("zero channel latency", func(c *latency.TimingConfig) { c.ChannelLatency = 0 }),
	)

	It("should clone independently", func() {
		config := latency.DefaultTimingConfig()
		clone := config.Clone()
		clone.StopLatency = 1

		Expect(config.StopLatency).To(Equal(uint64(200)))
	})
})
