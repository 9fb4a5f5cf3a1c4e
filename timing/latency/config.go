package latency

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sarchlab/akita/v4/sim"
	"go.yaml.in/yaml/v3"
)

// TimingConfig holds the cost model of the MFC and of the channel
// interface. Values are estimates for a Cell Broadband Engine SPE.
type TimingConfig struct {
	// ClockFreq is the SPU core clock. Default: 3.2 GHz.
	ClockFreq sim.Freq `json:"clock_freq" yaml:"clock_freq"`

	// TimebaseFreq is the decrementer/timebase frequency.
	// Default: 79.8 MHz.
	TimebaseFreq sim.Freq `json:"timebase_freq" yaml:"timebase_freq"`

	// DMASetupLatency is the fixed cost of issuing one DMA command.
	// Default: 30 cycles.
	DMASetupLatency uint64 `json:"dma_setup_latency" yaml:"dma_setup_latency"`

	// DMABytesPerCycle is the sustained transfer bandwidth.
	// Default: 16 bytes per cycle.
	DMABytesPerCycle uint64 `json:"dma_bytes_per_cycle" yaml:"dma_bytes_per_cycle"`

	// ListElementLatency is the extra cost per DMA list element.
	// Default: 8 cycles.
	ListElementLatency uint64 `json:"list_element_latency" yaml:"list_element_latency"`

	// AtomicLatency is the cost of GETLLAR, PUTLLC and PUTLLUC.
	// Default: 100 cycles.
	AtomicLatency uint64 `json:"atomic_latency" yaml:"atomic_latency"`

	// ChannelLatency is the cost of a non-blocking rdch/wrch/rchcnt.
	// Default: 6 cycles.
	ChannelLatency uint64 `json:"channel_latency" yaml:"channel_latency"`

	// StopLatency is the cost of a stop-and-signal round trip.
	// Default: 200 cycles.
	StopLatency uint64 `json:"stop_latency" yaml:"stop_latency"`

	// InstLatency is the cost of every other instruction.
	// Default: 2 cycles.
	InstLatency uint64 `json:"inst_latency" yaml:"inst_latency"`
}

// DefaultTimingConfig returns a TimingConfig with SPE default values.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ClockFreq:          3.2 * sim.GHz,
		TimebaseFreq:       sim.Freq(79_800_000),
		DMASetupLatency:    30,
		DMABytesPerCycle:   16,
		ListElementLatency: 8,
		AtomicLatency:      100,
		ChannelLatency:     6,
		StopLatency:        200,
		InstLatency:        2,
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads a TimingConfig from a JSON or YAML file, chosen by
// extension. Fields absent from the file keep their defaults.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON or YAML file, chosen by
// extension.
func (c *TimingConfig) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration is usable.
func (c *TimingConfig) Validate() error {
	if c.ClockFreq <= 0 {
		return fmt.Errorf("clock_freq must be > 0")
	}
	if c.TimebaseFreq <= 0 {
		return fmt.Errorf("timebase_freq must be > 0")
	}
	if c.TimebaseFreq > c.ClockFreq {
		return fmt.Errorf("timebase_freq must be <= clock_freq")
	}
	if c.DMABytesPerCycle == 0 {
		return fmt.Errorf("dma_bytes_per_cycle must be > 0")
	}
	if c.ChannelLatency == 0 {
		return fmt.Errorf("channel_latency must be > 0")
	}
	if c.InstLatency == 0 {
		return fmt.Errorf("inst_latency must be > 0")
	}
	return nil
}

// Clone returns a copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
