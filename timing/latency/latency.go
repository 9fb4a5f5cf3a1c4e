// Package latency provides the cost model used to account SPU time spent in
// the MFC and on the channel interface.
//
// The values are SPE estimates and can be configured via TimingConfig.
package latency

import (
	"github.com/sarchlab/spusim/insts"
)

// TransferKind classifies an MFC transfer for costing.
type TransferKind uint8

// Transfer kinds.
const (
	TransferDMA TransferKind = iota
	TransferListElement
	TransferAtomic
)

// Table provides latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the cost in cycles of executing inst, not counting
// time spent blocked on a channel.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	switch inst.Op {
	case insts.OpRDCH, insts.OpWRCH, insts.OpRCHCNT:
		return t.config.ChannelLatency

	case insts.OpSTOP, insts.OpSTOPD:
		return t.config.StopLatency

	default:
		return t.config.InstLatency
	}
}

// TransferCycles returns the cost in cycles of one transfer of size bytes.
func (t *Table) TransferCycles(kind TransferKind, size uint32) uint64 {
	switch kind {
	case TransferAtomic:
		return t.config.AtomicLatency

	case TransferListElement:
		return t.config.ListElementLatency + t.bandwidthCycles(size)

	default:
		return t.config.DMASetupLatency + t.bandwidthCycles(size)
	}
}

func (t *Table) bandwidthCycles(size uint32) uint64 {
	bpc := t.config.DMABytesPerCycle
	return (uint64(size) + bpc - 1) / bpc
}

// CyclesToTicks converts core cycles to timebase ticks.
func (t *Table) CyclesToTicks(cycles uint64) uint64 {
	return uint64(float64(cycles) * float64(t.config.TimebaseFreq) / float64(t.config.ClockFreq))
}

// IsChannelOp returns true if the instruction accesses a channel.
func (t *Table) IsChannelOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	switch inst.Op {
	case insts.OpRDCH, insts.OpWRCH, insts.OpRCHCNT:
		return true
	default:
		return false
	}
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
