// Package benchmarks provides MFC and channel microbenchmarks for calibrating
// the spusim cost model.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/spu"
	"github.com/sarchlab/spusim/timing/core"
	"github.com/sarchlab/spusim/timing/latency"
)

// ProgramAddr is the local store address benchmark programs are loaded at.
const ProgramAddr = 0x1000

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the modeled cost including MFC transfers
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// Instructions is the number of executed instructions
	Instructions uint64 `json:"instructions"`

	// CPI is cycles per instruction
	CPI float64 `json:"cpi"`

	// DMA counters
	DMACommands    uint64 `json:"dma_commands"`
	BytesMoved     uint64 `json:"bytes_moved"`
	ListElements   uint64 `json:"list_elements"`
	AtomicCommands uint64 `json:"atomic_commands"`
	SequenceErrors uint64 `json:"sequence_errors"`

	// ExitCode is the last stop-and-signal code
	ExitCode uint32 `json:"exit_code"`

	// Completed is false when the benchmark ran out of ticks
	Completed bool `json:"completed"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Setup prepares local store and main memory before the program runs
	Setup func(u *spu.Unit, memory *emu.Memory)

	// Program is the SPU machine code, loaded at ProgramAddr
	Program []uint32

	// ExpectedExit is the expected stop code (for validation)
	ExpectedExit uint32
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Timing is the cost model; nil selects the default
	Timing *latency.TimingConfig

	// MaxTicks bounds each benchmark
	MaxTicks uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Timing:   latency.DefaultTimingConfig(),
		MaxTicks: 1 << 20,
		Output:   os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Timing == nil {
		config.Timing = latency.DefaultTimingConfig()
	}
	if config.MaxTicks == 0 {
		config.MaxTicks = DefaultConfig().MaxTicks
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.runBenchmark(bench)
		if err != nil {
			return results, fmt.Errorf("benchmark %s: %w", bench.Name, err)
		}
		results = append(results, result)
	}

	return results, nil
}

func (h *Harness) runBenchmark(bench Benchmark) (BenchmarkResult, error) {
	session := emu.NewSession()
	defer session.Stop()

	u, err := spu.NewUnit(session, spu.WithTiming(h.config.Timing), spu.WithName(bench.Name))
	if err != nil {
		return BenchmarkResult{}, err
	}

	if bench.Setup != nil {
		bench.Setup(u, session.Memory())
	}
	for i, w := range bench.Program {
		u.WriteLS32(ProgramAddr+uint32(i)*4, w)
	}

	c := core.NewCore(u)
	c.SetPC(ProgramAddr)

	start := time.Now()
	running := c.RunCycles(h.config.MaxTicks)
	wallTime := time.Since(start)

	if err := c.Err(); err != nil {
		return BenchmarkResult{}, err
	}

	stats := c.Stats()
	result := BenchmarkResult{
		Name:            bench.Name,
		Description:     bench.Description,
		SimulatedCycles: stats.Cycles,
		Instructions:    stats.Instructions,
		DMACommands:     stats.MFC.Commands,
		BytesMoved:      stats.MFC.BytesMoved,
		ListElements:    stats.MFC.ListElements,
		AtomicCommands:  stats.MFC.AtomicCommands,
		SequenceErrors:  stats.MFC.SequenceErrors,
		ExitCode:        c.ExitCode(),
		Completed:       !running,
		WallTime:        wallTime,
	}
	if stats.Instructions > 0 {
		result.CPI = float64(stats.Cycles) / float64(stats.Instructions)
	}

	if h.config.Verbose {
		_, _ = fmt.Fprintf(h.config.Output, "ran %s: %d cycles in %v\n", bench.Name, stats.Cycles, wallTime)
	}

	return result, nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== spusim MFC Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Exit Code: 0x%x\n", r.ExitCode)
		if !r.Completed {
			_, _ = fmt.Fprintln(h.config.Output, "  (tick limit reached)")
		}
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles: %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions:     %d\n", r.Instructions)
		_, _ = fmt.Fprintf(h.config.Output, "  CPI:              %.3f\n", r.CPI)

		if r.DMACommands > 0 || r.AtomicCommands > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- MFC ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Commands:      %d\n", r.DMACommands)
			_, _ = fmt.Fprintf(h.config.Output, "  Bytes Moved:   %d\n", r.BytesMoved)
			_, _ = fmt.Fprintf(h.config.Output, "  List Elements: %d\n", r.ListElements)
			_, _ = fmt.Fprintf(h.config.Output, "  Atomics:       %d\n", r.AtomicCommands)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,cpi,dma_commands,bytes_moved,list_elements,atomics,sequence_errors,exit_code")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.Instructions,
			r.CPI,
			r.DMACommands,
			r.BytesMoved,
			r.ListElements,
			r.AtomicCommands,
			r.SequenceErrors,
			r.ExitCode,
		)
	}
}

// PrintJSON outputs benchmark results as an indented JSON array.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	enc := json.NewEncoder(h.config.Output)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
