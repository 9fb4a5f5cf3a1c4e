// Command benchmark runs the spusim MFC microbenchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv     Output results in CSV format (default: human-readable)
//	-json    Output results as JSON
//	-config  Timing configuration file (JSON or YAML)
//	-core    Run only the core benchmark set
//
// Example:
//
//	# Run all benchmarks with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
//
// The results can be compared across timing configurations to calibrate
// the MFC cost model.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/spusim/benchmarks"
	"github.com/sarchlab/spusim/timing/latency"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results as JSON")
	configPath := flag.String("config", "", "Path to timing configuration file")
	coreOnly := flag.Bool("core", false, "Run only the core benchmark set")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	config.Output = os.Stdout

	if *configPath != "" {
		timing, err := latency.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading timing config: %v\n", err)
			os.Exit(1)
		}
		config.Timing = timing
	}

	harness := benchmarks.NewHarness(config)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	human := !*csvOutput && !*jsonOutput
	if human {
		fmt.Println("spusim MFC Benchmark Harness")
		fmt.Println("============================")
		fmt.Printf("DMA setup latency:   %d cycles\n", config.Timing.DMASetupLatency)
		fmt.Printf("DMA bandwidth:       %d bytes/cycle\n", config.Timing.DMABytesPerCycle)
		fmt.Printf("List element cost:   %d cycles\n", config.Timing.ListElementLatency)
		fmt.Println("")
	}

	results, err := harness.RunAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)

		fmt.Println("=== Summary ===")
		fmt.Println("")
		fmt.Println("Expected characteristics:")
		fmt.Println("- channel_ops: no transfers, CPI close to the channel latency")
		fmt.Println("- dma_small_gets: dominated by DMA setup")
		fmt.Println("- dma_large_get: dominated by bandwidth")
		fmt.Println("- dma_list: setup plus per-element cost")
		fmt.Println("- atomic_update: two atomic line transfers")
	}
}
