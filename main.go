// Package main provides the entry point for spusim.
// spusim emulates SPU thread groups: channels, the MFC DMA engine, and
// the events and signals they exchange with the kernel.
//
// For the full CLI, use: go run ./cmd/spusim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("spusim - SPU thread group emulator")
	fmt.Println("")
	fmt.Println("Usage: spusim [options] <scenario.yaml>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config      Path to timing configuration (JSON or YAML)")
	fmt.Println("  -v           Log verbosity")
	fmt.Println("  -json        Emit JSON logs")
	fmt.Println("  -cpuprofile  Write CPU profile to file")
	fmt.Println("  -timeout     Stop the group after this long")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/spusim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/spusim' instead.")
	}
}
