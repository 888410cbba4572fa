// Package main is the entry point for the dubflow CLI.
//
// Usage:
//
//	dubflow [flags] <command> [args]
//
// Commands:
//
//	run      - Run the dubbing pipeline on an episode
//	bless    - Accept manual edits to a phase's artifacts
//	phases   - List pipeline phases and their contracts
//	inspect  - Query an episode's manifest
package main

import (
	"fmt"
	"os"

	"github.com/dubflow/dubflow/cmd/dubflow/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
