// Package main is the entry point for the bpsr-meter capture agent.
package main

import (
	"fmt"
	"os"

	"github.com/akzios/bpsr-tools-sub001/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
