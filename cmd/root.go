// Package cmd implements the bpsr-meter CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "bpsr-meter",
	Short:   "Real-time combat meter fed by game network traffic",
	Long:    `bpsr-meter taps the game client's TCP connection, reassembles the stream, decodes combat notifications and aggregates per-player damage and healing statistics, served over a local websocket.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
