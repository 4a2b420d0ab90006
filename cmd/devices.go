package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akzios/bpsr-tools-sub001/internal/capture"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture-capable network interfaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		devs, err := capture.Devices()
		if err != nil {
			return fmt.Errorf("device enumeration failed: %w", err)
		}
		for _, d := range devs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s", d.Name)
			if d.Description != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  (%s)", d.Description)
			}
			for _, addr := range d.Addresses {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s", addr.IP)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
