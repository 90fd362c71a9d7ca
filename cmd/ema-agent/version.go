package main

import (
	"fmt"
	"runtime"

	"github.com/koscakluka/ema-agent/internal/telemetry"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ema-agent %s (%s)\n", telemetry.Version(), runtime.Version())
		},
	}
}
