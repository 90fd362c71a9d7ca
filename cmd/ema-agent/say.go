package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>",
		Short: "Speak text through the synthesis chain and report which tier spoke",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			devices, err := openAudio(cfg.Audio)
			if err != nil {
				return err
			}
			defer devices.Close()

			chain := newSpeechChain(cfg, devices.playback)
			defer chain.Close()

			report := chain.Speak(cmd.Context(), strings.Join(args, " "))
			out := cmd.OutOrStdout()
			for _, failure := range report.Failures {
				fmt.Fprintf(out, "%s failed: %v\n", failure.Tier, failure.Err)
			}
			switch {
			case report.Cancelled:
				fmt.Fprintln(out, "cancelled")
			case report.Exhausted:
				return fmt.Errorf("no synthesis tier could speak")
			case report.Tier != "":
				fmt.Fprintf(out, "spoken by %s\n", report.Tier)
			}
			return nil
		},
	}
}
