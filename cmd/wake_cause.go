// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/somnus/pkg/lowpower"
	"github.com/spf13/cobra"
)

var wakeCauseClear bool

var wakeCauseCmd = &cobra.Command{
	Use:   "wake_cause",
	Short: "Read the target's latched flags and classify the last wakeup",
	Long: `Read the wakeup and reset flags latched on the connected target and
report why it last woke.

Classification is read-only. Pass --clear to deassert every flag afterwards;
the next classification then reports UNKNOWN until the target sleeps or
resets again.`,
	RunE: runWakeCause,
}

func init() {
	rootCmd.AddCommand(wakeCauseCmd)
	wakeCauseCmd.Flags().BoolVar(&wakeCauseClear, "clear", false, "Clear all flags after classifying")
}

func runWakeCause(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	client, connInfo, err := OpenBridge(logger, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	ctrl := lowpower.New(client, lowpower.WithLogger(logger.Named("lowpower")))
	flags, cause := ctrl.ReadWakeup()
	if err := client.Err(); err != nil {
		return fmt.Errorf("failed to read flags: %w", err)
	}

	fmt.Printf("Connection: %s\n", connInfo)
	if boot, ok := client.LastBoot(); ok {
		fmt.Printf("Boot:       #%d\n", boot.Count)
	}
	fmt.Printf("Flags:      %s (0x%04X)\n", flags, uint16(flags))
	fmt.Printf("Wake cause: %s\n", cause)

	if wakeCauseClear {
		ctrl.ClearWakeupFlags()
		if err := client.Err(); err != nil {
			return fmt.Errorf("failed to clear flags: %w", err)
		}
		fmt.Printf("Flags cleared\n")
	}
	return nil
}
