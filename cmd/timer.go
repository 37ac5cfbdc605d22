// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/Thermoquad/somnus/pkg/lowpower"
	"github.com/spf13/cobra"
)

var timerCmd = &cobra.Command{
	Use:   "timer <seconds>...",
	Short: "Show how sleep durations program the wakeup timer",
	Long: `Map sleep durations to the RTC wakeup clock mode and counter.

Durations up to 65535 seconds use the 16-bit mode with the duration as the
counter. Durations up to 131071 seconds use the 17-bit mode with the counter
offset by 65536. Longer durations saturate at the maximum.

No connection is needed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTimer,
}

func init() {
	rootCmd.AddCommand(timerCmd)
}

func runTimer(cmd *cobra.Command, args []string) error {
	for _, arg := range args {
		seconds, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", arg, err)
		}

		t := lowpower.NewWakeupTimer(uint32(seconds))
		fmt.Printf("%10d s  %-15s counter=%-5d (0x%04X)  sleeps %s\n",
			seconds, t.Divisor, t.Counter, t.Counter, t.Duration())
		if t.Saturated {
			fmt.Printf("%12s saturated to %d s\n", "", t.Seconds)
		}
	}
	return nil
}
