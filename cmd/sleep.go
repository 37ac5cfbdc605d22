// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/somnus/pkg/halbridge"
	"github.com/Thermoquad/somnus/pkg/lowpower"
	"github.com/spf13/cobra"
)

var (
	sleepMode    string
	sleepSeconds uint32
	sleepWakePin bool
	sleepSettle  time.Duration
	sleepGrace   time.Duration
	sleepCycles  int
)

var sleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Run a low-power cycle on the connected target",
	Long: `Put the connected target into Standby or Stop and report how it woke.

Standby powers the target down; the wake is a restart, reported by the
target's boot announcement. Stop keeps the target's state; the cycle returns
once the target restores its clocks.

The wake cause is classified from the target's latched flags after the
cycle. Use --cycles to repeat the cycle.`,
	RunE: runSleep,
}

func init() {
	rootCmd.AddCommand(sleepCmd)
	addCycleFlags(sleepCmd, &sleepMode, &sleepSeconds, &sleepWakePin, &sleepSettle)
	sleepCmd.Flags().DurationVar(&sleepGrace, "grace", halbridge.DefaultStandbyGrace, "Extra time allowed for a sleeping target to answer")
	sleepCmd.Flags().IntVar(&sleepCycles, "cycles", 1, "Number of cycles to run")
}

// addCycleFlags registers the flags shared by every command that runs sleep
// cycles.
func addCycleFlags(cmd *cobra.Command, mode *string, seconds *uint32, wakePin *bool, settle *time.Duration) {
	cmd.Flags().StringVarP(mode, "mode", "m", "stop", "Low-power mode (standby or stop)")
	cmd.Flags().Uint32VarP(seconds, "seconds", "s", 5, "Wakeup timer duration in seconds")
	cmd.Flags().BoolVar(wakePin, "wake-pin", false, "Enable the external wakeup pin")
	cmd.Flags().DurationVar(settle, "settle", lowpower.DefaultSettleDelay, "Pause between waking and restoring clocks")
}

func parseModeFlag(s string) (lowpower.Mode, error) {
	mode, ok := lowpower.ParseMode(s)
	if !ok {
		return mode, fmt.Errorf("unknown mode %q (use standby or stop)", s)
	}
	return mode, nil
}

func runSleep(cmd *cobra.Command, args []string) error {
	mode, err := parseModeFlag(sleepMode)
	if err != nil {
		return err
	}
	if sleepCycles < 1 {
		return fmt.Errorf("--cycles must be at least 1")
	}

	logger := newLogger()
	client, connInfo, err := OpenBridge(logger, nil, halbridge.WithStandbyGrace(sleepGrace))
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("Somnus - Sleep\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timer: %s\n\n", lowpower.NewWakeupTimer(sleepSeconds))

	runner := newCycleRunner(client, logger)
	for i := 1; i <= sleepCycles; i++ {
		res := runner.run(cycleSpec{
			mode:    mode,
			seconds: sleepSeconds,
			wakePin: sleepWakePin,
			settle:  sleepSettle,
		})
		if err := client.Err(); err != nil {
			return fmt.Errorf("cycle %d: bridge failed: %w", i, err)
		}

		fmt.Printf("[%d] %s\n", i, res)
		if boot, ok := client.LastBoot(); ok && res.outcome == lowpower.OutcomeEnded {
			fmt.Printf("    boot #%d, flags %s\n", boot.Count, boot.Flags)
		}
	}

	fmt.Printf("\n%s", client.Stats())
	return nil
}
