// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/somnus/pkg/lowpower"
	"github.com/Thermoquad/somnus/pkg/simboard"
	"github.com/spf13/cobra"
)

var (
	simMode        string
	simSeconds     uint32
	simWakePin     bool
	simSettle      time.Duration
	simWakeBy      string
	simFailArm     bool
	simAnomalous   bool
	simCycles      int
	simHideCalls   bool
	simStateReport bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run low-power cycles against a simulated board",
	Long: `Run the controller against a simulated target and print every hardware
primitive it issues.

The simulated board latches wakeup and reset flags like the silicon: a
Standby wake restarts it, a failed wakeup timer arm resets it. Fault
injection flags apply to the first cycle only.

No connection is needed.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	addCycleFlags(simulateCmd, &simMode, &simSeconds, &simWakePin, &simSettle)
	simulateCmd.Flags().StringVar(&simWakeBy, "wake-by", "timer", "What ends the sleep (timer or pin)")
	simulateCmd.Flags().BoolVar(&simFailArm, "fail-arm", false, "Reject the wakeup timer configuration")
	simulateCmd.Flags().BoolVar(&simAnomalous, "anomalous-standby", false, "Return from Standby instead of restarting")
	simulateCmd.Flags().IntVar(&simCycles, "cycles", 1, "Number of cycles to run")
	simulateCmd.Flags().BoolVar(&simHideCalls, "quiet", false, "Do not print the primitive call trace")
	simulateCmd.Flags().BoolVar(&simStateReport, "states", false, "Print controller state transitions")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	mode, err := parseModeFlag(simMode)
	if err != nil {
		return err
	}
	source, err := simboard.ParseSource(simWakeBy)
	if err != nil {
		return err
	}
	if simCycles < 1 {
		return fmt.Errorf("--cycles must be at least 1")
	}

	logger := newLogger()
	board := simboard.New(simboard.WithLogger(logger.Named("simboard")))
	board.WakeBy(source)
	if simFailArm {
		board.FailArm(nil)
	}
	if simAnomalous {
		board.AnomalousStandby()
	}

	fmt.Printf("Somnus - Simulated Board\n")
	fmt.Printf("Mode: %s, wake by %s, wake pin %v\n", mode, source, simWakePin)
	fmt.Printf("Timer: %s\n\n", lowpower.NewWakeupTimer(simSeconds))

	runner := newCycleRunner(board, logger)
	spec := cycleSpec{
		mode:    mode,
		seconds: simSeconds,
		wakePin: simWakePin,
		settle:  simSettle,
	}
	if simStateReport {
		spec.observer = func(s lowpower.State) {
			fmt.Printf("    state -> %s\n", s)
		}
	}

	for i := 1; i <= simCycles; i++ {
		board.ResetCalls()
		fmt.Printf("--- Cycle %d ---\n", i)
		res := runner.run(spec)

		if !simHideCalls {
			for _, c := range board.Calls() {
				fmt.Printf("    %s\n", c)
			}
		}
		fmt.Printf("[%d] %s\n\n", i, res)
	}

	snap := board.Snapshot()
	fmt.Printf("Boots: %d, resets: %d, simulated sleep: %s\n", snap.Boots, snap.Resets, snap.Slept)
	fmt.Printf("Latched flags: %s\n", snap.Flags)
	return nil
}
