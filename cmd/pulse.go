// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/somnus/pkg/bench"
	"github.com/spf13/cobra"
)

var (
	pulseLine      string
	pulseWidth     time.Duration
	pulseWakeGPIO  int
	pulseResetGPIO int
)

var pulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Pulse the target's wakeup or reset line from host GPIO",
	Long: `Drive a pulse on a bench target's external wakeup pin or NRST line
from Raspberry Pi GPIO.

A wake pulse ends a sleep entered with --wake-pin. A reset pulse restarts the
target; its next classification reports RESET.

Requires access to /dev/gpiomem.`,
	RunE: runPulse,
}

func init() {
	rootCmd.AddCommand(pulseCmd)
	pulseCmd.Flags().StringVar(&pulseLine, "line", "wake", "Line to pulse (wake or reset)")
	pulseCmd.Flags().DurationVar(&pulseWidth, "width", bench.DefaultWidth, "Pulse width")
	pulseCmd.Flags().IntVar(&pulseWakeGPIO, "wake-gpio", bench.DefaultWakeGPIO, "BCM pin wired to the wakeup pin")
	pulseCmd.Flags().IntVar(&pulseResetGPIO, "reset-gpio", bench.DefaultResetGPIO, "BCM pin wired to NRST")
}

func runPulse(cmd *cobra.Command, args []string) error {
	if pulseLine != "wake" && pulseLine != "reset" {
		return fmt.Errorf("unknown line %q (use wake or reset)", pulseLine)
	}

	logger := newLogger()
	pulser, closeGPIO, err := bench.OpenGPIO(pulseWakeGPIO, pulseResetGPIO, bench.WithLogger(logger.Named("bench")))
	if err != nil {
		return err
	}
	defer closeGPIO()

	if pulseLine == "reset" {
		err = pulser.PulseReset(pulseWidth)
	} else {
		err = pulser.PulseWake(pulseWidth)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Pulsed %s line for %s\n", pulseLine, pulseWidth)
	return nil
}
