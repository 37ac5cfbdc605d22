// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/somnus/pkg/bench"
	"github.com/Thermoquad/somnus/pkg/halwire"
	"github.com/Thermoquad/somnus/pkg/lowpower"
	"github.com/spf13/cobra"
)

var (
	bootWatchTimeout time.Duration
	bootWatchReset   bool
	bootWatchCount   int
)

var bootWatchCmd = &cobra.Command{
	Use:   "boot_watch",
	Short: "Wait for the target to announce a boot",
	Long: `Listen for BOOT_ANNOUNCE packets and classify each boot.

The target announces every boot with its latched flags and boot count: at
power-up, after a Standby wake and after a reset. With --reset the NRST line
is pulsed from host GPIO first, so the next announcement should classify as
RESET.

Examples:
  # Watch a target restart from Standby
  somnus boot_watch --port /dev/ttyUSB0 --timeout 2m

  # Reset the target and confirm it comes back
  somnus boot_watch --port /dev/ttyUSB0 --reset

Exit codes:
  0 - The expected number of boots was announced
  1 - Timeout before enough announcements
  2 - Connection error`,
	RunE: runBootWatch,
}

func init() {
	rootCmd.AddCommand(bootWatchCmd)
	bootWatchCmd.Flags().DurationVar(&bootWatchTimeout, "timeout", 10*time.Second, "How long to wait")
	bootWatchCmd.Flags().BoolVar(&bootWatchReset, "reset", false, "Pulse NRST from host GPIO before waiting")
	bootWatchCmd.Flags().IntVar(&bootWatchCount, "count", 1, "Number of boots to wait for")
}

func runBootWatch(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Somnus - Boot Watch\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %s\n\n", bootWatchTimeout)

	boots := make(chan *halwire.Packet, 4)
	errChan := make(chan error, 1)

	go func() {
		decoder := halwire.NewDecoder()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			decoder.Feed(buf[:n], func(packet *halwire.Packet) {
				if packet.Type() == halwire.MsgBootAnnounce {
					boots <- packet
				}
			}, nil)
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	if bootWatchReset {
		pulser, closeGPIO, err := bench.OpenGPIO(bench.DefaultWakeGPIO, bench.DefaultResetGPIO,
			bench.WithLogger(newLogger().Named("bench")))
		if err != nil {
			fmt.Fprintf(os.Stderr, "GPIO error: %v\n", err)
			os.Exit(2)
		}
		err = pulser.PulseReset(bench.DefaultWidth)
		closeGPIO()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Reset pulse failed: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("Pulsed NRST for %s\n", bench.DefaultWidth)
	}

	deadline := time.After(bootWatchTimeout)
	seen := 0
	for seen < bootWatchCount {
		select {
		case p := <-boots:
			seen++
			m := p.PayloadMap()
			flags, _ := halwire.GetMapUint(m, 0)
			count, _ := halwire.GetMapUint(m, 1)
			fl := lowpower.Flags(flags)
			fmt.Printf("\nBoot announced:\n")
			fmt.Printf("  Boot:  #%d\n", count)
			fmt.Printf("  Flags: %s (0x%04X)\n", fl, flags)
			fmt.Printf("  Cause: %s\n", lowpower.Classify(fl))

		case err := <-errChan:
			fmt.Printf("READ FAILED: %v\n", err)
			os.Exit(2)

		case <-deadline:
			fmt.Printf("\nTIMEOUT: %d of %d boots announced in %s\n", seen, bootWatchCount, bootWatchTimeout)
			os.Exit(1)
		}
	}
	return nil
}
