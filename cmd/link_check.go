// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	linkCheckDuration time.Duration
	linkCheckInterval time.Duration
)

var linkCheckCmd = &cobra.Command{
	Use:   "link_check",
	Short: "Test bridge link stability over time",
	Long: `Hold the bridge link open and ping the target at a fixed interval.

Each ping reports the round trip time. A drop in the target's uptime between
pings means it restarted while idle, which is reported as an unexpected
restart.

Exit codes:
  0 - Link stayed up with no unexpected restart
  1 - Link failed or the target restarted
  2 - Connection error`,
	RunE: runLinkCheck,
}

func init() {
	rootCmd.AddCommand(linkCheckCmd)
	linkCheckCmd.Flags().DurationVar(&linkCheckDuration, "duration", 30*time.Second, "Test duration")
	linkCheckCmd.Flags().DurationVar(&linkCheckInterval, "interval", time.Second, "Time between pings")
}

func runLinkCheck(cmd *cobra.Command, args []string) error {
	client, connInfo, err := OpenBridge(newLogger(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	fmt.Printf("Bridge Link Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %s\n\n", linkCheckDuration)

	start := time.Now()
	endTime := start.Add(linkCheckDuration)
	var (
		pings      int
		restarts   int
		maxRTT     time.Duration
		lastUptime time.Duration
	)

	for time.Now().Before(endTime) {
		ctx, cancel := context.WithTimeout(context.Background(), bridgeTimeout)
		rtt, uptime, err := client.Ping(ctx)
		cancel()

		if err != nil {
			fmt.Printf("\n[%s] Link error: %v\n", time.Now().Format("15:04:05.000"), err)
			fmt.Printf("\n--- Test Results ---\n")
			fmt.Printf("Duration: %s\n", time.Since(start).Round(time.Second))
			fmt.Printf("Pings answered: %d\n", pings)
			fmt.Printf("Result: FAILED (link error)\n")
			client.Close()
			os.Exit(1)
		}

		pings++
		if rtt > maxRTT {
			maxRTT = rtt
		}
		if uptime < lastUptime {
			restarts++
			fmt.Printf("[%s] Target restarted (uptime %s, was %s)\n",
				time.Now().Format("15:04:05.000"), uptime, lastUptime)
		}
		lastUptime = uptime
		fmt.Printf("[%s] rtt=%s uptime=%s\n",
			time.Now().Format("15:04:05.000"), rtt.Round(time.Microsecond), uptime)

		time.Sleep(linkCheckInterval)
	}

	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %s\n", linkCheckDuration)
	fmt.Printf("Pings answered: %d\n", pings)
	fmt.Printf("Max round trip: %s\n", maxRTT.Round(time.Microsecond))
	fmt.Printf("\n%s", client.Stats())
	if restarts > 0 {
		fmt.Printf("Result: FAILED (%d unexpected restarts)\n", restarts)
		client.Close()
		os.Exit(1)
	}
	fmt.Printf("Result: PASSED (link stable)\n")
	return nil
}
