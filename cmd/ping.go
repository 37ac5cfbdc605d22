// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/somnus/pkg/halbridge"
	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the bridge by pinging the target",
	Long: `Send PING_REQUEST packets to the target and wait for each response.

Reports the round trip time and the target's uptime since its last boot.

Exit codes:
  0 - Every ping answered
  1 - A ping timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 1, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", time.Second, "Time between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	client, connInfo, err := OpenBridge(newLogger(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	fmt.Printf("Somnus - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Target: 0x%016X\n\n", targetAddress)

	for i := 1; i <= pingCount; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), bridgeTimeout)
		rtt, uptime, err := client.Ping(ctx)
		cancel()

		switch {
		case errors.Is(err, halbridge.ErrTimeout):
			fmt.Fprintf(os.Stderr, "TIMEOUT: No response within %s\n", bridgeTimeout)
			client.Close()
			os.Exit(1)
		case err != nil:
			fmt.Fprintf(os.Stderr, "Bridge error: %v\n", err)
			client.Close()
			os.Exit(2)
		}

		fmt.Printf("[%d] rtt=%s uptime=%s\n", i, rtt.Round(time.Microsecond), uptime)
		if boot, ok := client.LastBoot(); ok && i == 1 {
			fmt.Printf("    boot #%d, flags %s\n", boot.Count, boot.Flags)
		}
		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}
	return nil
}
