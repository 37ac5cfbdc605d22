// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/somnus/pkg/halwire"
	"github.com/spf13/cobra"
)

var (
	traceShowAnomalies bool
	traceRequestsOnly  bool
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Display bridge traffic in human-readable format",
	Long: `Continuously decode and display HAL bridge packets as they arrive.

Each packet is shown with its timestamp, address, message type and decoded
payload. Payload anomalies found by validation are flagged inline. Link
statistics are printed on exit.

Supports both serial and WebSocket connections.`,
	RunE: runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.Flags().BoolVar(&traceShowAnomalies, "anomalies", true, "Flag payload validation anomalies")
	traceCmd.Flags().BoolVar(&traceRequestsOnly, "requests", false, "Only show requests")
}

func runTrace(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Somnus - Bridge Trace\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := halwire.NewStatistics()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		conn.Close()
	}()

	decoder := halwire.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		decoder.Feed(buf[:n], func(packet *halwire.Packet) {
			verrs := halwire.ValidatePacket(packet)
			stats.Update(packet, nil, verrs)
			if traceRequestsOnly && !halwire.IsRequest(packet.Type()) {
				return
			}
			fmt.Print(halwire.FormatPacket(packet))
			if traceShowAnomalies {
				for _, v := range verrs {
					fmt.Printf("  [ANOMALY] %s: %s\n", v.Type, v.Message)
				}
			}
		}, func(derr error) {
			stats.Update(nil, derr, nil)
			fmt.Printf("[ERROR] %v\n", derr)
		})
		if err != nil {
			// A read error on either transport means the link is gone
			if !errors.Is(err, ErrConnectionClosed) && !errors.Is(err, io.EOF) {
				fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			}
			fmt.Printf("\nConnection closed\n%s", stats)
			return nil
		}
	}
}
