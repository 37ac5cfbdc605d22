// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/somnus/pkg/halbridge"
	"github.com/Thermoquad/somnus/pkg/halwire"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Bridge flags
	targetAddress uint64
	bridgeTimeout time.Duration

	// Logging flags
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "somnus",
	Short: "Low-power mode controller bench tool",
	Long: `Somnus - sequences Standby and Stop low-power cycles on a bench target.

The controller runs on this host and drives the target's hardware primitives
over the HAL bridge protocol, or runs against a simulated board. Commands
cover wakeup timer planning, single sleep cycles, wake cause inspection,
packet tracing and an interactive cycle monitor.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the SOMNUS_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Bridge flags
	rootCmd.PersistentFlags().Uint64Var(&targetAddress, "address", halwire.AddressBroadcast, "Bridge target address (0 for any)")
	rootCmd.PersistentFlags().DurationVar(&bridgeTimeout, "timeout", halbridge.DefaultTimeout, "Bridge response timeout")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
}

// newLogger builds the command logger from the logging flags. Logs go to
// stderr so they never mix with command output.
func newLogger() hclog.Logger {
	return newLoggerTo(os.Stderr)
}

func newLoggerTo(w io.Writer) hclog.Logger {
	level := hclog.LevelFromString(strings.ToLower(logLevel))
	if level == hclog.NoLevel {
		level = hclog.Warn
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "somnus",
		Level:      level,
		JSONFormat: logJSON,
		Output:     w,
	})
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
