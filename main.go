// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Somnus - Low-Power Mode Controller Bench Tool
//
// A CLI tool for sequencing Standby and Stop cycles on a bench target,
// classifying how it woke, and inspecting the bridge traffic.

package main

import (
	"os"

	"github.com/Thermoquad/somnus/cmd"
)

func main() {
	// Cobra already printed the error
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
