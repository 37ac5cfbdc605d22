// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lowpower implements the low-power mode controller: RTC wakeup timer
// programming, GPIO quiescing, Standby/Stop entry and wakeup cause
// classification.
//
// The controller never touches registers directly. Every hardware effect goes
// through the Hardware interface so the sequencing can run against a real
// target, a remote bench target, or a simulated board.
package lowpower

import (
	"fmt"
	"time"
)

// Port identifies a GPIO bank.
type Port uint8

// GPIO banks
const (
	PortA Port = iota
	PortB
	PortC
	PortD
	PortE
	PortH
)

// AllPorts lists every GPIO bank in quiescing order. Boards with a
// different bank set pass their own list through WithStandbyProfile.
var AllPorts = []Port{PortA, PortB, PortC, PortD, PortE, PortH}

// MaxPort is the highest valid port number.
const MaxPort = PortH

func (p Port) String() string {
	switch p {
	case PortA:
		return "A"
	case PortB:
		return "B"
	case PortC:
		return "C"
	case PortD:
		return "D"
	case PortE:
		return "E"
	case PortH:
		return "H"
	default:
		return "?"
	}
}

// Pin identifies one GPIO line.
type Pin struct {
	Port Port
	Num  uint8
}

// Mask returns the pin's bit within its port.
func (p Pin) Mask() uint16 {
	return 1 << (p.Num & 0x0F)
}

func (p Pin) String() string {
	return fmt.Sprintf("P%s%d", p.Port, p.Num)
}

// RTC is the real-time clock peripheral.
type RTC interface {
	// InitRTC performs one-time peripheral initialization.
	InitRTC()
	// ArmWakeupTimer programs the wakeup timer. An error means the
	// configuration could not be honoured and the timer is not running.
	ArmWakeupTimer(counter uint16, divisor Divisor) error
}

// GPIO groups the pin primitives the controller needs.
type GPIO interface {
	// QuiescePort puts every pin of the port into analog (Hi-Z) mode,
	// except the pins set in keep.
	QuiescePort(port Port, keep uint16)
	// SetWakeupPin arms or disarms the external wakeup pin.
	SetWakeupPin(enabled bool)
	// DriveOutput configures pin as a push-pull output at level.
	DriveOutput(pin Pin, level bool)
}

// Power groups the regulator, clock and mode-entry primitives.
type Power interface {
	// ConfigureRegulator selects the regulator mode used during sleep.
	ConfigureRegulator(lowPower, fastWake bool)
	// SelectWakeClock picks the clock that runs after wakeup.
	SelectWakeClock(lowPower bool)
	// ReadFlags returns the wakeup and reset cause flags.
	ReadFlags() Flags
	// ClearFlags deasserts the given flags.
	ClearFlags(f Flags)
	// EnterStandby halts the core in Standby. On real hardware it does
	// not return: wake restarts from boot.
	EnterStandby()
	// EnterStop halts the core in Stop and returns on wake.
	EnterStop(regulatorOn bool)
	// InitSystemClock rebuilds the clock tree after Stop.
	InitSystemClock()
	// Delay busy-waits for d.
	Delay(d time.Duration)
}

// CriticalSection excludes interrupts and preemption.
type CriticalSection interface {
	EnterCritical()
	ExitCritical()
}

// Ticker controls the periodic system tick.
type Ticker interface {
	SuspendTick()
	ResumeTick()
}

// Resetter forces a full device reset. SystemReset does not return.
type Resetter interface {
	SystemReset()
}

// Hardware is the full set of primitives consumed by the controller.
type Hardware interface {
	RTC
	GPIO
	Power
	CriticalSection
	Ticker
	Resetter
}
