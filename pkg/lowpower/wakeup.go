// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lowpower

import (
	"fmt"
	"strings"
	"time"
)

// Flags is the set of wakeup and reset cause flags latched by the hardware.
type Flags uint16

// Hardware status flags
const (
	FlagPinReset Flags = 1 << iota
	FlagPowerOnReset
	FlagWakeupTimer
	FlagWakeupPin
	FlagSoftwareReset
	FlagLowPowerReset
	FlagStandby
)

// FlagsAll is every flag the controller knows about. It is the mask cleared
// before each sleep entry.
const FlagsAll = FlagPinReset | FlagPowerOnReset | FlagWakeupTimer | FlagWakeupPin |
	FlagSoftwareReset | FlagLowPowerReset | FlagStandby

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagPinReset, "PIN_RESET"},
	{FlagPowerOnReset, "POWER_ON_RESET"},
	{FlagWakeupTimer, "WAKEUP_TIMER"},
	{FlagWakeupPin, "WAKEUP_PIN"},
	{FlagSoftwareReset, "SOFTWARE_RESET"},
	{FlagLowPowerReset, "LOW_POWER_RESET"},
	{FlagStandby, "STANDBY"},
}

// Has reports whether every flag in f is set.
func (fl Flags) Has(f Flags) bool {
	return fl&f == f
}

func (fl Flags) String() string {
	if fl == 0 {
		return "none"
	}
	names := []string{}
	for _, fn := range flagNames {
		if fl&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	if rest := fl &^ FlagsAll; rest != 0 {
		names = append(names, fmt.Sprintf("0x%04X", uint16(rest)))
	}
	return strings.Join(names, "|")
}

// WakeupCause is the classified reason execution resumed.
type WakeupCause int

// Wakeup causes
const (
	CauseUnknown WakeupCause = iota
	CauseReset
	CauseTimerExpired
	CauseExternalPin
	CauseSoftwareReset
	CauseLowPowerReset
)

// AllCauses lists every cause in classification priority order, followed by
// CauseUnknown.
var AllCauses = []WakeupCause{
	CauseReset,
	CauseTimerExpired,
	CauseExternalPin,
	CauseSoftwareReset,
	CauseLowPowerReset,
	CauseUnknown,
}

func (c WakeupCause) String() string {
	switch c {
	case CauseReset:
		return "reset"
	case CauseTimerExpired:
		return "timer"
	case CauseExternalPin:
		return "pin"
	case CauseSoftwareReset:
		return "software-reset"
	case CauseLowPowerReset:
		return "low-power-reset"
	default:
		return "unknown"
	}
}

// ParseWakeupCause is the inverse of WakeupCause.String.
func ParseWakeupCause(s string) (WakeupCause, error) {
	for _, c := range AllCauses {
		if c.String() == s {
			return c, nil
		}
	}
	return CauseUnknown, fmt.Errorf("unknown wakeup cause %q", s)
}

// Classify maps hardware flags to a wakeup cause. The first match wins: a
// hard reset dominates any stale timer or pin flag, and a timer wake is
// checked before a pin wake because both can latch at boundary timings.
func Classify(f Flags) WakeupCause {
	switch {
	case f&(FlagPinReset|FlagPowerOnReset) != 0:
		return CauseReset
	case f&FlagWakeupTimer != 0:
		return CauseTimerExpired
	case f&FlagWakeupPin != 0:
		return CauseExternalPin
	case f&FlagSoftwareReset != 0:
		return CauseSoftwareReset
	case f&FlagLowPowerReset != 0:
		return CauseLowPowerReset
	default:
		return CauseUnknown
	}
}

// Divisor selects the wakeup timer clock mode.
type Divisor uint8

// Wakeup timer clock modes. Both count the 1 Hz calendar clock; the 17-bit
// mode adds 2^16 to the programmed counter.
const (
	Divisor16Bit Divisor = iota
	Divisor17Bit
)

func (d Divisor) String() string {
	switch d {
	case Divisor16Bit:
		return "CK_SPRE_16BITS"
	case Divisor17Bit:
		return "CK_SPRE_17BITS"
	default:
		return fmt.Sprintf("DIVISOR(%d)", uint8(d))
	}
}

// Wakeup timer limits
const (
	MaxCounter         = 0xFFFF
	extendedOffset     = MaxCounter + 1
	MaxWakeupSeconds   = extendedOffset + MaxCounter
	MaxStandardSeconds = MaxCounter
)

// WakeupTimer is a requested sleep duration and the clock mode and counter
// that program it.
type WakeupTimer struct {
	Seconds   uint32
	Divisor   Divisor
	Counter   uint16
	Saturated bool
}

// NewWakeupTimer maps a duration in seconds to a clock mode and counter.
// Durations above MaxWakeupSeconds saturate at the maximum.
func NewWakeupTimer(seconds uint32) WakeupTimer {
	t := WakeupTimer{Seconds: seconds}
	if seconds > MaxWakeupSeconds {
		t.Seconds = MaxWakeupSeconds
		t.Saturated = true
	}
	if t.Seconds <= MaxStandardSeconds {
		t.Divisor = Divisor16Bit
		t.Counter = uint16(t.Seconds)
	} else {
		t.Divisor = Divisor17Bit
		t.Counter = uint16(t.Seconds - extendedOffset)
	}
	return t
}

// Duration returns the sleep length the divisor and counter program.
func (t WakeupTimer) Duration() time.Duration {
	secs := uint32(t.Counter)
	if t.Divisor == Divisor17Bit {
		secs += extendedOffset
	}
	return time.Duration(secs) * time.Second
}

func (t WakeupTimer) String() string {
	return fmt.Sprintf("%ds -> %s counter=%d (0x%04X)", t.Seconds, t.Divisor, t.Counter, t.Counter)
}
