// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lowpower

// Mode is a low-power state.
type Mode int

// Low-power modes
const (
	// ModeStandby loses RAM and GPIO state; wake restarts from boot.
	ModeStandby Mode = iota
	// ModeStop keeps RAM; execution continues after the entry call.
	ModeStop
)

func (m Mode) String() string {
	switch m {
	case ModeStandby:
		return "standby"
	case ModeStop:
		return "stop"
	default:
		return "unknown"
	}
}

// ParseMode parses "standby" or "stop".
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "standby":
		return ModeStandby, true
	case "stop":
		return ModeStop, true
	}
	return 0, false
}

// Profile is the quiescing plan for one mode: which ports go to analog and
// which pins inside them are left alone.
type Profile struct {
	Ports []Port
	Keep  map[Port]uint16
}

// KeepMask returns the pins of port that must not be quiesced.
func (p Profile) KeepMask(port Port) uint16 {
	if p.Keep == nil {
		return 0
	}
	return p.Keep[port]
}

// Reserve returns a copy of p with pin excluded from quiescing.
func (p Profile) Reserve(pin Pin) Profile {
	keep := make(map[Port]uint16, len(p.Keep)+1)
	for port, mask := range p.Keep {
		keep[port] = mask
	}
	keep[pin.Port] |= pin.Mask()
	return Profile{Ports: append([]Port(nil), p.Ports...), Keep: keep}
}

// DefaultOscillatorPin enables the external oscillator that clocks the core
// after Stop. Check it against the target pinout and override it with
// WithOscillatorPin when it differs.
var DefaultOscillatorPin = Pin{Port: PortH, Num: 1}

// DefaultStandbyProfile quiesces every port. The wakeup pin is served by the
// power controller and keeps working with its bank in analog mode.
func DefaultStandbyProfile() Profile {
	return Profile{Ports: append([]Port(nil), AllPorts...)}
}

// DefaultStopProfile quiesces every port except the oscillator-enable pin,
// which must be driven again as soon as the core wakes.
func DefaultStopProfile(osc Pin) Profile {
	return Profile{Ports: append([]Port(nil), AllPorts...)}.Reserve(osc)
}
