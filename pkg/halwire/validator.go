// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halwire

import (
	"fmt"

	"github.com/Thermoquad/somnus/pkg/lowpower"
)

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyMissingField AnomalyType = iota
	AnomalyInvalidPort
	AnomalyInvalidPin
	AnomalyInvalidDivisor
	AnomalyInvalidCounter
	AnomalyInvalidFlags
	AnomalyInvalidValue
	AnomalyDecodeError
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyMissingField:
		return "MISSING_FIELD"
	case AnomalyInvalidPort:
		return "INVALID_PORT"
	case AnomalyInvalidPin:
		return "INVALID_PIN"
	case AnomalyInvalidDivisor:
		return "INVALID_DIVISOR"
	case AnomalyInvalidCounter:
		return "INVALID_COUNTER"
	case AnomalyInvalidFlags:
		return "INVALID_FLAGS"
	case AnomalyInvalidValue:
		return "INVALID_VALUE"
	case AnomalyDecodeError:
		return "DECODE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket validates packet fields and detects anomalies.
// Returns a slice of validation errors (empty if packet is valid)
func ValidatePacket(p *Packet) []ValidationError {
	if err := p.ParseError(); err != nil {
		return []ValidationError{{
			Type:    AnomalyDecodeError,
			Message: fmt.Sprintf("payload does not decode: %v", err),
		}}
	}

	m := p.PayloadMap()
	errors := []ValidationError{}

	switch p.Type() {
	case MsgQuiescePort:
		errors = append(errors, validatePort(m, 0)...)
		errors = append(errors, validateRange(m, "keep", 1, lowpower.MaxCounter, AnomalyInvalidValue)...)
	case MsgRegulator:
		errors = append(errors, requireBool(m, "low_power", 0)...)
		errors = append(errors, requireBool(m, "fast_wake", 1)...)
	case MsgWakeClock:
		errors = append(errors, requireBool(m, "low_power", 0)...)
	case MsgClearFlags:
		errors = append(errors, validateFlags(m, 0)...)
	case MsgArmTimer:
		errors = append(errors, validateRange(m, "counter", 0, lowpower.MaxCounter, AnomalyInvalidCounter)...)
		errors = append(errors, validateRange(m, "divisor", 1, uint64(lowpower.Divisor17Bit), AnomalyInvalidDivisor)...)
	case MsgWakePin:
		errors = append(errors, requireBool(m, "enabled", 0)...)
	case MsgEnterStop:
		errors = append(errors, requireBool(m, "regulator_on", 0)...)
	case MsgPinOutput:
		errors = append(errors, validatePort(m, 0)...)
		errors = append(errors, validateRange(m, "pin", 1, 15, AnomalyInvalidPin)...)
		errors = append(errors, requireBool(m, "level", 2)...)
	case MsgDelay:
		errors = append(errors, validateRange(m, "ms", 0, 60000, AnomalyInvalidValue)...)
	case MsgFlags:
		errors = append(errors, validateFlags(m, 1)...)
	case MsgBootAnnounce:
		errors = append(errors, validateFlags(m, 0)...)
	}

	return errors
}

func missing(name string, key int) []ValidationError {
	return []ValidationError{{
		Type:    AnomalyMissingField,
		Message: fmt.Sprintf("missing %s (key %d)", name, key),
		Details: map[string]interface{}{"field": name, "key": key},
	}}
}

func requireBool(m map[int]interface{}, name string, key int) []ValidationError {
	if _, ok := GetMapBool(m, key); !ok {
		return missing(name, key)
	}
	return nil
}

func validateRange(m map[int]interface{}, name string, key int, max uint64, anomaly AnomalyType) []ValidationError {
	v, ok := GetMapUint(m, key)
	if !ok {
		return missing(name, key)
	}
	if v > max {
		return []ValidationError{{
			Type:    anomaly,
			Message: fmt.Sprintf("Invalid %s=%d (max %d)", name, v, max),
			Details: map[string]interface{}{name: v, "max": max},
		}}
	}
	return nil
}

func validatePort(m map[int]interface{}, key int) []ValidationError {
	return validateRange(m, "port", key, uint64(lowpower.MaxPort), AnomalyInvalidPort)
}

func validateFlags(m map[int]interface{}, key int) []ValidationError {
	v, ok := GetMapUint(m, key)
	if !ok {
		return missing("flags", key)
	}
	if v&^uint64(lowpower.FlagsAll) != 0 {
		return []ValidationError{{
			Type:    AnomalyInvalidFlags,
			Message: fmt.Sprintf("Unknown flag bits 0x%X", v&^uint64(lowpower.FlagsAll)),
			Details: map[string]interface{}{"flags": v, "known": uint64(lowpower.FlagsAll)},
		}}
	}
	return nil
}
