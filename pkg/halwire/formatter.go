// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halwire

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/somnus/pkg/lowpower"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.received.Format("15:04:05.000")
	msgType := FormatMessageType(p.Type())

	result := fmt.Sprintf("[%s] %s (0x%02X) addr=%016X len=%d\n", timestamp, msgType, p.Type(), p.address, p.size)
	if err := p.ParseError(); err != nil {
		return result + fmt.Sprintf("  (unparseable payload: %v)\n", err)
	}
	return result + FormatPayloadMap(p.Type(), p.PayloadMap())
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	// Setup requests (0x10-0x1F)
	case MsgInitRTC:
		return "INIT_RTC"
	case MsgCriticalEnter:
		return "CRITICAL_ENTER"
	case MsgCriticalExit:
		return "CRITICAL_EXIT"
	case MsgQuiescePort:
		return "QUIESCE_PORT"
	case MsgRegulator:
		return "REGULATOR"
	case MsgWakeClock:
		return "WAKE_CLOCK"
	case MsgReadFlags:
		return "READ_FLAGS"
	case MsgClearFlags:
		return "CLEAR_FLAGS"
	case MsgArmTimer:
		return "ARM_TIMER"
	case MsgWakePin:
		return "WAKE_PIN"

	// Mode requests (0x20-0x2F)
	case MsgTickSuspend:
		return "TICK_SUSPEND"
	case MsgTickResume:
		return "TICK_RESUME"
	case MsgEnterStandby:
		return "ENTER_STANDBY"
	case MsgEnterStop:
		return "ENTER_STOP"
	case MsgClockInit:
		return "CLOCK_INIT"
	case MsgPinOutput:
		return "PIN_OUTPUT"
	case MsgDelay:
		return "DELAY"
	case MsgSystemReset:
		return "SYSTEM_RESET"
	case MsgPingRequest:
		return "PING_REQUEST"

	// Responses (0x30-0x3F)
	case MsgAck:
		return "ACK"
	case MsgFlags:
		return "FLAGS"
	case MsgBootAnnounce:
		return "BOOT_ANNOUNCE"
	case MsgStandbyReturned:
		return "STANDBY_RETURNED"
	case MsgPingResponse:
		return "PING_RESPONSE"

	// Errors (0xE0-0xEF)
	case MsgErrorInvalidCmd:
		return "ERROR_INVALID_CMD"
	case MsgErrorRejected:
		return "ERROR_REJECTED"

	default:
		return "UNKNOWN"
	}
}

// FormatPayloadMap formats the CBOR payload map based on message type
func FormatPayloadMap(msgType uint8, m map[int]interface{}) string {
	result := formatFields(msgType, m)
	if IsRequest(msgType) {
		if seq, ok := GetMapUint(m, KeySeq); ok {
			result += fmt.Sprintf("  Seq: %d\n", seq)
		}
	}
	return result
}

func formatFields(msgType uint8, m map[int]interface{}) string {
	switch msgType {
	case MsgInitRTC, MsgCriticalEnter, MsgCriticalExit, MsgReadFlags,
		MsgTickSuspend, MsgTickResume, MsgEnterStandby, MsgClockInit,
		MsgSystemReset, MsgPingRequest:
		return "  (no payload)\n"

	case MsgQuiescePort:
		// 0 => port, 1 => keep mask
		port, _ := GetMapUint(m, 0)
		keep, _ := GetMapUint(m, 1)
		return fmt.Sprintf("  Port: %s, Keep: 0x%04X\n", formatPort(port), keep)

	case MsgRegulator:
		// 0 => low-power, 1 => fast-wake
		lowPower, _ := GetMapBool(m, 0)
		fastWake, _ := GetMapBool(m, 1)
		return fmt.Sprintf("  Low Power: %s, Fast Wake: %s\n", onOff(lowPower), onOff(fastWake))

	case MsgWakeClock:
		// 0 => low-power
		lowPower, _ := GetMapBool(m, 0)
		clock := "HSI"
		if lowPower {
			clock = "MSI"
		}
		return fmt.Sprintf("  Wake Clock: %s\n", clock)

	case MsgClearFlags:
		// 0 => mask
		mask, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Mask: %s\n", lowpower.Flags(mask))

	case MsgArmTimer:
		// 0 => counter, 1 => divisor
		counter, _ := GetMapUint(m, 0)
		divisor, _ := GetMapUint(m, 1)
		return fmt.Sprintf("  Counter: %d, Divisor: %s (%d)\n", counter, lowpower.Divisor(divisor), divisor)

	case MsgWakePin:
		// 0 => enabled
		enabled, _ := GetMapBool(m, 0)
		return fmt.Sprintf("  Wakeup Pin: %s\n", onOff(enabled))

	case MsgEnterStop:
		// 0 => regulator-on
		regulatorOn, _ := GetMapBool(m, 0)
		return fmt.Sprintf("  Regulator: %s\n", onOff(regulatorOn))

	case MsgPinOutput:
		// 0 => port, 1 => pin, 2 => level
		port, _ := GetMapUint(m, 0)
		pin, _ := GetMapUint(m, 1)
		level, _ := GetMapBool(m, 2)
		levelStr := "Low"
		if level {
			levelStr = "High"
		}
		return fmt.Sprintf("  Pin: P%s%d, Level: %s\n", formatPort(port), pin, levelStr)

	case MsgDelay:
		// 0 => ms
		ms, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Delay: %d ms\n", ms)

	case MsgAck:
		// 0 => seq, 1 => ok
		seq, _ := GetMapUint(m, 0)
		ok, _ := GetMapBool(m, 1)
		return fmt.Sprintf("  Seq: %d, OK: %t\n", seq, ok)

	case MsgFlags:
		// 0 => seq, 1 => mask
		seq, _ := GetMapUint(m, 0)
		mask, _ := GetMapUint(m, 1)
		flags := lowpower.Flags(mask)
		return fmt.Sprintf("  Seq: %d, Flags: %s, Cause: %s\n", seq, flags, lowpower.Classify(flags))

	case MsgBootAnnounce:
		// 0 => flags, 1 => boots
		mask, _ := GetMapUint(m, 0)
		boots, _ := GetMapUint(m, 1)
		flags := lowpower.Flags(mask)
		return fmt.Sprintf("  Boot #%d, Flags: %s, Cause: %s\n", boots, flags, lowpower.Classify(flags))

	case MsgStandbyReturned:
		// 0 => seq
		seq, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Seq: %d (core returned from standby)\n", seq)

	case MsgPingResponse:
		// 0 => seq, 1 => uptime-ms
		uptime, _ := GetMapUint(m, 1)
		return fmt.Sprintf("  Uptime: %s\n", formatDuration(uptime))

	case MsgErrorInvalidCmd:
		// 0 => seq, 1 => offending type
		seq, _ := GetMapUint(m, 0)
		typ, _ := GetMapUint(m, 1)
		return fmt.Sprintf("  Seq: %d, Type: 0x%02X\n", seq, typ)

	case MsgErrorRejected:
		// 0 => seq, 1 => reason
		seq, _ := GetMapUint(m, 0)
		reason, _ := GetMapUint(m, 1)
		return fmt.Sprintf("  Seq: %d, Reason: %s (%d)\n", seq, RejectReason(reason), reason)
	}

	// Default: show map contents
	if m == nil {
		return "  (nil payload)\n"
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d: %v", k, m[k]))
	}
	return "  Payload: {" + strings.Join(parts, ", ") + "}\n"
}

// String returns the reason name
func (r RejectReason) String() string {
	switch r {
	case RejectInvalidPayload:
		return "INVALID_PAYLOAD"
	case RejectArmFailed:
		return "ARM_FAILED"
	case RejectBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

func formatPort(port uint64) string {
	if port > uint64(lowpower.MaxPort) {
		return fmt.Sprintf("?%d", port)
	}
	return lowpower.Port(port).String()
}

func onOff(v bool) string {
	if v {
		return "On"
	}
	return "Off"
}

// formatDuration formats milliseconds as a human-readable duration
func formatDuration(ms uint64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
