// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halwire

// Request builders create Packet structs ready for encoding. The caller
// stamps each request with WithSeq before sending it.

// NewInitRTC creates an INIT_RTC request (0x10).
func NewInitRTC(address uint64) *Packet {
	return NewPacketWithPayload(address, MsgInitRTC, nil)
}

// NewCriticalEnter creates a CRITICAL_ENTER request (0x11).
func NewCriticalEnter(address uint64) *Packet {
	return NewPacketWithPayload(address, MsgCriticalEnter, nil)
}

// NewCriticalExit creates a CRITICAL_EXIT request (0x12).
func NewCriticalExit(address uint64) *Packet {
	return NewPacketWithPayload(address, MsgCriticalExit, nil)
}

// NewQuiescePort creates a QUIESCE_PORT request (0x13).
// Every pin of port goes to analog mode except those set in keep.
func NewQuiescePort(address uint64, port uint8, keep uint16) *Packet {
	payload := map[int]interface{}{
		0: uint64(port),
		1: uint64(keep),
	}
	return NewPacketWithPayload(address, MsgQuiescePort, payload)
}

// NewRegulator creates a REGULATOR request (0x14).
func NewRegulator(address uint64, lowPower, fastWake bool) *Packet {
	payload := map[int]interface{}{
		0: lowPower,
		1: fastWake,
	}
	return NewPacketWithPayload(address, MsgRegulator, payload)
}

// NewWakeClock creates a WAKE_CLOCK request (0x15).
func NewWakeClock(address uint64, lowPower bool) *Packet {
	payload := map[int]interface{}{
		0: lowPower,
	}
	return NewPacketWithPayload(address, MsgWakeClock, payload)
}

// NewReadFlags creates a READ_FLAGS request (0x16).
// The target answers with FLAGS.
func NewReadFlags(address uint64) *Packet {
	return NewPacketWithPayload(address, MsgReadFlags, nil)
}

// NewClearFlags creates a CLEAR_FLAGS request (0x17).
func NewClearFlags(address uint64, mask uint16) *Packet {
	payload := map[int]interface{}{
		0: uint64(mask),
	}
	return NewPacketWithPayload(address, MsgClearFlags, payload)
}

// NewArmTimer creates an ARM_TIMER request (0x18).
// A target that cannot honour the configuration answers ERROR_REJECTED.
func NewArmTimer(address uint64, counter uint16, divisor uint8) *Packet {
	payload := map[int]interface{}{
		0: uint64(counter),
		1: uint64(divisor),
	}
	return NewPacketWithPayload(address, MsgArmTimer, payload)
}

// NewWakePin creates a WAKE_PIN request (0x19).
func NewWakePin(address uint64, enabled bool) *Packet {
	payload := map[int]interface{}{
		0: enabled,
	}
	return NewPacketWithPayload(address, MsgWakePin, payload)
}

// NewTickSuspend creates a TICK_SUSPEND request (0x20).
func NewTickSuspend(address uint64) *Packet {
	return NewPacketWithPayload(address, MsgTickSuspend, nil)
}

// NewTickResume creates a TICK_RESUME request (0x21).
func NewTickResume(address uint64) *Packet {
	return NewPacketWithPayload(address, MsgTickResume, nil)
}

// NewEnterStandby creates an ENTER_STANDBY request (0x22).
// The target answers with BOOT_ANNOUNCE after it wakes, or with
// STANDBY_RETURNED if the core came back without restarting.
func NewEnterStandby(address uint64) *Packet {
	return NewPacketWithPayload(address, MsgEnterStandby, nil)
}

// NewEnterStop creates an ENTER_STOP request (0x23).
// The ACK arrives after the target wakes.
func NewEnterStop(address uint64, regulatorOn bool) *Packet {
	payload := map[int]interface{}{
		0: regulatorOn,
	}
	return NewPacketWithPayload(address, MsgEnterStop, payload)
}

// NewClockInit creates a CLOCK_INIT request (0x24).
func NewClockInit(address uint64) *Packet {
	return NewPacketWithPayload(address, MsgClockInit, nil)
}

// NewPinOutput creates a PIN_OUTPUT request (0x25).
func NewPinOutput(address uint64, port, pin uint8, level bool) *Packet {
	payload := map[int]interface{}{
		0: uint64(port),
		1: uint64(pin),
		2: level,
	}
	return NewPacketWithPayload(address, MsgPinOutput, payload)
}

// NewDelay creates a DELAY request (0x26).
func NewDelay(address uint64, ms uint32) *Packet {
	payload := map[int]interface{}{
		0: uint64(ms),
	}
	return NewPacketWithPayload(address, MsgDelay, payload)
}

// NewSystemReset creates a SYSTEM_RESET request (0x27).
// The target answers with BOOT_ANNOUNCE once it is back.
func NewSystemReset(address uint64) *Packet {
	return NewPacketWithPayload(address, MsgSystemReset, nil)
}

// NewPingRequest creates a PING_REQUEST packet (0x2F).
// Targets respond with PING_RESPONSE containing uptime.
func NewPingRequest(address uint64) *Packet {
	return NewPacketWithPayload(address, MsgPingRequest, nil)
}

// Response builders

// NewAck creates an ACK response (0x30).
func NewAck(address uint64, seq uint64) *Packet {
	payload := map[int]interface{}{
		0: seq,
		1: true,
	}
	return NewPacketWithPayload(address, MsgAck, payload)
}

// NewFlags creates a FLAGS response (0x31).
func NewFlags(address uint64, seq uint64, flags uint16) *Packet {
	payload := map[int]interface{}{
		0: seq,
		1: uint64(flags),
	}
	return NewPacketWithPayload(address, MsgFlags, payload)
}

// NewBootAnnounce creates a BOOT_ANNOUNCE (0x32), sent by a target every
// time it starts executing from boot.
func NewBootAnnounce(address uint64, flags uint16, boots uint32) *Packet {
	payload := map[int]interface{}{
		0: uint64(flags),
		1: uint64(boots),
	}
	return NewPacketWithPayload(address, MsgBootAnnounce, payload)
}

// NewStandbyReturned creates a STANDBY_RETURNED response (0x33).
func NewStandbyReturned(address uint64, seq uint64) *Packet {
	payload := map[int]interface{}{
		0: seq,
	}
	return NewPacketWithPayload(address, MsgStandbyReturned, payload)
}

// NewPingResponse creates a PING_RESPONSE (0x3F).
func NewPingResponse(address uint64, seq uint64, uptimeMs uint64) *Packet {
	payload := map[int]interface{}{
		0: seq,
		1: uptimeMs,
	}
	return NewPacketWithPayload(address, MsgPingResponse, payload)
}

// NewErrorInvalidCmd creates an ERROR_INVALID_CMD response (0xE0).
func NewErrorInvalidCmd(address uint64, seq uint64, msgType uint8) *Packet {
	payload := map[int]interface{}{
		0: seq,
		1: uint64(msgType),
	}
	return NewPacketWithPayload(address, MsgErrorInvalidCmd, payload)
}

// NewErrorRejected creates an ERROR_REJECTED response (0xE1).
func NewErrorRejected(address uint64, seq uint64, reason RejectReason) *Packet {
	payload := map[int]interface{}{
		0: seq,
		1: uint64(reason),
	}
	return NewPacketWithPayload(address, MsgErrorRejected, payload)
}
