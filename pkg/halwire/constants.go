// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package halwire implements the HAL bridge wire protocol.
//
// The bridge lets a host drive the hardware primitives of a bench target one
// call at a time. Every primitive is a request packet answered by an ACK or
// FLAGS response; the target announces every boot so the host can tell a
// Standby wake or forced reset apart from a normal reply.
//
// Packets are framed with start/end bytes, byte-stuffed, protected by
// CRC-16-CCITT and carry a CBOR payload [msg_type, {int: value}].
package halwire

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Packet size limits
const (
	MaxPacketSize  = 128 // 14 overhead + 114 payload
	MaxPayloadSize = 114
	AddressSize    = 8
	CRCSize        = 2
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Special addresses
const (
	AddressBroadcast = 0x0000000000000000 // Any target on the link
	AddressHost      = 0xFFFFFFFFFFFFFFFF // Responses addressed back to the host
)

// Message types - Setup Requests (Host → Target) 0x10-0x1F
const (
	MsgInitRTC       = 0x10
	MsgCriticalEnter = 0x11
	MsgCriticalExit  = 0x12
	MsgQuiescePort   = 0x13
	MsgRegulator     = 0x14
	MsgWakeClock     = 0x15
	MsgReadFlags     = 0x16
	MsgClearFlags    = 0x17
	MsgArmTimer      = 0x18
	MsgWakePin       = 0x19
)

// Message types - Mode Requests (Host → Target) 0x20-0x2F
const (
	MsgTickSuspend  = 0x20
	MsgTickResume   = 0x21
	MsgEnterStandby = 0x22
	MsgEnterStop    = 0x23
	MsgClockInit    = 0x24
	MsgPinOutput    = 0x25
	MsgDelay        = 0x26
	MsgSystemReset  = 0x27
	MsgPingRequest  = 0x2F
)

// Message types - Responses (Target → Host) 0x30-0x3F
const (
	MsgAck             = 0x30
	MsgFlags           = 0x31
	MsgBootAnnounce    = 0x32
	MsgStandbyReturned = 0x33
	MsgPingResponse    = 0x3F
)

// Message types - Errors (Target → Host) 0xE0-0xEF
const (
	MsgErrorInvalidCmd = 0xE0
	MsgErrorRejected   = 0xE1
)

// KeySeq is the payload key carrying the request sequence number. Requests
// put it next to their own fields; responses echo it at key 0.
const KeySeq = 15

// IsRequest reports whether msgType is a host-to-target request.
func IsRequest(msgType uint8) bool {
	return msgType >= 0x10 && msgType <= 0x2F
}

// IsResponse reports whether msgType is a target-to-host response or error.
func IsResponse(msgType uint8) bool {
	return (msgType >= 0x30 && msgType <= 0x3F) || (msgType >= 0xE0 && msgType <= 0xEF)
}

// RejectReason is carried by ERROR_REJECTED.
type RejectReason int

// Rejection reasons
const (
	RejectInvalidPayload RejectReason = 0x01
	RejectArmFailed      RejectReason = 0x02
	RejectBusy           RejectReason = 0x03
)
