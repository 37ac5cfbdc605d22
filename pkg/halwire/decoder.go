// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halwire

import (
	"errors"
	"fmt"
	"time"
)

// Decode errors. Every error returned by the decoder wraps one of these.
var (
	ErrCRCMismatch = errors.New("CRC mismatch")
	ErrFraming     = errors.New("framing error")
	ErrOversize    = errors.New("packet too large")
)

type decodeState int

// The message type lives inside the CBOR payload, so there is no type state.
const (
	stateIdle decodeState = iota
	stateLength
	stateAddress
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

var stateNames = [...]string{"IDLE", "LENGTH", "ADDRESS", "PAYLOAD", "CRC1", "CRC2", "END"}

func (s decodeState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// Decoder reassembles packets from a byte stream. It is not safe for
// concurrent use; give each reader its own decoder.
type Decoder struct {
	state      decodeState
	escapeNext bool

	// crcInput is everything the CRC covers: length, address, payload
	crcInput []byte
	packet   *Packet
}

// NewDecoder creates a new protocol decoder
func NewDecoder() *Decoder {
	return &Decoder{crcInput: make([]byte, 0, MaxPacketSize)}
}

// Reset drops any partial packet and waits for the next START byte.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.escapeNext = false
	d.crcInput = d.crcInput[:0]
	d.packet = nil
}

// fail resets the decoder and returns err.
func (d *Decoder) fail(err error) (*Packet, error) {
	d.Reset()
	return nil, err
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed packet, or nil if the packet is incomplete.
// Returns an error if decoding fails; the decoder resynchronises on the next
// START byte.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	// START always resynchronises, even after a dangling escape
	if b == StartByte {
		d.Reset()
		d.state = stateLength
		return nil, nil
	}
	if d.state == stateIdle {
		return nil, nil
	}

	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	} else {
		switch b {
		case EscByte:
			d.escapeNext = true
			return nil, nil
		case EndByte:
			return d.finish()
		}
	}

	switch d.state {
	case stateLength:
		if b > MaxPayloadSize {
			return d.fail(fmt.Errorf("%w: length %d (max %d)", ErrOversize, b, MaxPayloadSize))
		}
		d.crcInput = append(d.crcInput, b)
		d.packet = &Packet{size: b, raw: make([]byte, 0, b)}
		d.state = stateAddress

	case stateAddress:
		// Address is little-endian, bytes 1..8 of the CRC input
		n := len(d.crcInput) - 1
		d.crcInput = append(d.crcInput, b)
		d.packet.address |= uint64(b) << (n * 8)
		if n+1 == AddressSize {
			d.state = statePayload
			if d.packet.size == 0 {
				d.state = stateCRC1
			}
		}

	case statePayload:
		d.crcInput = append(d.crcInput, b)
		d.packet.raw = append(d.packet.raw, b)
		if len(d.packet.raw) == int(d.packet.size) {
			d.state = stateCRC1
		}

	case stateCRC1:
		d.packet.checksum = uint16(b) << 8
		d.state = stateCRC2

	case stateCRC2:
		d.packet.checksum |= uint16(b)
		d.state = stateEnd

	default:
		return d.fail(fmt.Errorf("%w: byte 0x%02X after CRC, expected END", ErrFraming, b))
	}
	return nil, nil
}

// finish handles an END byte.
func (d *Decoder) finish() (*Packet, error) {
	if d.state != stateEnd {
		return d.fail(fmt.Errorf("%w: END byte in state %s", ErrFraming, d.state))
	}

	packet := d.packet
	calculated := CalculateCRC(d.crcInput)
	d.Reset()

	if packet.checksum != calculated {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, packet.checksum)
	}
	packet.received = time.Now()
	return packet, nil
}

// Feed decodes a chunk of bytes and hands every completed packet to onPacket
// and every decode error to onError. Either callback may be nil.
func (d *Decoder) Feed(data []byte, onPacket func(*Packet), onError func(error)) {
	for _, b := range data {
		p, err := d.DecodeByte(b)
		switch {
		case err != nil:
			if onError != nil {
				onError(err)
			}
		case p != nil:
			if onPacket != nil {
				onPacket(p)
			}
		}
	}
}
