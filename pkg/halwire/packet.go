// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halwire

import "time"

// Packet is one bridge message. Packets off the wire hold the raw CBOR and
// decode it on first access; packets built locally start decoded.
type Packet struct {
	size     uint8
	address  uint64
	raw      []byte
	checksum uint16
	received time.Time

	decoded bool
	msgType uint8
	fields  map[int]interface{}
	err     error
}

// NewPacket wraps a received body: declared payload size, target address,
// raw CBOR and the CRC that came with it.
func NewPacket(size uint8, address uint64, raw []byte, checksum uint16) *Packet {
	return &Packet{
		size:     size,
		address:  address,
		raw:      raw,
		checksum: checksum,
		received: time.Now(),
	}
}

// NewPacketWithPayload builds an outgoing packet. CBOR and CRC are produced
// by EncodePacket.
func NewPacketWithPayload(address uint64, msgType uint8, fields map[int]interface{}) *Packet {
	return &Packet{
		address:  address,
		decoded:  true,
		msgType:  msgType,
		fields:   fields,
		received: time.Now(),
	}
}

func (p *Packet) decode() {
	if p.decoded {
		return
	}
	p.decoded = true
	if len(p.raw) > 0 {
		p.msgType, p.fields, p.err = ParseCBORMessage(p.raw)
	}
}

// Length is the payload size declared in the frame.
func (p *Packet) Length() uint8 { return p.size }

// Address is the 64-bit target address.
func (p *Packet) Address() uint64 { return p.address }

// IsBroadcast reports whether the packet is addressed to any target.
func (p *Packet) IsBroadcast() bool { return p.address == AddressBroadcast }

// Payload is the raw CBOR as received.
func (p *Packet) Payload() []byte { return p.raw }

// CRC is the checksum carried by a received packet.
func (p *Packet) CRC() uint16 { return p.checksum }

// Timestamp is when the packet was decoded or built.
func (p *Packet) Timestamp() time.Time { return p.received }

// Type returns the message type.
func (p *Packet) Type() uint8 {
	p.decode()
	return p.msgType
}

// PayloadMap returns the message fields, nil for a message without any.
func (p *Packet) PayloadMap() map[int]interface{} {
	p.decode()
	return p.fields
}

// ParseError reports why the CBOR payload could not be decoded.
func (p *Packet) ParseError() error {
	p.decode()
	return p.err
}

// Seq returns the sequence number of a request (key 15) or the echoed
// sequence number of a response (key 0).
func (p *Packet) Seq() (uint64, bool) {
	key := 0
	if IsRequest(p.Type()) {
		key = KeySeq
	}
	return GetMapUint(p.PayloadMap(), key)
}

// WithSeq stamps a request with its sequence number and returns it.
func (p *Packet) WithSeq(seq uint64) *Packet {
	p.decode()
	if p.fields == nil {
		p.fields = make(map[int]interface{})
	}
	p.fields[KeySeq] = seq
	return p
}
