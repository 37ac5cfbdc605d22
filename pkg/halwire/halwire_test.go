// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halwire

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

// ============================================================
// Test Helpers
// ============================================================

// buildCBORPayload creates a CBOR-encoded message: [msgType, payloadMap]
func buildCBORPayload(msgType uint8, payload map[int]interface{}) []byte {
	var msg interface{}
	if payload == nil {
		msg = []interface{}{uint64(msgType), nil}
	} else {
		msg = []interface{}{uint64(msgType), payload}
	}
	data, err := cbor.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return data
}

// decodeAll feeds data to a fresh decoder and returns the last packet
func decodeAll(t *testing.T, data []byte) *Packet {
	t.Helper()
	d := NewDecoder()
	var packet *Packet
	for i, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("decode error at byte %d: %v", i, err)
		}
		if p != nil {
			packet = p
		}
	}
	if packet == nil {
		t.Fatal("no packet decoded")
	}
	return packet
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_CheckValue(t *testing.T) {
	crc := CalculateCRC([]byte("123456789"))
	if crc != 0x29B1 {
		t.Errorf("CRC mismatch: expected 0x29B1, got 0x%04X", crc)
	}
}

// ============================================================
// CBOR Parsing Tests
// ============================================================

func TestParseCBORMessage_Empty(t *testing.T) {
	_, _, err := ParseCBORMessage([]byte{})
	if !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("Expected ErrEmptyPayload, got %v", err)
	}
}

func TestParseCBORMessage_NilPayload(t *testing.T) {
	data := buildCBORPayload(MsgReadFlags, nil)
	msgType, payload, err := ParseCBORMessage(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if msgType != MsgReadFlags {
		t.Errorf("Expected READ_FLAGS (0x16), got 0x%02X", msgType)
	}
	if payload != nil {
		t.Errorf("Expected nil payload, got %v", payload)
	}
}

func TestParseCBORMessage_ArmTimer(t *testing.T) {
	data := buildCBORPayload(MsgArmTimer, map[int]interface{}{
		0:      uint64(4464),
		1:      uint64(1),
		KeySeq: uint64(9),
	})
	msgType, payload, err := ParseCBORMessage(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if msgType != MsgArmTimer {
		t.Errorf("Expected ARM_TIMER, got 0x%02X", msgType)
	}
	if counter, ok := GetMapUint(payload, 0); !ok || counter != 4464 {
		t.Errorf("Expected counter=4464, got %d (ok=%v)", counter, ok)
	}
	if seq, ok := GetMapUint(payload, KeySeq); !ok || seq != 9 {
		t.Errorf("Expected seq=9, got %d (ok=%v)", seq, ok)
	}
}

func TestParseCBORMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		msg  interface{}
	}{
		{"not an array", map[int]interface{}{0: 1}},
		{"one element", []interface{}{uint64(0x10)}},
		{"type is text", []interface{}{"ping", nil}},
		{"type out of range", []interface{}{uint64(300), nil}},
		{"payload is array", []interface{}{uint64(0x10), []interface{}{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := cbor.Marshal(tt.msg)
			if err != nil {
				t.Fatal(err)
			}
			if _, _, err := ParseCBORMessage(data); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestGetMapHelpers(t *testing.T) {
	m := map[int]interface{}{
		0: uint64(42),
		1: int64(-10),
		2: true,
		3: "hello",
	}

	if v, ok := GetMapUint(m, 0); !ok || v != 42 {
		t.Errorf("GetMapUint(0) = %d, %v", v, ok)
	}
	if _, ok := GetMapUint(m, 1); ok {
		t.Error("GetMapUint should reject negative values")
	}
	if v, ok := GetMapBool(m, 2); !ok || !v {
		t.Errorf("GetMapBool(2) = %v, %v", v, ok)
	}
	if _, ok := GetMapBool(m, 3); ok {
		t.Error("GetMapBool should reject a string")
	}
	if _, ok := GetMapUint(m, 99); ok {
		t.Error("missing key should not be found")
	}
}

// ============================================================
// Byte Stuffing Tests
// ============================================================

func TestAppendStuffed(t *testing.T) {
	data := []byte{StartByte, EndByte, EscByte, 0x01}
	expected := []byte{0xAA, EscByte, 0x5E, EscByte, 0x5F, EscByte, 0x5D, 0x01}

	stuffed := appendStuffed([]byte{0xAA}, data)
	if !bytes.Equal(stuffed, expected) {
		t.Fatalf("appendStuffed = % X, want % X", stuffed, expected)
	}

	// Stuffed bytes decode back through the decoder's escape handling
	frame := MustEncodePacket(NewClearFlags(AddressBroadcast, 0x7D7E))
	d := NewDecoder()
	var got *Packet
	d.Feed(frame, func(p *Packet) { got = p }, func(err error) { t.Errorf("decode error: %v", err) })
	if got == nil {
		t.Fatal("stuffed frame did not decode")
	}
	if mask, _ := GetMapUint(got.PayloadMap(), 0); mask != 0x7D7E {
		t.Errorf("mask = 0x%04X, want 0x7D7E", mask)
	}
}

func TestEncodePacket_NoBareFramingBytes(t *testing.T) {
	// Address bytes equal to the framing bytes must be escaped
	p := NewClearFlags(0x7D7F7E, 0x7E)
	data := MustEncodePacket(p)

	if data[0] != StartByte || data[len(data)-1] != EndByte {
		t.Fatalf("packet not framed: % X", data)
	}
	for i, b := range data[1 : len(data)-1] {
		if b == StartByte || b == EndByte {
			t.Errorf("bare framing byte 0x%02X at offset %d", b, i+1)
		}
	}

	decoded := decodeAll(t, data)
	if decoded.Address() != 0x7D7F7E {
		t.Errorf("Address = 0x%X, want 0x7D7F7E", decoded.Address())
	}
	if mask, _ := GetMapUint(decoded.PayloadMap(), 0); mask != 0x7E {
		t.Errorf("mask = 0x%X, want 0x7E", mask)
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_RoundTrip(t *testing.T) {
	p := NewArmTimer(0x1122334455667788, 4464, 1).WithSeq(3)
	data, err := EncodePacket(p)
	if err != nil {
		t.Fatalf("EncodePacket error: %v", err)
	}

	decoded := decodeAll(t, data)
	if decoded.Type() != MsgArmTimer {
		t.Errorf("Type = 0x%02X, want ARM_TIMER", decoded.Type())
	}
	if decoded.Address() != 0x1122334455667788 {
		t.Errorf("Address = 0x%016X", decoded.Address())
	}
	if int(decoded.Length()) != len(decoded.Payload()) {
		t.Errorf("Length %d does not match payload %d", decoded.Length(), len(decoded.Payload()))
	}
	if seq, ok := decoded.Seq(); !ok || seq != 3 {
		t.Errorf("Seq = %d (ok=%v), want 3", seq, ok)
	}
}

func TestDecoder_BadCRC(t *testing.T) {
	data := MustEncodePacket(NewPingRequest(0x01))
	// START, length, 8 address bytes, then the 4 byte CBOR array [0x2F, null]
	data[13] ^= 0x01

	d := NewDecoder()
	var lastErr error
	for _, b := range data {
		if p, err := d.DecodeByte(b); err != nil {
			lastErr = err
		} else if p != nil {
			t.Fatal("corrupted packet decoded")
		}
	}
	if !errors.Is(lastErr, ErrCRCMismatch) {
		t.Errorf("Expected ErrCRCMismatch, got %v", lastErr)
	}
}

func TestDecoder_OversizeLength(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	if _, err := d.DecodeByte(MaxPayloadSize + 1); !errors.Is(err, ErrOversize) {
		t.Errorf("Expected ErrOversize, got %v", err)
	}
}

func TestDecoder_UnexpectedEnd(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	d.DecodeByte(0x04)
	if _, err := d.DecodeByte(EndByte); !errors.Is(err, ErrFraming) {
		t.Errorf("Expected ErrFraming for truncated packet, got %v", err)
	}
}

func TestDecoder_Feed(t *testing.T) {
	stream := []byte{0x00, 0x7F, 0x13}
	stream = append(stream, MustEncodePacket(NewPingRequest(0x0102))...)
	stream = append(stream, StartByte, 0x02, EndByte)
	stream = append(stream, MustEncodePacket(NewAck(AddressHost, 9))...)

	var packets []*Packet
	var errs []error
	NewDecoder().Feed(stream, func(p *Packet) {
		packets = append(packets, p)
	}, func(err error) {
		errs = append(errs, err)
	})

	if len(packets) != 2 {
		t.Fatalf("Expected 2 packets, got %d", len(packets))
	}
	if packets[0].Type() != MsgPingRequest || packets[1].Type() != MsgAck {
		t.Errorf("Got types 0x%02X, 0x%02X", packets[0].Type(), packets[1].Type())
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrFraming) {
		t.Errorf("Expected one framing error, got %v", errs)
	}
}

func TestDecoder_ResyncAfterGarbage(t *testing.T) {
	garbage := []byte{0x00, 0x13, EndByte, 0x42, StartByte, 0x05}
	data := append(garbage, MustEncodePacket(NewTickSuspend(0x02))...)

	d := NewDecoder()
	var packets []*Packet
	for _, b := range data {
		if p, _ := d.DecodeByte(b); p != nil {
			packets = append(packets, p)
		}
	}
	if len(packets) != 1 {
		t.Fatalf("Expected 1 packet, got %d", len(packets))
	}
	if packets[0].Type() != MsgTickSuspend {
		t.Errorf("Type = 0x%02X, want TICK_SUSPEND", packets[0].Type())
	}
}

func TestDecoder_BackToBack(t *testing.T) {
	var stream bytes.Buffer
	enc := NewEncoder(&stream)
	for i := uint64(1); i <= 5; i++ {
		if err := enc.Encode(NewAck(AddressHost, i)); err != nil {
			t.Fatalf("Encode error: %v", err)
		}
	}

	d := NewDecoder()
	var seqs []uint64
	for _, b := range stream.Bytes() {
		p, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if p != nil {
			seq, _ := p.Seq()
			seqs = append(seqs, seq)
		}
	}
	if len(seqs) != 5 {
		t.Fatalf("Expected 5 packets, got %d", len(seqs))
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Errorf("packet %d seq = %d", i, seq)
		}
	}
}

func TestEncodePacket_PayloadTooLarge(t *testing.T) {
	payload := map[int]interface{}{0: strings.Repeat("x", MaxPayloadSize)}
	_, err := EncodePacket(NewPacketWithPayload(AddressBroadcast, MsgDelay, payload))
	if !errors.Is(err, ErrOversize) {
		t.Errorf("EncodePacket error = %v, want ErrOversize", err)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	s.Update(nil, fmt.Errorf("%w: length 200 (max 114)", ErrOversize), nil)
	s.Update(nil, ErrCRCMismatch, nil)
	s.Update(NewArmTimer(0, 10, 0).WithSeq(1), nil, nil)
	s.Update(NewAck(AddressHost, 1), nil, nil)
	s.Update(NewBootAnnounce(AddressHost, 0x0044, 2), nil, nil)
	s.Update(NewErrorRejected(AddressHost, 2, RejectArmFailed), nil, nil)

	bad := NewArmTimer(0, 10, 7)
	s.Update(bad, nil, ValidatePacket(bad))

	if s.TotalPackets != 7 {
		t.Errorf("TotalPackets = %d, want 7", s.TotalPackets)
	}
	if s.CRCErrors != 1 || s.DecodeErrors != 1 {
		t.Errorf("CRCErrors=%d DecodeErrors=%d, want 1/1", s.CRCErrors, s.DecodeErrors)
	}
	if s.ValidPackets != 4 {
		t.Errorf("ValidPackets = %d, want 4", s.ValidPackets)
	}
	if s.Requests != 2 || s.Responses != 3 {
		t.Errorf("Requests=%d Responses=%d, want 2/3", s.Requests, s.Responses)
	}
	if s.BootAnnounces != 1 || s.Rejections != 1 {
		t.Errorf("BootAnnounces=%d Rejections=%d, want 1/1", s.BootAnnounces, s.Rejections)
	}
	if s.MalformedPackets != 1 || s.InvalidRanges != 1 {
		t.Errorf("MalformedPackets=%d InvalidRanges=%d, want 1/1", s.MalformedPackets, s.InvalidRanges)
	}

	c := s.Counts()
	if c.Total != 7 || c.Valid != 4 || c.Malformed != 1 || c.BootAnnounces != 1 {
		t.Errorf("Counts() = %+v, inconsistent with counters", c)
	}

	summary := s.String()
	for _, want := range []string{"Total Packets:", "CRC Errors:", "Malformed Pkts:"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	s.Reset()
	if s.TotalPackets != 0 || s.CRCErrors != 0 {
		t.Error("Reset did not clear counters")
	}
}
