// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encoder writes framed packets to a stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode frames p and writes it in a single Write call, so packets from
// concurrent encoders on a message-oriented transport never interleave.
func (e *Encoder) Encode(p *Packet) error {
	frame, err := EncodePacket(p)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", FormatMessageType(p.Type()), err)
	}
	return nil
}

// EncodePacket returns the complete wire frame for p: START, the stuffed
// body and CRC, END.
func EncodePacket(p *Packet) ([]byte, error) {
	msg, err := encodeCBORPayload(p.Type(), p.PayloadMap())
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", FormatMessageType(p.Type()), err)
	}
	if len(msg) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %s payload is %d bytes (max %d)",
			ErrOversize, FormatMessageType(p.Type()), len(msg), MaxPayloadSize)
	}

	body := make([]byte, 1+AddressSize, 1+AddressSize+len(msg)+CRCSize)
	body[0] = byte(len(msg))
	binary.LittleEndian.PutUint64(body[1:], p.Address())
	body = append(body, msg...)
	body = binary.BigEndian.AppendUint16(body, CalculateCRC(body))

	frame := make([]byte, 0, 2*len(body)+2)
	frame = append(frame, StartByte)
	frame = appendStuffed(frame, body)
	return append(frame, EndByte), nil
}

// MustEncodePacket is EncodePacket for packets built by this package's
// constructors, which always encode.
func MustEncodePacket(p *Packet) []byte {
	frame, err := EncodePacket(p)
	if err != nil {
		panic(fmt.Sprintf("halwire: %v", err))
	}
	return frame
}

// appendStuffed appends data to dst with every framing byte escaped.
func appendStuffed(dst, data []byte) []byte {
	for _, b := range data {
		switch b {
		case StartByte, EndByte, EscByte:
			dst = append(dst, EscByte, b^EscXor)
		default:
			dst = append(dst, b)
		}
	}
	return dst
}
