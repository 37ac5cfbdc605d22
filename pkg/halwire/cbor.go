// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halwire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrEmptyPayload is returned when a packet carries no CBOR message.
var ErrEmptyPayload = errors.New("empty CBOR payload")

// message is the CBOR body of every packet: a two element array holding the
// message type and an integer-keyed field map (null when there are no
// fields).
type message struct {
	_      struct{} `cbor:",toarray"`
	Type   uint8
	Fields map[int]interface{}
}

// decMode bounds what a hostile or corrupted payload can allocate.
var decMode, _ = cbor.DecOptions{
	MaxArrayElements: 16,
	MaxMapPairs:      32,
	MaxNestedLevels:  4,
}.DecMode()

// ParseCBORMessage decodes [msg_type, {int: value}]. The field map is nil
// for messages without fields.
func ParseCBORMessage(data []byte) (uint8, map[int]interface{}, error) {
	if len(data) == 0 {
		return 0, nil, ErrEmptyPayload
	}
	var msg message
	if err := decMode.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("decode message: %w", err)
	}
	return msg.Type, msg.Fields, nil
}

func encodeCBORPayload(msgType uint8, fields map[int]interface{}) ([]byte, error) {
	msg := message{Type: msgType}
	if len(fields) > 0 {
		msg.Fields = fields
	}
	return cbor.Marshal(msg)
}

// GetMapUint reads a non-negative integer field.
func GetMapUint(m map[int]interface{}, key int) (uint64, bool) {
	switch v := m[key].(type) {
	case uint64:
		return v, true
	case int64:
		return uint64(v), v >= 0
	}
	return 0, false
}

// GetMapBool reads a boolean field.
func GetMapBool(m map[int]interface{}, key int) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}
