// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halwire

// crcTable holds the CRC-16-CCITT remainder of every byte value.
var crcTable = func() (t [256]uint16) {
	for b := range t {
		r := uint16(b) << 8
		for i := 0; i < 8; i++ {
			if r&0x8000 != 0 {
				r = r<<1 ^ crcPolynomial
			} else {
				r <<= 1
			}
		}
		t[b] = r
	}
	return t
}()

// CalculateCRC computes the CRC-16-CCITT (poly 0x1021, init 0xFFFF) of data.
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
