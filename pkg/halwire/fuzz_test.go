// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halwire

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomRequest builds a well-formed request with random field values
func randomRequest(rng *rand.Rand) *Packet {
	address := rng.Uint64()
	var p *Packet
	switch rng.Intn(8) {
	case 0:
		p = NewQuiescePort(address, uint8(rng.Intn(6)), uint16(rng.Intn(0x10000)))
	case 1:
		p = NewArmTimer(address, uint16(rng.Intn(0x10000)), uint8(rng.Intn(2)))
	case 2:
		p = NewClearFlags(address, uint16(rng.Intn(0x80)))
	case 3:
		p = NewPinOutput(address, uint8(rng.Intn(6)), uint8(rng.Intn(16)), rng.Intn(2) == 1)
	case 4:
		p = NewRegulator(address, rng.Intn(2) == 1, rng.Intn(2) == 1)
	case 5:
		p = NewEnterStop(address, rng.Intn(2) == 1)
	case 6:
		p = NewDelay(address, uint32(rng.Intn(60001)))
	default:
		p = NewReadFlags(address)
	}
	return p.WithSeq(rng.Uint64())
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't crash or panic
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		length := rng.Intn(512) + 1
		data := make([]byte, length)
		rng.Read(data)

		for _, b := range data {
			if p, err := d.DecodeByte(b); err == nil && p != nil {
				// Whatever decodes must survive formatting and validation
				_ = FormatPacket(p)
				_ = ValidatePacket(p)
			}
		}
	}
}

// TestFuzzDecoder_RandomRequests round-trips random well-formed requests
func TestFuzzDecoder_RandomRequests(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		p := randomRequest(rng)
		wantSeq, _ := p.Seq()

		data, err := EncodePacket(p)
		if err != nil {
			t.Errorf("Round %d: encode error: %v", i, err)
			continue
		}

		d := NewDecoder()
		var decoded *Packet
		for _, b := range data {
			got, err := d.DecodeByte(b)
			if err != nil {
				t.Errorf("Round %d: unexpected decode error: %v", i, err)
				break
			}
			if got != nil {
				decoded = got
			}
		}
		if decoded == nil {
			t.Errorf("Round %d: expected packet, got nil", i)
			continue
		}

		if decoded.Address() != p.Address() {
			t.Errorf("Round %d: address mismatch: expected 0x%016X, got 0x%016X", i, p.Address(), decoded.Address())
		}
		if decoded.Type() != p.Type() {
			t.Errorf("Round %d: type mismatch: expected 0x%02X, got 0x%02X", i, p.Type(), decoded.Type())
		}
		if seq, _ := decoded.Seq(); seq != wantSeq {
			t.Errorf("Round %d: seq mismatch: expected %d, got %d", i, wantSeq, seq)
		}
		if errs := ValidatePacket(decoded); len(errs) != 0 {
			t.Errorf("Round %d: %s flagged: %v", i, FormatMessageType(decoded.Type()), errs)
		}
	}
}

// TestFuzzDecoder_CorruptedPackets flips a random byte inside each packet.
// The decoder must never hand back a packet whose checksum did not verify.
func TestFuzzDecoder_CorruptedPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		data := MustEncodePacket(randomRequest(rng))

		// Corrupt a random byte (not START or END)
		idx := rng.Intn(len(data)-2) + 1
		data[idx] ^= byte(rng.Intn(255) + 1)

		d := NewDecoder()
		for _, b := range data {
			p, err := d.DecodeByte(b)
			if err == nil && p != nil {
				// A corrupted escape can still frame a shorter valid-looking
				// packet; it must at least carry a verified CRC.
				body := append([]byte{p.Length()}, make([]byte, AddressSize)...)
				for j := 0; j < AddressSize; j++ {
					body[1+j] = byte(p.Address() >> (j * 8))
				}
				body = append(body, p.Payload()...)
				if CalculateCRC(body) != p.CRC() {
					t.Errorf("Round %d: packet with bad CRC accepted", i)
				}
			}
		}
	}
}

// TestFuzzDecoder_MissingBytes drops random bytes from each packet
func TestFuzzDecoder_MissingBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		data := MustEncodePacket(randomRequest(rng))

		numToRemove := rng.Intn(5) + 1
		for j := 0; j < numToRemove && len(data) > 2; j++ {
			idx := rng.Intn(len(data))
			data = append(data[:idx], data[idx+1:]...)
		}

		// Feed truncated packet - should not panic, then recover on the next one
		d := NewDecoder()
		for _, b := range data {
			d.DecodeByte(b)
		}
		var recovered *Packet
		for _, b := range MustEncodePacket(NewPingRequest(0x01)) {
			if p, err := d.DecodeByte(b); err == nil && p != nil {
				recovered = p
			}
		}
		if recovered == nil || recovered.Type() != MsgPingRequest {
			t.Errorf("Round %d: decoder did not resynchronise", i)
		}
	}
}
