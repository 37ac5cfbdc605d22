// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halwire

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks packet statistics and error rates on a bridge link.
// It is safe for concurrent use.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPackets     uint64
	ValidPackets     uint64
	CRCErrors        uint64
	DecodeErrors     uint64
	MalformedPackets uint64
	InvalidRanges    uint64
	MissingFields    uint64
	Requests         uint64
	Responses        uint64
	Rejections       uint64
	BootAnnounces    uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a packet and its errors
func (s *Statistics) Update(packet *Packet, decodeErr error, validationErrors []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCRCMismatch) {
			s.CRCErrors++
		} else {
			// Framing, overflow, etc.
			s.DecodeErrors++
		}
		return
	}

	if packet != nil {
		switch {
		case IsRequest(packet.Type()):
			s.Requests++
		case IsResponse(packet.Type()):
			s.Responses++
		}
		switch packet.Type() {
		case MsgErrorRejected, MsgErrorInvalidCmd:
			s.Rejections++
		case MsgBootAnnounce:
			s.BootAnnounces++
		}
	}

	if len(validationErrors) == 0 {
		s.ValidPackets++
		return
	}
	s.MalformedPackets++
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyMissingField, AnomalyDecodeError:
			s.MissingFields++
		default:
			s.InvalidRanges++
		}
	}
}

// Counts is a point-in-time copy of the counters and rates.
type Counts struct {
	Total         uint64
	Valid         uint64
	CRCErrors     uint64
	DecodeErrors  uint64
	Malformed     uint64
	Requests      uint64
	Responses     uint64
	Rejections    uint64
	BootAnnounces uint64
	PacketRate    float64
	ErrorRate     float64
}

// Counts returns the current counters with freshly calculated rates.
func (s *Statistics) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return Counts{
		Total:         s.TotalPackets,
		Valid:         s.ValidPackets,
		CRCErrors:     s.CRCErrors,
		DecodeErrors:  s.DecodeErrors,
		Malformed:     s.MalformedPackets,
		Requests:      s.Requests,
		Responses:     s.Responses,
		Rejections:    s.Rejections,
		BootAnnounces: s.BootAnnounces,
		PacketRate:    s.PacketRate,
		ErrorRate:     s.ErrorRate,
	}
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		errorCount := s.CRCErrors + s.DecodeErrors + s.MalformedPackets
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()

	var validPercent, crcErrorPercent, decodeErrorPercent, malformedPercent float64
	if s.TotalPackets > 0 {
		validPercent = float64(s.ValidPackets) * 100.0 / float64(s.TotalPackets)
		crcErrorPercent = float64(s.CRCErrors) * 100.0 / float64(s.TotalPackets)
		decodeErrorPercent = float64(s.DecodeErrors) * 100.0 / float64(s.TotalPackets)
		malformedPercent = float64(s.MalformedPackets) * 100.0 / float64(s.TotalPackets)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, validPercent)
	result += fmt.Sprintf("  Requests:         %5d\n", s.Requests)
	result += fmt.Sprintf("  Responses:        %5d\n", s.Responses)

	if s.BootAnnounces > 0 {
		result += fmt.Sprintf("Boot Announces:  %8d\n", s.BootAnnounces)
	}
	if s.Rejections > 0 {
		result += fmt.Sprintf("Rejections:      %8d\n", s.Rejections)
	}
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcErrorPercent)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, decodeErrorPercent)
	}
	if s.MalformedPackets > 0 {
		result += fmt.Sprintf("Malformed Pkts:  %8d (%.1f%%)\n", s.MalformedPackets, malformedPercent)
		if s.MissingFields > 0 {
			result += fmt.Sprintf("  Missing Fields:   %5d\n", s.MissingFields)
		}
		if s.InvalidRanges > 0 {
			result += fmt.Sprintf("  Out of Range:     %5d\n", s.InvalidRanges)
		}
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalPackets = 0
	s.ValidPackets = 0
	s.CRCErrors = 0
	s.DecodeErrors = 0
	s.MalformedPackets = 0
	s.InvalidRanges = 0
	s.MissingFields = 0
	s.Requests = 0
	s.Responses = 0
	s.Rejections = 0
	s.BootAnnounces = 0
	s.PacketRate = 0
	s.ErrorRate = 0
}
