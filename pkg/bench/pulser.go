// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bench drives a bench target's external wakeup and reset lines
// from Raspberry Pi GPIO.
package bench

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	rpio "github.com/stianeikeland/go-rpio/v4"
)

// Default BCM pin numbers
const (
	DefaultWakeGPIO  = 17
	DefaultResetGPIO = 27
)

// DefaultWidth is a pulse long enough for the target's wakeup pin filter.
const DefaultWidth = 50 * time.Millisecond

// ErrInvalidWidth is returned for a non-positive pulse width.
var ErrInvalidWidth = errors.New("pulse width must be positive")

// Line is one GPIO output. rpio.Pin satisfies it.
type Line interface {
	High()
	Low()
}

var _ Line = rpio.Pin(0)

// Pulser sequences pulses on the wakeup line (active high) and the reset
// line (NRST, active low).
type Pulser struct {
	logger hclog.Logger

	mu    sync.Mutex
	wake  Line
	reset Line
}

// Option configures a Pulser.
type Option func(*Pulser)

// WithLogger sets the pulser's logger.
func WithLogger(l hclog.Logger) Option {
	return func(p *Pulser) { p.logger = l }
}

// NewPulser creates a pulser and drives both lines to their idle levels.
func NewPulser(wake, reset Line, opts ...Option) *Pulser {
	p := &Pulser{
		logger: hclog.NewNullLogger(),
		wake:   wake,
		reset:  reset,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wake.Low()
	p.reset.High()
	return p
}

// PulseWake raises the wakeup line for width.
func (p *Pulser) PulseWake(width time.Duration) error {
	if width <= 0 {
		return ErrInvalidWidth
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Debug("wake pulse", "width", width)
	p.wake.High()
	time.Sleep(width)
	p.wake.Low()
	return nil
}

// PulseReset holds NRST low for width.
func (p *Pulser) PulseReset(width time.Duration) error {
	if width <= 0 {
		return ErrInvalidWidth
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Debug("reset pulse", "width", width)
	p.reset.Low()
	time.Sleep(width)
	p.reset.High()
	return nil
}

// OpenGPIO maps GPIO memory and returns a pulser on the given BCM pins. The
// returned function unmaps GPIO memory.
func OpenGPIO(wakeGPIO, resetGPIO int, opts ...Option) (*Pulser, func() error, error) {
	if wakeGPIO == resetGPIO {
		return nil, nil, fmt.Errorf("wake and reset lines share GPIO %d", wakeGPIO)
	}
	if err := rpio.Open(); err != nil {
		return nil, nil, fmt.Errorf("failed to open GPIO: %w", err)
	}

	wake := rpio.Pin(wakeGPIO)
	reset := rpio.Pin(resetGPIO)
	wake.Output()
	reset.Output()
	return NewPulser(wake, reset, opts...), rpio.Close, nil
}
