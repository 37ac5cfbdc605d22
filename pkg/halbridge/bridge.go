// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package halbridge carries lowpower.Hardware primitives over a byte stream
// using the halwire protocol.
//
// A Client is a lowpower.Hardware whose primitives execute on a remote
// target. A Responder is the other end: it decodes requests and applies
// them to a local Hardware, usually a simulated board.
package halbridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/somnus/pkg/halwire"
	"github.com/hashicorp/go-hclog"
)

// Link errors. Both are sticky on a Client.
var (
	ErrTimeout          = errors.New("bridge request timed out")
	ErrConnectionClosed = errors.New("bridge connection closed")
)

// ErrInvalidCommand is returned when the target does not know a request.
var ErrInvalidCommand = errors.New("target rejected unknown command")

// RejectedError is returned when the target answers ERROR_REJECTED.
type RejectedError struct {
	MsgType uint8
	Reason  halwire.RejectReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", halwire.FormatMessageType(e.MsgType), e.Reason)
}

// Defaults
const (
	DefaultTimeout      = 2 * time.Second
	DefaultStandbyGrace = 5 * time.Second
)

type config struct {
	logger       hclog.Logger
	address      uint64
	timeout      time.Duration
	standbyGrace time.Duration
	stats        *halwire.Statistics
}

func newConfig(opts []Option) config {
	cfg := config{
		logger:       hclog.NewNullLogger(),
		address:      halwire.AddressBroadcast,
		timeout:      DefaultTimeout,
		standbyGrace: DefaultStandbyGrace,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.stats == nil {
		cfg.stats = halwire.NewStatistics()
	}
	return cfg
}

// Option configures a Client or Responder.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithAddress sets the target address. A Client sends requests to it; a
// Responder answers requests sent to it or to the broadcast address.
func WithAddress(addr uint64) Option {
	return func(c *config) { c.address = addr }
}

// WithTimeout sets how long a Client waits for an ordinary response.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithStandbyGrace sets how long past the armed duration a Client waits for
// a sleeping target to answer.
func WithStandbyGrace(d time.Duration) Option {
	return func(c *config) { c.standbyGrace = d }
}

// WithStatistics records link traffic into s.
func WithStatistics(s *halwire.Statistics) Option {
	return func(c *config) { c.stats = s }
}
