// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package halbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/somnus/pkg/halwire"
	"github.com/Thermoquad/somnus/pkg/lowpower"
	"github.com/hashicorp/go-hclog"
)

// Boot is a BOOT_ANNOUNCE received from the target.
type Boot struct {
	Flags lowpower.Flags
	Count uint32
	At    time.Time
}

// Client implements lowpower.Hardware on a remote target.
//
// Primitives without an error return log link failures and keep the first
// one; Err reports it. Once the link has failed every later primitive is a
// no-op, ArmWakeupTimer returns the error and SystemReset ends execution.
type Client struct {
	cfg    config
	conn   io.ReadWriteCloser
	enc    *halwire.Encoder
	logger hclog.Logger

	responses chan *halwire.Packet
	boots     chan *halwire.Packet
	done      chan struct{}

	// mu serialises requests
	mu    sync.Mutex
	seq   uint64
	armed time.Duration

	stateMu  sync.Mutex
	err      error
	lastBoot *Boot
}

var _ lowpower.Hardware = (*Client)(nil)

// NewClient starts a client on conn. The client owns conn and closes it in
// Close.
func NewClient(conn io.ReadWriteCloser, opts ...Option) *Client {
	cfg := newConfig(opts)
	c := &Client{
		cfg:       cfg,
		conn:      conn,
		enc:       halwire.NewEncoder(conn),
		logger:    cfg.logger,
		responses: make(chan *halwire.Packet, 16),
		boots:     make(chan *halwire.Packet, 4),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Err returns the first link failure, if any.
func (c *Client) Err() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.err
}

// Stats returns the link statistics.
func (c *Client) Stats() *halwire.Statistics {
	return c.cfg.stats
}

// LastBoot returns the most recent boot announce seen from the target.
func (c *Client) LastBoot() (Boot, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.lastBoot == nil {
		return Boot{}, false
	}
	return *c.lastBoot, true
}

func (c *Client) fail(err error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Client) recordBoot(p *halwire.Packet) Boot {
	flags, _ := halwire.GetMapUint(p.PayloadMap(), 0)
	count, _ := halwire.GetMapUint(p.PayloadMap(), 1)
	b := Boot{Flags: lowpower.Flags(flags), Count: uint32(count), At: p.Timestamp()}
	c.stateMu.Lock()
	c.lastBoot = &b
	c.stateMu.Unlock()
	c.logger.Debug("target booted", "boot", b.Count, "flags", b.Flags)
	return b
}

func (c *Client) readLoop() {
	defer close(c.done)

	decoder := halwire.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := c.conn.Read(buf)
		decoder.Feed(buf[:n], c.dispatch, func(derr error) {
			c.cfg.stats.Update(nil, derr, nil)
			c.logger.Debug("decode error", "error", derr)
		})
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.fail(ErrConnectionClosed)
			} else {
				c.fail(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			}
			return
		}
	}
}

func (c *Client) dispatch(p *halwire.Packet) {
	c.cfg.stats.Update(p, nil, halwire.ValidatePacket(p))
	c.logger.Trace("received", "type", halwire.FormatMessageType(p.Type()))

	var ch chan *halwire.Packet
	switch {
	case p.Type() == halwire.MsgBootAnnounce:
		ch = c.boots
	case halwire.IsResponse(p.Type()):
		ch = c.responses
	default:
		return
	}
	select {
	case ch <- p:
	default:
		c.logger.Warn("dropping unclaimed packet", "type", halwire.FormatMessageType(p.Type()))
	}
}

// drainBoots records boot announces that arrived while nobody waited.
func (c *Client) drainBoots() {
	for {
		select {
		case p := <-c.boots:
			c.recordBoot(p)
		default:
			return
		}
	}
}

// roundTrip sends req and waits for the response carrying its sequence
// number. With acceptBoot a BOOT_ANNOUNCE also completes the request.
// Called with mu held.
func (c *Client) roundTrip(ctx context.Context, req *halwire.Packet, acceptBoot bool) (*halwire.Packet, error) {
	if err := c.Err(); err != nil {
		return nil, err
	}
	c.drainBoots()

	c.seq++
	seq := c.seq
	req.WithSeq(seq)
	c.cfg.stats.Update(req, nil, nil)
	c.logger.Trace("sending", "type", halwire.FormatMessageType(req.Type()), "seq", seq)
	if err := c.enc.Encode(req); err != nil {
		err = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		c.fail(err)
		return nil, err
	}

	for {
		select {
		case p := <-c.responses:
			if got, _ := p.Seq(); got != seq {
				c.logger.Debug("stale response", "type", halwire.FormatMessageType(p.Type()), "seq", got, "want", seq)
				continue
			}
			switch p.Type() {
			case halwire.MsgErrorInvalidCmd:
				return p, fmt.Errorf("%w: %s", ErrInvalidCommand, halwire.FormatMessageType(req.Type()))
			case halwire.MsgErrorRejected:
				reason, _ := halwire.GetMapUint(p.PayloadMap(), 1)
				return p, &RejectedError{MsgType: req.Type(), Reason: halwire.RejectReason(reason)}
			}
			return p, nil

		case p := <-c.boots:
			c.recordBoot(p)
			if acceptBoot {
				return p, nil
			}
			c.logger.Warn("target restarted during request", "type", halwire.FormatMessageType(req.Type()))

		case <-c.done:
			return nil, c.Err()

		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				c.fail(ErrTimeout)
				return nil, ErrTimeout
			}
			return nil, ctx.Err()
		}
	}
}

func (c *Client) requestWithin(d time.Duration, req *halwire.Packet, acceptBoot bool) (*halwire.Packet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.roundTrip(ctx, req, acceptBoot)
	if err != nil {
		c.logger.Error("bridge request failed", "type", halwire.FormatMessageType(req.Type()), "error", err)
	}
	return resp, err
}

func (c *Client) request(req *halwire.Packet) (*halwire.Packet, error) {
	return c.requestWithin(c.cfg.timeout, req, false)
}

// sleepWait is how long a sleeping target may take to answer.
func (c *Client) sleepWait() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed + c.cfg.standbyGrace
}

// Ping measures the round trip to the target and returns its uptime.
func (c *Client) Ping(ctx context.Context) (rtt, uptime time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	resp, err := c.roundTrip(ctx, halwire.NewPingRequest(c.cfg.address), false)
	if err != nil {
		return 0, 0, err
	}
	ms, _ := halwire.GetMapUint(resp.PayloadMap(), 1)
	return time.Since(start), time.Duration(ms) * time.Millisecond, nil
}

// InitRTC implements lowpower.RTC.
func (c *Client) InitRTC() {
	c.request(halwire.NewInitRTC(c.cfg.address))
}

// ArmWakeupTimer implements lowpower.RTC.
func (c *Client) ArmWakeupTimer(counter uint16, divisor lowpower.Divisor) error {
	if _, err := c.request(halwire.NewArmTimer(c.cfg.address, counter, uint8(divisor))); err != nil {
		return err
	}
	t := lowpower.WakeupTimer{Counter: counter, Divisor: divisor}
	c.mu.Lock()
	c.armed = t.Duration()
	c.mu.Unlock()
	return nil
}

// QuiescePort implements lowpower.GPIO.
func (c *Client) QuiescePort(port lowpower.Port, keep uint16) {
	c.request(halwire.NewQuiescePort(c.cfg.address, uint8(port), keep))
}

// SetWakeupPin implements lowpower.GPIO.
func (c *Client) SetWakeupPin(enabled bool) {
	c.request(halwire.NewWakePin(c.cfg.address, enabled))
}

// DriveOutput implements lowpower.GPIO.
func (c *Client) DriveOutput(pin lowpower.Pin, level bool) {
	c.request(halwire.NewPinOutput(c.cfg.address, uint8(pin.Port), pin.Num, level))
}

// ConfigureRegulator implements lowpower.Power.
func (c *Client) ConfigureRegulator(lowPower, fastWake bool) {
	c.request(halwire.NewRegulator(c.cfg.address, lowPower, fastWake))
}

// SelectWakeClock implements lowpower.Power.
func (c *Client) SelectWakeClock(lowPower bool) {
	c.request(halwire.NewWakeClock(c.cfg.address, lowPower))
}

// ReadFlags implements lowpower.Power. It returns no flags if the link
// failed.
func (c *Client) ReadFlags() lowpower.Flags {
	resp, err := c.request(halwire.NewReadFlags(c.cfg.address))
	if err != nil {
		return 0
	}
	mask, _ := halwire.GetMapUint(resp.PayloadMap(), 1)
	return lowpower.Flags(mask)
}

// ClearFlags implements lowpower.Power.
func (c *Client) ClearFlags(f lowpower.Flags) {
	c.request(halwire.NewClearFlags(c.cfg.address, uint16(f)))
}

// EnterStandby implements lowpower.Power. It ends execution when the target
// announces a boot and returns if the target reports the core came back
// without restarting or the link failed.
func (c *Client) EnterStandby() {
	resp, err := c.requestWithin(c.sleepWait(), halwire.NewEnterStandby(c.cfg.address), true)
	if err != nil {
		return
	}
	if resp.Type() == halwire.MsgBootAnnounce {
		lowpower.EndExecution()
	}
	c.logger.Warn("target returned from standby")
}

// EnterStop implements lowpower.Power. The target acknowledges after it
// wakes.
func (c *Client) EnterStop(regulatorOn bool) {
	c.requestWithin(c.sleepWait(), halwire.NewEnterStop(c.cfg.address, regulatorOn), false)
}

// InitSystemClock implements lowpower.Power.
func (c *Client) InitSystemClock() {
	c.request(halwire.NewClockInit(c.cfg.address))
}

// Delay implements lowpower.Power. The delay runs on the target.
func (c *Client) Delay(d time.Duration) {
	c.requestWithin(c.cfg.timeout+d, halwire.NewDelay(c.cfg.address, uint32(d/time.Millisecond)), false)
}

// EnterCritical implements lowpower.CriticalSection.
func (c *Client) EnterCritical() {
	c.request(halwire.NewCriticalEnter(c.cfg.address))
}

// ExitCritical implements lowpower.CriticalSection.
func (c *Client) ExitCritical() {
	c.request(halwire.NewCriticalExit(c.cfg.address))
}

// SuspendTick implements lowpower.Ticker.
func (c *Client) SuspendTick() {
	c.request(halwire.NewTickSuspend(c.cfg.address))
}

// ResumeTick implements lowpower.Ticker.
func (c *Client) ResumeTick() {
	c.request(halwire.NewTickResume(c.cfg.address))
}

// SystemReset implements lowpower.Resetter. It waits for the target to
// announce its boot and then ends execution, also when the link failed.
func (c *Client) SystemReset() {
	c.requestWithin(c.cfg.timeout, halwire.NewSystemReset(c.cfg.address), true)
	lowpower.EndExecution()
}
