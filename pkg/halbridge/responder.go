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

// Responder serves a lowpower.Hardware to a remote Client.
//
// Every request runs inside lowpower.RunCycle. When a primitive ends
// execution (Standby wake, reset) the responder counts a boot and announces
// it instead of acknowledging the request.
type Responder struct {
	cfg    config
	hw     lowpower.Hardware
	conn   io.ReadWriteCloser
	enc    *halwire.Encoder
	logger hclog.Logger

	mu    sync.Mutex
	boots uint32
	start time.Time
}

// NewResponder creates a responder applying requests from conn to hw.
func NewResponder(hw lowpower.Hardware, conn io.ReadWriteCloser, opts ...Option) *Responder {
	cfg := newConfig(opts)
	return &Responder{
		cfg:    cfg,
		hw:     hw,
		conn:   conn,
		enc:    halwire.NewEncoder(conn),
		logger: cfg.logger,
		boots:  1,
		start:  time.Now(),
	}
}

// Stats returns the link statistics.
func (r *Responder) Stats() *halwire.Statistics {
	return r.cfg.stats
}

// Boots returns how many times the served target has booted.
func (r *Responder) Boots() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.boots
}

// Serve announces the current boot and then answers requests until the
// connection closes or ctx is cancelled. It closes conn on return.
func (r *Responder) Serve(ctx context.Context) error {
	defer r.conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.conn.Close()
		case <-stop:
		}
	}()

	if err := r.announce(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	decoder := halwire.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := r.conn.Read(buf)
		var herr error
		decoder.Feed(buf[:n], func(p *halwire.Packet) {
			if herr == nil {
				herr = r.handle(p)
			}
		}, func(derr error) {
			r.cfg.stats.Update(nil, derr, nil)
			r.logger.Debug("decode error", "error", derr)
		})
		if herr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return herr
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
	}
}

func (r *Responder) send(p *halwire.Packet) error {
	r.logger.Trace("sending", "type", halwire.FormatMessageType(p.Type()))
	return r.enc.Encode(p)
}

func (r *Responder) announce() error {
	r.mu.Lock()
	boots := r.boots
	r.mu.Unlock()
	flags := r.hw.ReadFlags()
	r.logger.Info("boot", "count", boots, "flags", flags, "cause", lowpower.Classify(flags))
	return r.send(halwire.NewBootAnnounce(halwire.AddressHost, uint16(flags), boots))
}

func (r *Responder) handle(p *halwire.Packet) error {
	verrs := halwire.ValidatePacket(p)
	r.cfg.stats.Update(p, nil, verrs)

	if !halwire.IsRequest(p.Type()) {
		r.logger.Debug("ignoring non-request", "type", halwire.FormatMessageType(p.Type()))
		return nil
	}
	if !p.IsBroadcast() && p.Address() != r.cfg.address {
		return nil
	}

	seq, _ := p.Seq()
	if len(verrs) > 0 {
		r.logger.Warn("rejecting request", "type", halwire.FormatMessageType(p.Type()), "error", verrs[0].Message)
		return r.send(halwire.NewErrorRejected(halwire.AddressHost, seq, halwire.RejectInvalidPayload))
	}

	var reply *halwire.Packet
	outcome := lowpower.RunCycle(func() {
		reply = r.apply(p, seq)
	})
	if outcome == lowpower.OutcomeEnded {
		r.mu.Lock()
		r.boots++
		r.start = time.Now()
		r.mu.Unlock()
		return r.announce()
	}
	return r.send(reply)
}

// apply runs one primitive and builds its reply.
func (r *Responder) apply(p *halwire.Packet, seq uint64) *halwire.Packet {
	m := p.PayloadMap()
	ack := halwire.NewAck(halwire.AddressHost, seq)

	switch p.Type() {
	case halwire.MsgInitRTC:
		r.hw.InitRTC()
	case halwire.MsgCriticalEnter:
		r.hw.EnterCritical()
	case halwire.MsgCriticalExit:
		r.hw.ExitCritical()
	case halwire.MsgQuiescePort:
		port, _ := halwire.GetMapUint(m, 0)
		keep, _ := halwire.GetMapUint(m, 1)
		r.hw.QuiescePort(lowpower.Port(port), uint16(keep))
	case halwire.MsgRegulator:
		lowPower, _ := halwire.GetMapBool(m, 0)
		fastWake, _ := halwire.GetMapBool(m, 1)
		r.hw.ConfigureRegulator(lowPower, fastWake)
	case halwire.MsgWakeClock:
		lowPower, _ := halwire.GetMapBool(m, 0)
		r.hw.SelectWakeClock(lowPower)
	case halwire.MsgReadFlags:
		return halwire.NewFlags(halwire.AddressHost, seq, uint16(r.hw.ReadFlags()))
	case halwire.MsgClearFlags:
		mask, _ := halwire.GetMapUint(m, 0)
		r.hw.ClearFlags(lowpower.Flags(mask))
	case halwire.MsgArmTimer:
		counter, _ := halwire.GetMapUint(m, 0)
		divisor, _ := halwire.GetMapUint(m, 1)
		if err := r.hw.ArmWakeupTimer(uint16(counter), lowpower.Divisor(divisor)); err != nil {
			r.logger.Warn("wakeup timer rejected", "error", err)
			return halwire.NewErrorRejected(halwire.AddressHost, seq, halwire.RejectArmFailed)
		}
	case halwire.MsgWakePin:
		enabled, _ := halwire.GetMapBool(m, 0)
		r.hw.SetWakeupPin(enabled)
	case halwire.MsgTickSuspend:
		r.hw.SuspendTick()
	case halwire.MsgTickResume:
		r.hw.ResumeTick()
	case halwire.MsgEnterStandby:
		r.hw.EnterStandby()
		return halwire.NewStandbyReturned(halwire.AddressHost, seq)
	case halwire.MsgEnterStop:
		regulatorOn, _ := halwire.GetMapBool(m, 0)
		r.hw.EnterStop(regulatorOn)
	case halwire.MsgClockInit:
		r.hw.InitSystemClock()
	case halwire.MsgPinOutput:
		port, _ := halwire.GetMapUint(m, 0)
		pin, _ := halwire.GetMapUint(m, 1)
		level, _ := halwire.GetMapBool(m, 2)
		r.hw.DriveOutput(lowpower.Pin{Port: lowpower.Port(port), Num: uint8(pin)}, level)
	case halwire.MsgDelay:
		ms, _ := halwire.GetMapUint(m, 0)
		r.hw.Delay(time.Duration(ms) * time.Millisecond)
	case halwire.MsgSystemReset:
		r.hw.SystemReset()
	case halwire.MsgPingRequest:
		r.mu.Lock()
		uptime := time.Since(r.start)
		r.mu.Unlock()
		return halwire.NewPingResponse(halwire.AddressHost, seq, uint64(uptime/time.Millisecond))
	default:
		r.logger.Warn("unknown request", "type", fmt.Sprintf("0x%02X", p.Type()))
		return halwire.NewErrorInvalidCmd(halwire.AddressHost, seq, p.Type())
	}
	return ack
}
