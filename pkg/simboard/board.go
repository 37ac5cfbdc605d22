// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simboard provides a simulated target implementing
// lowpower.Hardware. It records every primitive call, latches wakeup and
// reset flags the way the silicon does, and ends execution where a real
// device would restart.
package simboard

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/somnus/pkg/lowpower"
	"github.com/hashicorp/go-hclog"
)

// ErrArmRejected is the default error injected by FailArm.
var ErrArmRejected = errors.New("wakeup timer configuration rejected")

// Source is what ends the next simulated sleep.
type Source int

// Wake sources
const (
	WakeTimer Source = iota
	WakePin
)

func (s Source) String() string {
	if s == WakePin {
		return "pin"
	}
	return "timer"
}

// ParseSource parses "timer" or "pin".
func ParseSource(s string) (Source, error) {
	switch s {
	case "timer":
		return WakeTimer, nil
	case "pin":
		return WakePin, nil
	}
	return WakeTimer, fmt.Errorf("unknown wake source %q (use timer or pin)", s)
}

// Call is one recorded primitive invocation.
type Call struct {
	Name string
	Args []interface{}
}

func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(parts, ", "))
}

// Primitive call names
const (
	CallInitRTC       = "InitRTC"
	CallArmTimer      = "ArmWakeupTimer"
	CallQuiescePort   = "QuiescePort"
	CallSetWakeupPin  = "SetWakeupPin"
	CallDriveOutput   = "DriveOutput"
	CallRegulator     = "ConfigureRegulator"
	CallWakeClock     = "SelectWakeClock"
	CallReadFlags     = "ReadFlags"
	CallClearFlags    = "ClearFlags"
	CallEnterStandby  = "EnterStandby"
	CallEnterStop     = "EnterStop"
	CallInitClock     = "InitSystemClock"
	CallDelay         = "Delay"
	CallEnterCritical = "EnterCritical"
	CallExitCritical  = "ExitCritical"
	CallSuspendTick   = "SuspendTick"
	CallResumeTick    = "ResumeTick"
	CallSystemReset   = "SystemReset"
)

// Board is a simulated target. It is safe for concurrent use.
type Board struct {
	logger hclog.Logger

	mu            sync.Mutex
	calls         []Call
	flags         lowpower.Flags
	rtcReady      bool
	criticalDepth int
	tickRunning   bool
	wakePin       bool
	armed         *lowpower.WakeupTimer
	quiesced      map[lowpower.Port]uint16
	outputs       map[lowpower.Pin]bool
	wakeBy        Source
	armErr        error
	anomalous     bool
	boots         int
	resets        int
	slept         time.Duration
}

// Option configures a Board.
type Option func(*Board)

// WithLogger sets the board's logger.
func WithLogger(l hclog.Logger) Option {
	return func(b *Board) { b.logger = l }
}

// New creates a board in its cold-boot state: power-on and pin reset flags
// latched, tick running.
func New(opts ...Option) *Board {
	b := &Board{
		logger:   hclog.NewNullLogger(),
		flags:    lowpower.FlagPowerOnReset | lowpower.FlagPinReset,
		quiesced: make(map[lowpower.Port]uint16),
		outputs:  make(map[lowpower.Pin]bool),
		boots:    1,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.tickRunning = true
	return b
}

func (b *Board) record(name string, args ...interface{}) {
	b.calls = append(b.calls, Call{Name: name, Args: args})
	b.logger.Trace("primitive", "call", Call{Name: name, Args: args})
}

// WakeBy selects what ends the next sleep. A pin wake only happens if the
// wakeup pin was enabled for that cycle; otherwise the timer fires.
func (b *Board) WakeBy(s Source) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wakeBy = s
}

// FailArm makes the next ArmWakeupTimer call fail with err (ErrArmRejected
// if nil).
func (b *Board) FailArm(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		err = ErrArmRejected
	}
	b.armErr = err
}

// AnomalousStandby makes the next EnterStandby return instead of restarting.
func (b *Board) AnomalousStandby() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.anomalous = true
}

// SetFlags latches flags as if a hardware event occurred.
func (b *Board) SetFlags(f lowpower.Flags) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flags |= f
}

// Flags returns the latched flags without recording a call.
func (b *Board) Flags() lowpower.Flags {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flags
}

// Calls returns a copy of the recorded calls.
func (b *Board) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallNames returns the recorded call names in order.
func (b *Board) CallNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.calls))
	for i, c := range b.calls {
		names[i] = c.Name
	}
	return names
}

// Count returns how many times the named primitive was called.
func (b *Board) Count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (b *Board) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

// Snapshot is a read-only view of the board state.
type Snapshot struct {
	Flags         lowpower.Flags
	RTCReady      bool
	CriticalDepth int
	TickRunning   bool
	WakePin       bool
	Armed         *lowpower.WakeupTimer
	Quiesced      map[lowpower.Port]uint16
	Outputs       map[lowpower.Pin]bool
	Boots         int
	Resets        int
	Slept         time.Duration
}

// Snapshot returns the current board state.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		Flags:         b.flags,
		RTCReady:      b.rtcReady,
		CriticalDepth: b.criticalDepth,
		TickRunning:   b.tickRunning,
		WakePin:       b.wakePin,
		Quiesced:      make(map[lowpower.Port]uint16, len(b.quiesced)),
		Outputs:       make(map[lowpower.Pin]bool, len(b.outputs)),
		Boots:         b.boots,
		Resets:        b.resets,
		Slept:         b.slept,
	}
	if b.armed != nil {
		t := *b.armed
		s.Armed = &t
	}
	for k, v := range b.quiesced {
		s.Quiesced[k] = v
	}
	for k, v := range b.outputs {
		s.Outputs[k] = v
	}
	return s
}

// InitRTC implements lowpower.RTC.
func (b *Board) InitRTC() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallInitRTC)
	b.rtcReady = true
}

// ArmWakeupTimer implements lowpower.RTC.
func (b *Board) ArmWakeupTimer(counter uint16, divisor lowpower.Divisor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallArmTimer, counter, divisor)

	if err := b.armErr; err != nil {
		b.armErr = nil
		b.armed = nil
		return err
	}
	if !b.rtcReady {
		return fmt.Errorf("RTC not initialized")
	}
	if divisor != lowpower.Divisor16Bit && divisor != lowpower.Divisor17Bit {
		return fmt.Errorf("invalid divisor %d", divisor)
	}
	t := lowpower.WakeupTimer{Divisor: divisor, Counter: counter}
	t.Seconds = uint32(t.Duration() / time.Second)
	b.armed = &t
	return nil
}

// QuiescePort implements lowpower.GPIO.
func (b *Board) QuiescePort(port lowpower.Port, keep uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallQuiescePort, port, fmt.Sprintf("0x%04X", keep))
	b.quiesced[port] = ^keep
	for pin := range b.outputs {
		if pin.Port == port && keep&pin.Mask() == 0 {
			delete(b.outputs, pin)
		}
	}
}

// SetWakeupPin implements lowpower.GPIO.
func (b *Board) SetWakeupPin(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallSetWakeupPin, enabled)
	b.wakePin = enabled
}

// DriveOutput implements lowpower.GPIO.
func (b *Board) DriveOutput(pin lowpower.Pin, level bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallDriveOutput, pin, level)
	b.outputs[pin] = level
	if m, ok := b.quiesced[pin.Port]; ok {
		b.quiesced[pin.Port] = m &^ pin.Mask()
	}
}

// ConfigureRegulator implements lowpower.Power.
func (b *Board) ConfigureRegulator(lowPower, fastWake bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallRegulator, lowPower, fastWake)
}

// SelectWakeClock implements lowpower.Power.
func (b *Board) SelectWakeClock(lowPower bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallWakeClock, lowPower)
}

// ReadFlags implements lowpower.Power.
func (b *Board) ReadFlags() lowpower.Flags {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallReadFlags)
	return b.flags
}

// ClearFlags implements lowpower.Power.
func (b *Board) ClearFlags(f lowpower.Flags) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallClearFlags, f)
	b.flags &^= f
}

// wake latches the flag for whatever ends the current sleep and disarms the
// timer. Called with mu held.
func (b *Board) wake() {
	if b.wakeBy == WakePin && b.wakePin {
		b.flags |= lowpower.FlagWakeupPin
		b.logger.Debug("woken by external pin")
	} else {
		b.flags |= lowpower.FlagWakeupTimer
		if b.armed != nil {
			b.slept += b.armed.Duration()
		}
		b.logger.Debug("woken by wakeup timer", "timer", b.armed)
	}
	b.armed = nil
}

// restart drops volatile state the way a reboot does. Called with mu held.
func (b *Board) restart() {
	b.boots++
	b.rtcReady = false
	b.criticalDepth = 0
	b.tickRunning = true
	b.wakePin = false
	b.armed = nil
	b.quiesced = make(map[lowpower.Port]uint16)
	b.outputs = make(map[lowpower.Pin]bool)
}

// EnterStandby implements lowpower.Power. Unless AnomalousStandby was
// requested it ends execution like a real restart.
func (b *Board) EnterStandby() {
	b.mu.Lock()
	b.record(CallEnterStandby)
	if b.anomalous {
		b.anomalous = false
		b.mu.Unlock()
		b.logger.Warn("standby returned without restart")
		return
	}
	if b.armed == nil && !b.wakePin {
		b.logger.Warn("standby entered with no wake source armed")
	}
	b.wake()
	b.flags |= lowpower.FlagStandby
	b.restart()
	b.mu.Unlock()

	b.logger.Debug("restarted from standby")
	lowpower.EndExecution()
}

// EnterStop implements lowpower.Power.
func (b *Board) EnterStop(regulatorOn bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallEnterStop, regulatorOn)
	b.wake()
}

// InitSystemClock implements lowpower.Power.
func (b *Board) InitSystemClock() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallInitClock)
}

// Delay implements lowpower.Power. Simulated time does not pass.
func (b *Board) Delay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallDelay, d)
}

// EnterCritical implements lowpower.CriticalSection.
func (b *Board) EnterCritical() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallEnterCritical)
	b.criticalDepth++
}

// ExitCritical implements lowpower.CriticalSection.
func (b *Board) ExitCritical() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallExitCritical)
	if b.criticalDepth == 0 {
		b.logger.Warn("critical section exit without matching enter")
		return
	}
	b.criticalDepth--
}

// SuspendTick implements lowpower.Ticker.
func (b *Board) SuspendTick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallSuspendTick)
	b.tickRunning = false
}

// ResumeTick implements lowpower.Ticker.
func (b *Board) ResumeTick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallResumeTick)
	b.tickRunning = true
}

// SystemReset implements lowpower.Resetter. It ends execution.
func (b *Board) SystemReset() {
	b.mu.Lock()
	b.record(CallSystemReset)
	b.resets++
	b.flags |= lowpower.FlagSoftwareReset
	b.restart()
	b.mu.Unlock()

	b.logger.Debug("software reset")
	lowpower.EndExecution()
}
