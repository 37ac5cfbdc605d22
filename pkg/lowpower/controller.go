// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lowpower

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// State is the controller's position in the sleep sequence.
type State int

// Controller states
const (
	StateIdle State = iota
	StateQuiescing
	StateFlagsCleared
	StateTimerArmed
	StateSleeping
	StateWoken
	StateForcedReset
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateQuiescing:
		return "QUIESCING"
	case StateFlagsCleared:
		return "FLAGS_CLEARED"
	case StateTimerArmed:
		return "TIMER_ARMED"
	case StateSleeping:
		return "SLEEPING"
	case StateWoken:
		return "WOKEN"
	case StateForcedReset:
		return "FORCED_RESET"
	default:
		return "UNKNOWN"
	}
}

// DefaultSettleDelay is how long Stop waits after restoring the oscillator
// before handing control back.
const DefaultSettleDelay = 10 * time.Millisecond

// Controller sequences sleep entry and wake classification over a Hardware.
// It is the only owner of the RTC and the status flags.
type Controller struct {
	hw       Hardware
	logger   hclog.Logger
	standby  Profile
	stop     Profile
	osc      Pin
	settle   time.Duration
	observer func(State)

	// initMu serializes Init so rtcReady is only seen after InitRTC returns
	initMu sync.Mutex

	mu       sync.Mutex
	state    State
	rtcReady bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l hclog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithStandbyProfile replaces the Standby quiescing profile.
func WithStandbyProfile(p Profile) Option {
	return func(c *Controller) { c.standby = p }
}

// WithStopProfile replaces the Stop quiescing profile. The oscillator pin is
// always reserved on top of it.
func WithStopProfile(p Profile) Option {
	return func(c *Controller) { c.stop = p }
}

// WithOscillatorPin sets the oscillator-enable pin restored after Stop.
func WithOscillatorPin(pin Pin) Option {
	return func(c *Controller) { c.osc = pin }
}

// WithSettleDelay sets the post-Stop settling delay.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) { c.settle = d }
}

// WithObserver registers a callback for every state transition.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) { c.observer = fn }
}

// New creates a controller over hw.
func New(hw Hardware, opts ...Option) *Controller {
	c := &Controller{
		hw:      hw,
		logger:  hclog.NewNullLogger(),
		standby: DefaultStandbyProfile(),
		osc:     DefaultOscillatorPin,
		settle:  DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.stop.Ports == nil {
		c.stop = DefaultStopProfile(c.osc)
	} else {
		c.stop = c.stop.Reserve(c.osc)
	}
	return c
}

// State returns the current sequence state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	c.logger.Trace("state transition", "from", prev, "to", s)
	if c.observer != nil {
		c.observer(s)
	}
}

// criticalScope is one acquisition of the critical section. release is
// idempotent so every exit path can call it.
type criticalScope struct {
	cs   CriticalSection
	held bool
}

func (c *Controller) enterCritical() *criticalScope {
	c.hw.EnterCritical()
	return &criticalScope{cs: c.hw, held: true}
}

func (s *criticalScope) release() {
	if s == nil || !s.held {
		return
	}
	s.held = false
	s.cs.ExitCritical()
}

// Init performs the one-time RTC initialization with interrupts excluded.
// Later calls are no-ops.
func (c *Controller) Init() {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.isReady() {
		c.logger.Debug("RTC already initialized")
		return
	}

	scope := c.enterCritical()
	c.hw.InitRTC()
	scope.release()

	c.mu.Lock()
	c.rtcReady = true
	c.mu.Unlock()
	c.logger.Debug("RTC initialized")
}

func (c *Controller) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rtcReady
}

func (c *Controller) ensureInit() {
	if !c.isReady() {
		c.logger.Warn("sleep requested before Init, initializing RTC now")
		c.Init()
	}
}

// ClassifyWakeup reads the hardware flags and returns the wakeup cause. It
// does not modify any flag.
func (c *Controller) ClassifyWakeup() WakeupCause {
	_, cause := c.ReadWakeup()
	return cause
}

// ReadWakeup reads the hardware flags once and returns them together with
// the cause they classify as. Like ClassifyWakeup it modifies no flag.
func (c *Controller) ReadWakeup() (Flags, WakeupCause) {
	flags := c.hw.ReadFlags()
	cause := Classify(flags)
	c.logger.Debug("wakeup classified", "flags", flags, "cause", cause)
	return flags, cause
}

// ClearWakeupFlags deasserts every wakeup and reset flag. It belongs
// immediately before sleep entry; calling it after wake destroys the
// evidence ClassifyWakeup relies on.
func (c *Controller) ClearWakeupFlags() {
	c.hw.ClearFlags(FlagsAll)
}

// ArmWakeupTimer programs the RTC wakeup timer. If the hardware rejects the
// configuration the device is reset: a device that cannot wake must not
// sleep.
func (c *Controller) ArmWakeupTimer(seconds uint32) {
	c.armWakeupTimer(seconds, nil)
}

func (c *Controller) armWakeupTimer(seconds uint32, scope *criticalScope) bool {
	t := NewWakeupTimer(seconds)
	if t.Saturated {
		c.logger.Warn("wakeup duration saturated", "requested", seconds, "programmed", t.Seconds)
	}
	if err := c.hw.ArmWakeupTimer(t.Counter, t.Divisor); err != nil {
		c.logger.Error("failed to arm wakeup timer", "timer", t, "error", err)
		c.forceReset(scope)
		return false
	}
	c.logger.Debug("wakeup timer armed", "timer", t)
	return true
}

func (c *Controller) forceReset(scope *criticalScope) {
	scope.release()
	c.setState(StateForcedReset)
	c.hw.SystemReset()
}

func (c *Controller) quiesce(p Profile) {
	for _, port := range p.Ports {
		c.hw.QuiescePort(port, p.KeepMask(port))
	}
}

// EnterStandby puts the device into Standby for seconds. Wake restarts the
// device from boot, so under correct operation this call never returns. If
// the hardware comes back from Standby without restarting, the device is
// reset.
func (c *Controller) EnterStandby(seconds uint32, enablePin bool) {
	c.ensureInit()
	c.logger.Debug("entering standby", "seconds", seconds, "wake_pin", enablePin)

	c.setState(StateQuiescing)
	c.quiesce(c.standby)
	c.hw.ConfigureRegulator(true, true)
	c.hw.SelectWakeClock(true)

	scope := c.enterCritical()
	c.ClearWakeupFlags()
	c.setState(StateFlagsCleared)

	if !c.armWakeupTimer(seconds, scope) {
		return
	}
	c.setState(StateTimerArmed)
	c.hw.SetWakeupPin(enablePin)

	c.setState(StateSleeping)
	c.hw.EnterStandby()

	c.logger.Error("returned from standby without restart")
	c.forceReset(scope)
}

// EnterStop puts the device into Stop for seconds and returns after wake
// with the system clock, tick and oscillator restored.
func (c *Controller) EnterStop(seconds uint32, enablePin bool) {
	c.ensureInit()
	c.logger.Debug("entering stop", "seconds", seconds, "wake_pin", enablePin)

	c.setState(StateQuiescing)
	c.quiesce(c.stop)
	c.hw.SuspendTick()

	scope := c.enterCritical()
	c.ClearWakeupFlags()
	c.setState(StateFlagsCleared)

	if !c.armWakeupTimer(seconds, scope) {
		return
	}
	c.setState(StateTimerArmed)
	c.hw.SetWakeupPin(enablePin)

	c.setState(StateSleeping)
	c.hw.EnterStop(true)

	c.hw.InitSystemClock()
	scope.release()
	c.hw.ResumeTick()
	c.hw.DriveOutput(c.osc, true)
	c.hw.Delay(c.settle)

	c.setState(StateWoken)
	c.logger.Debug("woke from stop")
	c.setState(StateIdle)
}
