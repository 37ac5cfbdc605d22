// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/somnus/pkg/lowpower"
	"github.com/hashicorp/go-hclog"
)

// cycleSpec is one requested sleep.
type cycleSpec struct {
	mode     lowpower.Mode
	seconds  uint32
	wakePin  bool
	settle   time.Duration
	observer func(lowpower.State)
}

// cycleResult is what one sleep cycle did.
type cycleResult struct {
	spec    cycleSpec
	timer   lowpower.WakeupTimer
	outcome lowpower.Outcome
	final   lowpower.State
	cause   lowpower.WakeupCause
	elapsed time.Duration
}

func (r cycleResult) String() string {
	return fmt.Sprintf("%s %s: %s, final state %s, wake cause %s (%s)",
		r.spec.mode, r.timer, r.outcome, r.final, r.cause, r.elapsed.Round(time.Millisecond))
}

// cycleRunner keeps a controller across cycles and replaces it whenever the
// target restarts, since a restart wipes the controller's volatile state.
type cycleRunner struct {
	hw     lowpower.Hardware
	logger hclog.Logger
	ctrl   *lowpower.Controller
	spec   cycleSpec
}

func newCycleRunner(hw lowpower.Hardware, logger hclog.Logger) *cycleRunner {
	return &cycleRunner{hw: hw, logger: logger}
}

func (r *cycleRunner) controller(spec cycleSpec) *lowpower.Controller {
	if r.ctrl == nil || r.spec.settle != spec.settle {
		opts := []lowpower.Option{lowpower.WithLogger(r.logger.Named("lowpower"))}
		if spec.settle > 0 {
			opts = append(opts, lowpower.WithSettleDelay(spec.settle))
		}
		opts = append(opts, lowpower.WithObserver(func(s lowpower.State) {
			if r.spec.observer != nil {
				r.spec.observer(s)
			}
		}))
		r.ctrl = lowpower.New(r.hw, opts...)
		r.ctrl.Init()
	}
	r.spec = spec
	return r.ctrl
}

// run executes one cycle and classifies the wake that ended it.
func (r *cycleRunner) run(spec cycleSpec) cycleResult {
	ctrl := r.controller(spec)
	res := cycleResult{spec: spec, timer: lowpower.NewWakeupTimer(spec.seconds)}

	start := time.Now()
	res.outcome = lowpower.RunCycle(func() {
		switch spec.mode {
		case lowpower.ModeStop:
			ctrl.EnterStop(spec.seconds, spec.wakePin)
		default:
			ctrl.EnterStandby(spec.seconds, spec.wakePin)
		}
	})
	res.elapsed = time.Since(start)
	res.final = ctrl.State()

	if res.outcome == lowpower.OutcomeEnded {
		r.logger.Debug("target restarted", "mode", spec.mode, "state", res.final)
		r.ctrl = nil
		ctrl = r.controller(spec)
	}
	res.cause = ctrl.ClassifyWakeup()
	return res
}
