// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lowpower

import "runtime"

// Outcome reports how a sleep cycle left the caller.
type Outcome int

// Cycle outcomes
const (
	// OutcomeReturned means the call returned normally (Stop wake).
	OutcomeReturned Outcome = iota
	// OutcomeEnded means execution ended inside the call: the device
	// restarted from Standby or was reset.
	OutcomeEnded
)

func (o Outcome) String() string {
	if o == OutcomeReturned {
		return "returned"
	}
	return "ended"
}

// EndExecution is how a Hardware implementation models a primitive that
// never returns on a real target (Standby wake, SystemReset). It must only
// be reached from inside RunCycle.
func EndExecution() {
	runtime.Goexit()
}

// RunCycle runs fn on its own goroutine and reports whether it returned or
// whether execution ended inside it.
func RunCycle(fn func()) Outcome {
	done := make(chan bool, 1)
	go func() {
		returned := false
		defer func() { done <- returned }()
		fn()
		returned = true
	}()
	if <-done {
		return OutcomeReturned
	}
	return OutcomeEnded
}
