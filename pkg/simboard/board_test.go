// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simboard

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Thermoquad/somnus/pkg/lowpower"
)

// ============================================================
// Test Helpers
// ============================================================

// ended runs fn and reports whether execution ended inside it.
func ended(fn func()) bool {
	return lowpower.RunCycle(fn) == lowpower.OutcomeEnded
}

func armedBoard(t *testing.T, seconds uint32) *Board {
	t.Helper()
	b := New()
	b.InitRTC()
	wt := lowpower.NewWakeupTimer(seconds)
	if err := b.ArmWakeupTimer(wt.Counter, wt.Divisor); err != nil {
		t.Fatalf("ArmWakeupTimer failed: %v", err)
	}
	return b
}

// ============================================================
// Board Tests
// ============================================================

func TestNew_ColdBoot(t *testing.T) {
	snap := New().Snapshot()

	if want := lowpower.FlagPowerOnReset | lowpower.FlagPinReset; snap.Flags != want {
		t.Errorf("Flags = %s, want %s", snap.Flags, want)
	}
	if !snap.TickRunning {
		t.Error("tick should run after boot")
	}
	if snap.RTCReady {
		t.Error("RTC should need initialization after boot")
	}
	if snap.Boots != 1 {
		t.Errorf("Boots = %d, want 1", snap.Boots)
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		in      string
		want    Source
		wantErr bool
	}{
		{"timer", WakeTimer, false},
		{"pin", WakePin, false},
		{"button", WakeTimer, true},
	}

	for _, tt := range tests {
		got, err := ParseSource(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSource(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseSource(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestArmWakeupTimer(t *testing.T) {
	tests := []struct {
		name    string
		init    bool
		divisor lowpower.Divisor
		failArm error
		wantErr error
	}{
		{"armed", true, lowpower.Divisor16Bit, nil, nil},
		{"extended range", true, lowpower.Divisor17Bit, nil, nil},
		{"rtc not initialized", false, lowpower.Divisor16Bit, nil, nil},
		{"invalid divisor", true, lowpower.Divisor(7), nil, nil},
		{"injected failure", true, lowpower.Divisor16Bit, ErrArmRejected, ErrArmRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			if tt.init {
				b.InitRTC()
			}
			if tt.failArm != nil {
				b.FailArm(tt.failArm)
			}

			err := b.ArmWakeupTimer(10, tt.divisor)
			shouldFail := !tt.init || tt.divisor > lowpower.Divisor17Bit || tt.failArm != nil
			if shouldFail != (err != nil) {
				t.Fatalf("ArmWakeupTimer error = %v, want failure %v", err, shouldFail)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if armed := b.Snapshot().Armed; (armed != nil) == shouldFail {
				t.Errorf("Armed = %v after error %v", armed, err)
			}
		})
	}
}

func TestFailArm_OneShot(t *testing.T) {
	b := New()
	b.InitRTC()
	b.FailArm(nil)

	if err := b.ArmWakeupTimer(5, lowpower.Divisor16Bit); !errors.Is(err, ErrArmRejected) {
		t.Fatalf("first arm = %v, want ErrArmRejected", err)
	}
	if err := b.ArmWakeupTimer(5, lowpower.Divisor16Bit); err != nil {
		t.Errorf("second arm = %v, want success", err)
	}
}

func TestEnterStop_LatchesWakeSource(t *testing.T) {
	tests := []struct {
		name    string
		source  Source
		pinOn   bool
		want    lowpower.Flags
		asleep  time.Duration
	}{
		{"timer", WakeTimer, false, lowpower.FlagWakeupTimer, 30 * time.Second},
		{"pin", WakePin, true, lowpower.FlagWakeupPin, 0},
		{"pin disabled falls back to timer", WakePin, false, lowpower.FlagWakeupTimer, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := armedBoard(t, 30)
			b.ClearFlags(lowpower.FlagsAll)
			b.WakeBy(tt.source)
			b.SetWakeupPin(tt.pinOn)

			if ended(func() { b.EnterStop(true) }) {
				t.Fatal("Stop should return")
			}

			snap := b.Snapshot()
			if snap.Flags != tt.want {
				t.Errorf("Flags = %s, want %s", snap.Flags, tt.want)
			}
			if snap.Slept != tt.asleep {
				t.Errorf("Slept = %s, want %s", snap.Slept, tt.asleep)
			}
			if snap.Armed != nil {
				t.Error("timer should disarm on wake")
			}
		})
	}
}

func TestEnterStandby_Restarts(t *testing.T) {
	b := armedBoard(t, 70000)
	b.ClearFlags(lowpower.FlagsAll)
	b.DriveOutput(lowpower.DefaultOscillatorPin, true)

	if !ended(b.EnterStandby) {
		t.Fatal("Standby should end execution")
	}

	snap := b.Snapshot()
	if want := lowpower.FlagWakeupTimer | lowpower.FlagStandby; snap.Flags != want {
		t.Errorf("Flags = %s, want %s", snap.Flags, want)
	}
	if snap.Boots != 2 {
		t.Errorf("Boots = %d, want 2", snap.Boots)
	}
	if snap.RTCReady || len(snap.Outputs) != 0 {
		t.Error("restart should drop volatile state")
	}
	if snap.Slept != 70000*time.Second {
		t.Errorf("Slept = %s, want 70000s", snap.Slept)
	}
}

func TestEnterStandby_Anomalous(t *testing.T) {
	b := armedBoard(t, 5)
	b.AnomalousStandby()

	if ended(b.EnterStandby) {
		t.Fatal("anomalous Standby should return")
	}
	if b.Snapshot().Boots != 1 {
		t.Error("anomalous Standby should not count a boot")
	}

	// One shot: the next Standby restarts
	if !ended(b.EnterStandby) {
		t.Error("second Standby should end execution")
	}
}

func TestSystemReset(t *testing.T) {
	b := New()
	b.ClearFlags(lowpower.FlagsAll)
	b.EnterCritical()

	if !ended(b.SystemReset) {
		t.Fatal("SystemReset should end execution")
	}

	snap := b.Snapshot()
	if snap.Flags != lowpower.FlagSoftwareReset {
		t.Errorf("Flags = %s, want SOFTWARE_RESET", snap.Flags)
	}
	if snap.Resets != 1 || snap.Boots != 2 {
		t.Errorf("Resets=%d Boots=%d, want 1/2", snap.Resets, snap.Boots)
	}
	if snap.CriticalDepth != 0 {
		t.Errorf("CriticalDepth = %d, want 0 after reset", snap.CriticalDepth)
	}
}

func TestQuiescePort_KeepMask(t *testing.T) {
	b := New()
	osc := lowpower.DefaultOscillatorPin
	other := lowpower.Pin{Port: lowpower.PortH, Num: 0}
	b.DriveOutput(osc, true)
	b.DriveOutput(other, true)

	b.QuiescePort(lowpower.PortH, osc.Mask())

	snap := b.Snapshot()
	if _, ok := snap.Outputs[osc]; !ok {
		t.Error("kept pin should keep its output")
	}
	if _, ok := snap.Outputs[other]; ok {
		t.Error("quiesced pin should lose its output")
	}
	if got := snap.Quiesced[lowpower.PortH]; got&osc.Mask() != 0 {
		t.Errorf("Quiesced[H] = 0x%04X, should exclude the kept pin", got)
	}
}

func TestCriticalSection_Unbalanced(t *testing.T) {
	b := New()
	b.ExitCritical()
	if depth := b.Snapshot().CriticalDepth; depth != 0 {
		t.Errorf("CriticalDepth = %d, want 0", depth)
	}
}

func TestCallLog(t *testing.T) {
	b := New()
	b.InitRTC()
	b.SetWakeupPin(true)
	b.ClearFlags(lowpower.FlagWakeupPin)

	want := []string{CallInitRTC, CallSetWakeupPin, CallClearFlags}
	if got := b.CallNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("CallNames = %v, want %v", got, want)
	}
	if got := b.Calls()[1].String(); got != "SetWakeupPin(true)" {
		t.Errorf("Call.String = %q", got)
	}
	if n := b.Count(CallInitRTC); n != 1 {
		t.Errorf("Count(InitRTC) = %d, want 1", n)
	}

	b.ResetCalls()
	if len(b.Calls()) != 0 {
		t.Error("ResetCalls should clear the log")
	}
}
