// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lowpower

import (
	"testing"
	"time"
)

// ============================================================
// Wakeup Timer Mapping Tests
// ============================================================

func TestNewWakeupTimer_StandardRange(t *testing.T) {
	for d := uint32(0); d <= 0xFFFF; d++ {
		wt := NewWakeupTimer(d)
		if wt.Divisor != Divisor16Bit {
			t.Fatalf("d=%d: divisor = %s, want %s", d, wt.Divisor, Divisor16Bit)
		}
		if uint32(wt.Counter) != d {
			t.Fatalf("d=%d: counter = %d, want %d", d, wt.Counter, d)
		}
		if wt.Saturated {
			t.Fatalf("d=%d: unexpectedly saturated", d)
		}
	}
}

func TestNewWakeupTimer_ExtendedRange(t *testing.T) {
	for d := uint32(65536); d <= 131071; d++ {
		wt := NewWakeupTimer(d)
		if wt.Divisor != Divisor17Bit {
			t.Fatalf("d=%d: divisor = %s, want %s", d, wt.Divisor, Divisor17Bit)
		}
		if uint32(wt.Counter) != d-65536 {
			t.Fatalf("d=%d: counter = %d, want %d", d, wt.Counter, d-65536)
		}
	}
}

func TestNewWakeupTimer_Saturates(t *testing.T) {
	tests := []struct {
		name    string
		seconds uint32
	}{
		{"just above max", MaxWakeupSeconds + 1},
		{"two hundred thousand", 200000},
		{"uint32 max", ^uint32(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wt := NewWakeupTimer(tt.seconds)
			if !wt.Saturated {
				t.Error("expected Saturated")
			}
			if wt.Divisor != Divisor17Bit || wt.Counter != 0xFFFF {
				t.Errorf("got %s counter=0x%04X, want %s counter=0xFFFF", wt.Divisor, wt.Counter, Divisor17Bit)
			}
			if wt.Seconds != MaxWakeupSeconds {
				t.Errorf("Seconds = %d, want %d", wt.Seconds, MaxWakeupSeconds)
			}
		})
	}
}

func TestWakeupTimer_DurationRoundTrip(t *testing.T) {
	for d := uint32(0); d <= MaxWakeupSeconds; d += 7 {
		wt := NewWakeupTimer(d)
		if got := wt.Duration(); got != time.Duration(d)*time.Second {
			t.Fatalf("d=%d: Duration() = %v", d, got)
		}
	}
	if got := NewWakeupTimer(MaxWakeupSeconds).Duration(); got != MaxWakeupSeconds*time.Second {
		t.Errorf("max Duration() = %v", got)
	}
}

// ============================================================
// Classification Tests
// ============================================================

func TestClassify_Priority(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
		want  WakeupCause
	}{
		{"none", 0, CauseUnknown},
		{"standby flag alone", FlagStandby, CauseUnknown},
		{"pin reset", FlagPinReset, CauseReset},
		{"power on", FlagPowerOnReset, CauseReset},
		{"reset beats timer", FlagPinReset | FlagWakeupTimer, CauseReset},
		{"reset beats everything", FlagsAll, CauseReset},
		{"timer", FlagWakeupTimer | FlagStandby, CauseTimerExpired},
		{"timer beats pin", FlagWakeupTimer | FlagWakeupPin, CauseTimerExpired},
		{"pin", FlagWakeupPin, CauseExternalPin},
		{"pin beats software reset", FlagWakeupPin | FlagSoftwareReset, CauseExternalPin},
		{"software reset", FlagSoftwareReset, CauseSoftwareReset},
		{"software beats low power", FlagSoftwareReset | FlagLowPowerReset, CauseSoftwareReset},
		{"low power reset", FlagLowPowerReset, CauseLowPowerReset},
		{"unknown bits only", Flags(0x8000), CauseUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.flags); got != tt.want {
				t.Errorf("Classify(%s) = %s, want %s", tt.flags, got, tt.want)
			}
		})
	}
}

func TestParseWakeupCause(t *testing.T) {
	for _, c := range AllCauses {
		got, err := ParseWakeupCause(c.String())
		if err != nil {
			t.Fatalf("ParseWakeupCause(%q): %v", c.String(), err)
		}
		if got != c {
			t.Errorf("ParseWakeupCause(%q) = %s", c.String(), got)
		}
	}
	if _, err := ParseWakeupCause("brownout"); err == nil {
		t.Error("expected error for unknown cause")
	}
}

func TestFlags_String(t *testing.T) {
	if s := Flags(0).String(); s != "none" {
		t.Errorf("Flags(0) = %q", s)
	}
	if s := (FlagWakeupTimer | FlagStandby).String(); s != "WAKEUP_TIMER|STANDBY" {
		t.Errorf("got %q", s)
	}
	if s := (FlagWakeupPin | Flags(0x8000)).String(); s != "WAKEUP_PIN|0x8000" {
		t.Errorf("got %q", s)
	}
}

// ============================================================
// Profile Tests
// ============================================================

func TestProfile_Reserve(t *testing.T) {
	base := DefaultStandbyProfile()
	osc := Pin{Port: PortH, Num: 1}
	p := base.Reserve(osc)

	if p.KeepMask(PortH) != 0x0002 {
		t.Errorf("KeepMask(H) = 0x%04X, want 0x0002", p.KeepMask(PortH))
	}
	if p.KeepMask(PortA) != 0 {
		t.Errorf("KeepMask(A) = 0x%04X, want 0", p.KeepMask(PortA))
	}
	if base.KeepMask(PortH) != 0 {
		t.Error("Reserve modified the original profile")
	}
	if len(p.Ports) != len(AllPorts) {
		t.Errorf("ports = %v, want all", p.Ports)
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode("standby"); !ok || m != ModeStandby {
		t.Error("standby")
	}
	if m, ok := ParseMode("stop"); !ok || m != ModeStop {
		t.Error("stop")
	}
	if _, ok := ParseMode("sleep"); ok {
		t.Error("sleep should not parse")
	}
}

func TestPin_String(t *testing.T) {
	if s := (Pin{Port: PortA, Num: 12}).String(); s != "PA12" {
		t.Errorf("got %q", s)
	}
}
