// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type event struct {
	line  string
	level bool
	at    time.Time
}

type fakeLine struct {
	name   string
	events *[]event
}

func (l fakeLine) High() { *l.events = append(*l.events, event{l.name, true, time.Now()}) }
func (l fakeLine) Low()  { *l.events = append(*l.events, event{l.name, false, time.Now()}) }

func newFakePulser() (*Pulser, *[]event) {
	events := &[]event{}
	p := NewPulser(fakeLine{"wake", events}, fakeLine{"reset", events})
	*events = (*events)[:0]
	return p, events
}

func levels(events []event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.line + "=low"
		if e.level {
			out[i] = e.line + "=high"
		}
	}
	return out
}

func TestNewPulser_IdleLevels(t *testing.T) {
	events := &[]event{}
	NewPulser(fakeLine{"wake", events}, fakeLine{"reset", events})

	want := []string{"wake=low", "reset=high"}
	if got := levels(*events); !reflect.DeepEqual(got, want) {
		t.Errorf("idle levels = %v, want %v", got, want)
	}
}

func TestPulse(t *testing.T) {
	tests := []struct {
		name  string
		pulse func(*Pulser, time.Duration) error
		want  []string
	}{
		{"wake", (*Pulser).PulseWake, []string{"wake=high", "wake=low"}},
		{"reset", (*Pulser).PulseReset, []string{"reset=low", "reset=high"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, events := newFakePulser()
			width := 5 * time.Millisecond

			if err := tt.pulse(p, width); err != nil {
				t.Fatalf("pulse failed: %v", err)
			}
			if got := levels(*events); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("sequence = %v, want %v", got, tt.want)
			}
			if held := (*events)[1].at.Sub((*events)[0].at); held < width {
				t.Errorf("line held for %s, want at least %s", held, width)
			}
		})
	}
}

func TestPulse_InvalidWidth(t *testing.T) {
	p, events := newFakePulser()

	if err := p.PulseWake(0); !errors.Is(err, ErrInvalidWidth) {
		t.Errorf("PulseWake(0) = %v, want ErrInvalidWidth", err)
	}
	if err := p.PulseReset(-time.Millisecond); !errors.Is(err, ErrInvalidWidth) {
		t.Errorf("PulseReset(-1ms) = %v, want ErrInvalidWidth", err)
	}
	if len(*events) != 0 {
		t.Errorf("lines toggled on invalid width: %v", levels(*events))
	}
}

func TestOpenGPIO_SharedLine(t *testing.T) {
	if _, _, err := OpenGPIO(17, 17); err == nil {
		t.Error("expected error for shared GPIO line")
	}
}
