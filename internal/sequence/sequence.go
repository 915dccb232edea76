// Package sequence turns named panel gestures into ordered relay pulses.
//
// A Sequence is a list of phases. Each phase is a run of primitive actions.
// Guard brackets opened in a phase are closed in that phase and are never
// interrupted. Debug checkpoints apply only between phases; cancellation
// also applies between the unguarded actions of a phase.
package sequence

import (
	"fmt"
	"time"

	"github.com/sweeney/lightpanel/internal/relay"
)

// Op is a primitive action kind.
type Op int

const (
	// OpPulse pulses a single relay.
	OpPulse Op = iota
	// OpPress energizes several relays with one write and releases them with one write.
	OpPress
	OpGuardOn
	OpGuardOff
	// OpWait sleeps, optionally logging Text first.
	OpWait
	// OpNote only logs Text.
	OpNote
)

// Action is one primitive step.
type Action struct {
	Op     Op
	Relays []relay.Index

	// Hold is the pulse length. Zero means the engine's configured hold.
	Hold time.Duration
	Wait time.Duration
	Text string
}

// Phase is a titled group of actions. Title prefixes its log lines.
type Phase struct {
	Title   string
	Actions []Action
}

// Sequence is a named, ordered list of phases.
type Sequence struct {
	Name   string
	Phases []Phase

	// Stepwise sequences log numbered steps, stop at the debug checkpoint
	// after every phase and settle between phases.
	Stepwise bool
}

// Fixed gesture timings.
const (
	GuardLead      = 300 * time.Millisecond
	PulseGap       = 100 * time.Millisecond
	TestGap        = 200 * time.Millisecond
	ZoneLead       = 500 * time.Millisecond
	ZoneHold       = 500 * time.Millisecond
	ZoneGap        = 300 * time.Millisecond
	ZoneDigitPause = 1 * time.Second
	ZoneFinish     = 2 * time.Second
)

// Pulse returns a single-relay pulse using the configured hold.
func Pulse(r relay.Index) Action {
	return Action{Op: OpPulse, Relays: []relay.Index{r}}
}

// PulseFor returns a single-relay pulse with a fixed hold.
func PulseFor(r relay.Index, hold time.Duration) Action {
	return Action{Op: OpPulse, Relays: []relay.Index{r}, Hold: hold}
}

// Wait returns a silent delay.
func Wait(d time.Duration) Action {
	return Action{Op: OpWait, Wait: d}
}

// WaitNote returns a delay announced in the log.
func WaitNote(d time.Duration, text string) Action {
	return Action{Op: OpWait, Wait: d, Text: text}
}

// Note returns a log-only action.
func Note(format string, args ...any) Action {
	return Action{Op: OpNote, Text: fmt.Sprintf(format, args...)}
}

// GuardedMulti brackets the digit pulses with the guard relays:
// guard on, lead-in, then each digit followed by a short gap, guard off.
func GuardedMulti(title string, digits ...relay.Index) Phase {
	actions := []Action{{Op: OpGuardOn}, Wait(GuardLead)}
	for _, d := range digits {
		actions = append(actions, Pulse(d), Wait(PulseGap))
	}
	actions = append(actions, Action{Op: OpGuardOff})
	return Phase{Title: title, Actions: actions}
}

// GuardedSingle is GuardedMulti with one digit.
func GuardedSingle(title string, digit relay.Index) Phase {
	return GuardedMulti(title, digit)
}

// DoublePress presses two relays together for the configured hold.
func DoublePress(title string, a, b relay.Index) Phase {
	return Phase{Title: title, Actions: []Action{{Op: OpPress, Relays: []relay.Index{a, b}}}}
}

// DigitEntry zero-pads value to width digits and enters each digit as a
// guarded single pulse, one phase per digit.
func DigitEntry(label string, value, width int) ([]Phase, error) {
	if width <= 0 {
		width = 2
	}
	limit := 1
	for i := 0; i < width; i++ {
		limit *= 10
	}
	if value < 0 || value >= limit {
		return nil, fmt.Errorf("%s %d does not fit in %d digits", label, value, width)
	}

	digits := fmt.Sprintf("%0*d", width, value)
	phases := make([]Phase, 0, width)
	for i, c := range digits {
		title := fmt.Sprintf("%s %s digit %d", label, digits, i+1)
		phases = append(phases, GuardedSingle(title, relay.Index(c-'0')))
	}
	return phases, nil
}

// ZoneProgram selects zone with the left gesture (guarded 8,7 then relay 1
// twice) and the right gesture (guarded 8,7 then relay 2 twice), each
// followed by the zone digit. Only the left gesture pauses between its
// repeated pulses; the right one waits after the guards drop instead.
func ZoneProgram(zone relay.Index) []Phase {
	return []Phase{
		zoneSide("Set Zone Left", 1, []Action{WaitNote(ZoneGap, "wait 0.3 secs")}, []Action{
			{Op: OpGuardOff},
			Pulse(zone),
			WaitNote(ZoneDigitPause, "wait 1 sec"),
		}),
		zoneSide("Set Zone Right", 2, nil, []Action{
			{Op: OpGuardOff},
			WaitNote(ZoneGap, "wait 0.3 secs"),
			Pulse(zone),
			WaitNote(ZoneFinish, "wait 2 sec"),
			Note("Zone programming complete for zone %d", int(zone)),
			WaitNote(ZoneFinish, "wait 2 sec"),
		}),
	}
}

func zoneSide(title string, side relay.Index, between, tail []Action) Phase {
	actions := []Action{
		{Op: OpGuardOn},
		Wait(ZoneLead),
		PulseFor(8, ZoneHold),
		Wait(ZoneGap),
		PulseFor(7, ZoneHold),
		Wait(ZoneGap),
		PulseFor(side, ZoneHold),
	}
	actions = append(actions, between...)
	actions = append(actions, PulseFor(side, ZoneHold), Wait(ZoneGap))
	return Phase{Title: title, Actions: append(actions, tail...)}
}
