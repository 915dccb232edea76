package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/lightpanel/internal/relay"
)

// Hold limits and defaults.
const (
	MinHold       = 100 * time.Millisecond
	MaxHold       = 10 * time.Second
	DefaultHold   = 500 * time.Millisecond
	DefaultSettle = 1 * time.Second
)

// ErrCancelled is returned when a sequence stops early at a phase boundary.
var ErrCancelled = errors.New("sequence: cancelled")

// ErrHoldRange is returned by SetHold for a value outside MinHold..MaxHold.
var ErrHoldRange = errors.New("sequence: hold out of range")

// Logger receives operator-facing progress lines.
type Logger interface {
	Append(line string)
}

// Timing holds the adjustable delays.
type Timing struct {
	// Hold is the configured pulse length for mode-select pulses.
	Hold time.Duration
	// Settle separates the phases of stepwise sequences.
	Settle time.Duration
}

// DefaultTiming returns the stock delays.
func DefaultTiming() Timing {
	return Timing{Hold: DefaultHold, Settle: DefaultSettle}
}

// Option configures an Engine.
type Option func(*Engine)

// WithCheckpoint installs the gate consulted after each stepwise phase.
func WithCheckpoint(c Checkpoint) Option {
	return func(e *Engine) { e.gate = c }
}

// WithSleep replaces time.Sleep for in-phase waits and settle delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithTiming sets the initial delays.
func WithTiming(t Timing) Option {
	return func(e *Engine) {
		e.hold.Store(int64(t.Hold))
		e.settle.Store(int64(t.Settle))
	}
}

// Engine executes sequences against a relay bank. It does not serialize
// callers; the panel runs one sequence at a time.
type Engine struct {
	bank  *relay.Bank
	log   Logger
	gate  Checkpoint
	sleep func(time.Duration)

	hold   atomic.Int64
	settle atomic.Int64
}

// NewEngine creates an engine with default timing and no checkpoint.
func NewEngine(bank *relay.Bank, log Logger, opts ...Option) *Engine {
	e := &Engine{bank: bank, log: log, gate: Passthrough{}}
	e.hold.Store(int64(DefaultHold))
	e.settle.Store(int64(DefaultSettle))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hold returns the configured pulse length.
func (e *Engine) Hold() time.Duration {
	return time.Duration(e.hold.Load())
}

// SetHold changes the configured pulse length for subsequent pulses.
func (e *Engine) SetHold(d time.Duration) error {
	if d < MinHold || d > MaxHold {
		return fmt.Errorf("%w: %v not in %v..%v", ErrHoldRange, d, MinHold, MaxHold)
	}
	e.hold.Store(int64(d))
	return nil
}

// Settle returns the delay between stepwise phases.
func (e *Engine) Settle() time.Duration {
	return time.Duration(e.settle.Load())
}

// SetSettle changes the delay between stepwise phases.
func (e *Engine) SetSettle(d time.Duration) {
	if d < 0 {
		d = 0
	}
	e.settle.Store(int64(d))
}

// Run executes seq. ctx is checked before every phase, during settle
// delays and between the actions of a phase while no guard bracket is
// open. A guard bracket that has started always runs to its end.
func (e *Engine) Run(ctx context.Context, seq Sequence) error {
	if seq.Stepwise {
		e.logf("=== Starting %s sequence ===", seq.Name)
	}

	for n, ph := range seq.Phases {
		if err := ctx.Err(); err != nil {
			return e.cancelled(seq, n, err)
		}
		if seq.Stepwise {
			e.logf("=== STEP %d: %s ===", n+1, ph.Title)
		}
		if err := e.runPhase(ctx, ph); err != nil {
			if cause := ctx.Err(); cause != nil && errors.Is(err, cause) {
				e.logf("%s: interrupted", ph.Title)
				return e.cancelled(seq, n, err)
			}
			e.logf("ERROR: %s: %v", ph.Title, err)
			return fmt.Errorf("%s step %d (%s): %w", seq.Name, n+1, ph.Title, err)
		}
		if !seq.Stepwise {
			continue
		}
		if err := e.gate.Wait(ctx); err != nil {
			return e.cancelled(seq, n+1, err)
		}
		if n < len(seq.Phases)-1 {
			if err := e.wait(ctx, e.Settle()); err != nil {
				return e.cancelled(seq, n+1, err)
			}
		}
	}

	if seq.Stepwise {
		e.logf("=== %s sequence complete ===", seq.Name)
	}
	return nil
}

func (e *Engine) cancelled(seq Sequence, done int, cause error) error {
	e.logf("=== %s sequence cancelled after %d of %d steps ===", seq.Name, done, len(seq.Phases))
	return fmt.Errorf("%w: %s: %w", ErrCancelled, seq.Name, cause)
}

func (e *Engine) runPhase(ctx context.Context, ph Phase) error {
	e.logf("%s: Start", ph.Title)

	guarded := false
	for i, a := range ph.Actions {
		if i > 0 && !guarded {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if a.Op == OpGuardOn {
			guarded = true
		}
		err := e.runAction(ctx, ph.Title, a, guarded)
		if err != nil {
			if guarded {
				e.bank.GuardOff()
			}
			return err
		}
		if a.Op == OpGuardOff {
			guarded = false
		}
	}

	e.logf("%s: End", ph.Title)
	return nil
}

func (e *Engine) runAction(ctx context.Context, title string, a Action, guarded bool) error {
	hold := a.Hold
	if hold == 0 {
		hold = e.Hold()
	}

	switch a.Op {
	case OpGuardOn:
		e.logf("%s: %s ON", title, relay.Names(relay.GuardLow, relay.GuardHigh))
		return e.bank.GuardOn()
	case OpGuardOff:
		if err := e.bank.GuardOff(); err != nil {
			return err
		}
		e.logf("%s: %s OFF", title, relay.Names(relay.GuardLow, relay.GuardHigh))
	case OpPulse, OpPress:
		names := relay.Names(a.Relays...)
		e.logf("%s: %s ON", title, names)
		if err := e.bank.Press(hold, a.Relays...); err != nil {
			return err
		}
		e.logf("%s: %s OFF", title, names)
	case OpWait:
		if a.Text != "" {
			e.log.Append(a.Text)
		}
		if !guarded {
			return e.wait(ctx, a.Wait)
		}
		e.pause(a.Wait)
	case OpNote:
		e.log.Append(a.Text)
	default:
		return fmt.Errorf("unknown op %d", a.Op)
	}
	return nil
}

func (e *Engine) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	if e.sleep != nil {
		e.sleep(d)
		return
	}
	time.Sleep(d)
}

func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if e.sleep != nil {
		e.sleep(d)
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) logf(format string, args ...any) {
	e.log.Append(fmt.Sprintf(format, args...))
}
