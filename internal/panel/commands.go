package panel

import (
	"fmt"
	"time"

	"github.com/sweeney/lightpanel/internal/relay"
	"github.com/sweeney/lightpanel/internal/sequence"
)

// ToggleRelay pulses one relay for the configured hold.
func (p *Panel) ToggleRelay(index int) (*Operation, error) {
	r := relay.Index(index)
	if !r.Valid() {
		return nil, fmt.Errorf("%w: relay %d not in 0..%d", ErrInvalidInput, index, relay.Count-1)
	}
	seq := sequence.Toggle(r)
	return p.submit(seq.Name, "", seq)
}

// TestAllRelays pulses every relay in turn.
func (p *Panel) TestAllRelays() (*Operation, error) {
	seq := sequence.TestAll()
	return p.submit(seq.Name, "", seq)
}

// EnterProgrammingMode sends the programming-mode gesture.
func (p *Panel) EnterProgrammingMode() (*Operation, error) {
	return p.trigger(sequence.ProgramMode)
}

// ExitProgrammingMode sends the exit gesture.
func (p *Panel) ExitProgrammingMode() (*Operation, error) {
	return p.trigger(sequence.ExitProgramMode)
}

// Reset sends the reset gesture after the operator confirms it.
func (p *Panel) Reset(c Confirmer) (*Operation, error) {
	if !c.Confirm("Are you sure you want to reset?") {
		p.events.Append("Reset canceled.")
		return nil, ErrDeclined
	}
	return p.trigger(sequence.Reset)
}

// Mode sends one of the named mode triggers (sequence.Modes).
func (p *Panel) Mode(key string) (*Operation, error) {
	t, ok := sequence.Lookup(sequence.Modes, key)
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, key)
	}
	return p.trigger(t)
}

// Quick sends one of the simultaneous-press shortcuts (sequence.Quicks).
func (p *Panel) Quick(key string) (*Operation, error) {
	t, ok := sequence.Lookup(sequence.Quicks, key)
	if !ok {
		return nil, fmt.Errorf("%w: unknown shortcut %q", ErrInvalidInput, key)
	}
	return p.trigger(t)
}

func (p *Panel) trigger(t sequence.Trigger) (*Operation, error) {
	return p.submit(t.Name, "", t.Sequence())
}

// PlayChannelScene recalls scene on channel at level. The play control of
// that cell stays disabled until the sequence ends.
func (p *Panel) PlayChannelScene(channel, scene, level int) (*Operation, error) {
	if channel < 1 || channel > 99 {
		return nil, fmt.Errorf("%w: channel %d not in 1..99", ErrInvalidInput, channel)
	}
	if scene < 0 || scene > 9 {
		return nil, fmt.Errorf("%w: scene %d not a digit", ErrInvalidInput, scene)
	}
	if level < 0 || level > 99 {
		return nil, fmt.Errorf("%w: level %d not in 0..99", ErrInvalidInput, level)
	}
	seq, err := sequence.Play(channel, relay.Index(scene), level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return p.submit(seq.Name, PlayControl(channel, scene), seq)
}

// ProgramSceneForZone stores scene for every channel in zone, using the
// levels in the sheet at the time of the call.
func (p *Panel) ProgramSceneForZone(scene, zone int, c Confirmer) (*Operation, error) {
	if scene < 0 || scene > 9 || zone < 0 || zone > 9 {
		return nil, fmt.Errorf("%w: scene %d / zone %d must be digits", ErrInvalidInput, scene, zone)
	}
	if !p.Enabled(ControlProgram) {
		return nil, p.unavailable(ControlProgram)
	}
	if !c.Confirm(fmt.Sprintf("Program scene %d for zone %d?", scene, zone)) {
		p.events.Append("Programming canceled.")
		return nil, ErrDeclined
	}
	seq, err := sequence.ProgramScene(relay.Index(scene), relay.Index(zone), p.table.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return p.submit(seq.Name, ControlProgram, seq)
}

// AllocateToZone assigns every channel to zone or away from it according
// to the sheet.
func (p *Panel) AllocateToZone(zone int, c Confirmer) (*Operation, error) {
	if zone < 0 || zone > 9 {
		return nil, fmt.Errorf("%w: zone %d must be a digit", ErrInvalidInput, zone)
	}
	if !p.Enabled(ControlAllocate) {
		return nil, p.unavailable(ControlAllocate)
	}
	if !c.Confirm(fmt.Sprintf("Allocate channels to zone %d?", zone)) {
		p.events.Append("Allocation canceled.")
		return nil, ErrDeclined
	}
	seq, err := sequence.Allocate(relay.Index(zone), p.table.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return p.submit(seq.Name, ControlAllocate, seq)
}

func (p *Panel) unavailable(control Control) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return ErrClosed
	case !p.ready:
		return ErrNotReady
	}
	return fmt.Errorf("%w: %s", ErrBusy, control)
}

// AllOff cancels queued and running work and releases every relay at once.
// It is the recovery path after a failed write.
func (p *Panel) AllOff() error {
	p.Cancel()
	if err := p.bank.AllOff(); err != nil {
		p.events.Append(fmt.Sprintf("ERROR: All Off: %v", err))
		return err
	}
	p.events.Append("All Off: all relays released")
	return nil
}

// SetHold changes the configured pulse duration.
func (p *Panel) SetHold(d time.Duration) error {
	if err := p.engine.SetHold(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	p.log.Info("hold changed", "hold", d)
	return nil
}

// SetDebug turns single-stepping on or off. Turning it off releases a
// sequence parked at the checkpoint.
func (p *Panel) SetDebug(on bool) {
	p.gate.SetEnabled(on)
	if on {
		p.events.Append("Debug mode enabled.")
	} else {
		p.events.Append("Debug mode disabled.")
	}
}

// Advance releases a sequence parked at the debug checkpoint.
func (p *Panel) Advance() bool {
	return p.gate.Advance()
}
