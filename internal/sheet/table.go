package sheet

import (
	"fmt"
	"sync"
)

// Table guards the live sheet shared by the front-ends and the sequencer.
type Table struct {
	mu       sync.RWMutex
	sheet    *Sheet
	onChange []func(*Sheet)
}

// NewTable wraps s.
func NewTable(s *Sheet) *Table {
	return &Table{sheet: s.Clone()}
}

// OnChange registers fn to receive a copy of the sheet after every change.
func (t *Table) OnChange(fn func(*Sheet)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, fn)
}

// Sheet returns a copy of the sheet.
func (t *Table) Sheet() *Sheet {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sheet.Clone()
}

// Snapshot returns the channel view used by sequences.
func (t *Table) Snapshot() []Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sheet.Channels()
}

// Len returns the number of channels.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sheet.Rows)
}

// Replace swaps in a whole new sheet, e.g. after a CSV import.
func (t *Table) Replace(s *Sheet) {
	t.change(func(cur *Sheet) error {
		*cur = *s.Clone()
		return nil
	})
}

// Resize changes the channel count, keeping existing rows by position.
func (t *Table) Resize(n int) error {
	return t.change(func(cur *Sheet) error { return cur.Resize(n) })
}

// SetSite sets the site name and date lines.
func (t *Table) SetSite(name, date string) {
	t.change(func(cur *Sheet) error {
		cur.SiteName = name
		cur.Date = date
		return nil
	})
}

// SetRow replaces the row of channel (1-based) after validating it.
func (t *Table) SetRow(channel int, row Row) error {
	return t.UpdateRow(channel, func(r *Row) { *r = row })
}

// SetZone moves channel to zone.
func (t *Table) SetZone(channel int, zone string) error {
	return t.UpdateRow(channel, func(r *Row) { r.Zone = zone })
}

// SetLevel sets the level stored for scene digit on channel.
func (t *Table) SetLevel(channel, scene, level int) error {
	idx, err := SceneIndex(scene)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRow, err)
	}
	return t.UpdateRow(channel, func(r *Row) { r.Scenes[idx] = FormatLevel(level) })
}

// UpdateRow applies edit to a copy of channel's row and keeps the result
// only if it validates.
func (t *Table) UpdateRow(channel int, edit func(*Row)) error {
	return t.change(func(cur *Sheet) error {
		if channel < 1 || channel > len(cur.Rows) {
			return fmt.Errorf("%w: channel %d not in 1..%d", ErrInvalidRow, channel, len(cur.Rows))
		}
		row := cur.Rows[channel-1]
		edit(&row)
		if err := row.Validate(); err != nil {
			return err
		}
		cur.Rows[channel-1] = row
		return nil
	})
}

func (t *Table) change(fn func(*Sheet) error) error {
	t.mu.Lock()
	next := t.sheet.Clone()
	if err := fn(next); err != nil {
		t.mu.Unlock()
		return err
	}
	t.sheet = next
	hooks := append([]func(*Sheet){}, t.onChange...)
	t.mu.Unlock()

	for _, h := range hooks {
		h(next.Clone())
	}
	return nil
}
