package relay

import (
	"fmt"
	"sync"
	"time"
)

// Writer sends a whole word to the hardware. gpio.Backend satisfies it.
type Writer interface {
	Write(word uint16) error
}

// Option configures a Bank.
type Option func(*Bank)

// WithSleep replaces time.Sleep for hold times.
func WithSleep(sleep func(time.Duration)) Option {
	return func(b *Bank) { b.sleep = sleep }
}

// Bank is the exclusive owner of the relay word. Every mutation takes the
// lock, changes the word, writes it and releases the lock. Hold times are
// slept outside the lock.
//
// A failed write leaves the in-memory word as computed, which may no
// longer match the board. AllOff resynchronizes both.
type Bank struct {
	mu     sync.Mutex
	word   Word
	out    Writer
	sleep  func(time.Duration)
	pulses uint64
}

// NewBank creates a bank at the power-on word. Nothing is written until the
// first operation; call AllOff to force the board into a known state.
func NewBank(out Writer, opts ...Option) *Bank {
	b := &Bank{word: Off, out: out, sleep: time.Sleep}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Word returns the current in-memory word.
func (b *Bank) Word() Word {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.word
}

// Pulses returns the number of completed pulses and presses.
func (b *Bank) Pulses() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pulses
}

// Pulse energizes relay i, holds it for d and releases it.
func (b *Bank) Pulse(i Index, d time.Duration) error {
	return b.Press(d, i)
}

// Press energizes all given relays with a single write, holds them for d
// and releases them with a single write.
func (b *Bank) Press(d time.Duration, idx ...Index) error {
	mask, err := maskOf(idx)
	if err != nil {
		return err
	}
	if err := b.apply(mask, 0); err != nil {
		// Try not to leave the relays latched.
		b.apply(0, mask)
		return err
	}
	b.sleep(d)
	if err := b.apply(0, mask); err != nil {
		return err
	}

	b.mu.Lock()
	b.pulses++
	b.mu.Unlock()
	return nil
}

// GuardOn energizes both guard relays in one write.
func (b *Bank) GuardOn() error {
	return b.apply(GuardLow.mask()|GuardHigh.mask(), 0)
}

// GuardOff releases both guard relays in one write.
func (b *Bank) GuardOff() error {
	return b.apply(0, GuardLow.mask()|GuardHigh.mask())
}

// AllOff writes the power-on word.
func (b *Bank) AllOff() error {
	return b.apply(0, Off)
}

func (b *Bank) apply(clear, set Word) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.word&^clear | set
	b.word = next
	if err := b.out.Write(uint16(next)); err != nil {
		return fmt.Errorf("write %s: %w", next, err)
	}
	return nil
}

func maskOf(idx []Index) (Word, error) {
	var mask Word
	for _, i := range idx {
		if !i.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidIndex, int(i))
		}
		mask |= i.mask()
	}
	if mask == 0 {
		return 0, fmt.Errorf("%w: no relay given", ErrInvalidIndex)
	}
	return mask, nil
}
