//go:build linux

package gpio

import (
	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// RpioBackend drives the word through Raspberry Pi header pins via
// /dev/gpiomem. Bit i of the word maps to BCM pin pins[i].
type RpioBackend struct {
	pins   []int
	out    []rpio.Pin
	bits   []int
	last   uint16
	opened bool
}

// NewRpioBackend creates an unconfigured backend over the given BCM pins.
func NewRpioBackend(pins []int) *RpioBackend {
	return &RpioBackend{pins: pins, last: PowerOnWord}
}

// Configure maps the GPIO registers and sets output pins high.
func (r *RpioBackend) Configure(endpoint string, direction uint16, frequency int) error {
	if err := rpio.Open(); err != nil {
		return errors.Wrapf(ErrInit, "rpio open: %v", err)
	}
	r.opened = true

	r.out = r.out[:0]
	r.bits = r.bits[:0]
	for bit, n := range r.pins {
		if bit >= Width || direction&(1<<bit) == 0 {
			continue
		}
		pin := rpio.Pin(n)
		pin.Output()
		pin.High()
		r.out = append(r.out, pin)
		r.bits = append(r.bits, bit)
	}
	if len(r.out) == 0 {
		return errors.Wrapf(ErrInit, "no output pins in direction mask %#04x", direction)
	}
	r.last = PowerOnWord
	return nil
}

// Write updates only the pins whose bit changed.
func (r *RpioBackend) Write(word uint16) error {
	if !r.opened {
		return errors.Wrap(ErrWrite, "rpio not opened")
	}
	changed := r.last ^ word
	for i, bit := range r.bits {
		mask := uint16(1) << bit
		if changed&mask == 0 {
			continue
		}
		if word&mask == 0 {
			r.out[i].Low()
		} else {
			r.out[i].High()
		}
	}
	r.last = word
	return nil
}

// Close unmaps the GPIO registers.
func (r *RpioBackend) Close() error {
	if !r.opened {
		return nil
	}
	r.opened = false
	return errors.Wrap(rpio.Close(), "rpio close")
}
