//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// ChipBackend drives the word through a Linux GPIO character device.
// Bit i of the word maps to line offsets[i].
type ChipBackend struct {
	offsets []int
	bits    []int
	values  []int
	lines   *gpiocdev.Lines
}

// NewChipBackend creates an unconfigured backend over the given offsets.
func NewChipBackend(offsets []int) *ChipBackend {
	return &ChipBackend{offsets: offsets}
}

// Configure requests every line whose direction bit is set as an output,
// initially high (relays released).
func (c *ChipBackend) Configure(endpoint string, direction uint16, frequency int) error {
	if endpoint == "" {
		endpoint = "gpiochip0"
	}

	var lines []int
	c.bits = c.bits[:0]
	for bit, off := range c.offsets {
		if bit >= Width || direction&(1<<bit) == 0 {
			continue
		}
		lines = append(lines, off)
		c.bits = append(c.bits, bit)
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w: no output lines in direction mask %#04x", ErrInit, direction)
	}

	c.values = make([]int, len(lines))
	for i := range c.values {
		c.values[i] = 1
	}

	req, err := gpiocdev.RequestLines(endpoint, lines,
		gpiocdev.AsOutput(c.values...),
		gpiocdev.WithConsumer("lightpanel"))
	if err != nil {
		return fmt.Errorf("%w: request lines on %s: %w", ErrInit, endpoint, err)
	}
	c.lines = req
	return nil
}

// Write sets every requested line from its bit in word.
func (c *ChipBackend) Write(word uint16) error {
	if c.lines == nil {
		return fmt.Errorf("%w: lines not requested", ErrWrite)
	}
	for i, bit := range c.bits {
		c.values[i] = int(word>>bit) & 1
	}
	if err := c.lines.SetValues(c.values); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// Close releases the lines.
func (c *ChipBackend) Close() error {
	if c.lines == nil {
		return nil
	}
	err := c.lines.Close()
	c.lines = nil
	if err != nil {
		return fmt.Errorf("close lines: %w", err)
	}
	return nil
}
