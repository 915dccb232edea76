//go:build linux

package gpio

import (
	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
)

// expander is the part of *mcp23017.Device the backend uses.
type expander interface {
	PinMode(pin uint8, mode mcp23017.PinMode) error
	DigitalWrite(pin uint8, level mcp23017.PinLevel) error
	Close() error
}

// MCPBackend drives the word through an MCP23017 I2C expander, whose 16
// pins map one to one onto the bits of the word.
type MCPBackend struct {
	open   func(bus, dev uint8) (expander, error)
	device expander
	mask   uint16
	last   uint16
}

// NewMCPBackend creates an unconfigured expander backend.
func NewMCPBackend() *MCPBackend {
	return &MCPBackend{open: openExpander, last: PowerOnWord}
}

func openExpander(bus, dev uint8) (expander, error) {
	d, err := mcp23017.Open(bus, dev)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Configure opens the expander and makes every masked pin a high output.
// The device is closed again if any pin cannot be set up.
func (m *MCPBackend) Configure(endpoint string, direction uint16, frequency int) error {
	if endpoint == "" {
		endpoint = DefaultMCPEndpoint
	}
	bus, dev, err := ParseMCPEndpoint(endpoint)
	if err != nil {
		return errors.Wrap(ErrInit, err.Error())
	}

	device, err := m.open(bus, dev)
	if err != nil {
		return errors.Wrapf(ErrInit, "mcp23017 open bus %d dev %d: %v", bus, dev, err)
	}
	if err := setupPins(device, direction); err != nil {
		device.Close()
		return err
	}

	m.device = device
	m.mask = direction
	m.last = PowerOnWord
	return nil
}

func setupPins(device expander, direction uint16) error {
	for pin := uint8(0); pin < Width; pin++ {
		if direction&(1<<pin) == 0 {
			continue
		}
		if err := device.PinMode(pin, mcp23017.OUTPUT); err != nil {
			return errors.Wrapf(ErrInit, "mcp23017 pin %d mode: %v", pin, err)
		}
		if err := device.DigitalWrite(pin, mcp23017.PinLevel(true)); err != nil {
			return errors.Wrapf(ErrInit, "mcp23017 pin %d release: %v", pin, err)
		}
	}
	return nil
}

// Write updates only the output pins whose bit changed.
func (m *MCPBackend) Write(word uint16) error {
	if m.device == nil {
		return errors.Wrap(ErrWrite, "mcp23017 not opened")
	}
	changed := (m.last ^ word) & m.mask
	for pin := uint8(0); pin < Width; pin++ {
		bit := uint16(1) << pin
		if changed&bit == 0 {
			continue
		}
		if err := m.device.DigitalWrite(pin, mcp23017.PinLevel(word&bit != 0)); err != nil {
			return errors.Wrapf(ErrWrite, "mcp23017 pin %d: %v", pin, err)
		}
		m.last = m.last&^bit | word&bit
	}
	return nil
}

// Close releases the I2C device. It is safe to call more than once.
func (m *MCPBackend) Close() error {
	if m.device == nil {
		return nil
	}
	err := m.device.Close()
	m.device = nil
	return err
}
