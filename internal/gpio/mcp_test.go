//go:build linux

package gpio

import (
	"errors"
	"testing"

	"github.com/racerxdl/go-mcp23017"
)

type fakeExpander struct {
	levels   map[uint8]bool
	failMode uint8
	closed   int
}

func newFakeExpander() *fakeExpander {
	return &fakeExpander{levels: make(map[uint8]bool), failMode: Width}
}

func (f *fakeExpander) PinMode(pin uint8, mode mcp23017.PinMode) error {
	if pin == f.failMode {
		return errors.New("i2c: remote I/O error")
	}
	return nil
}

func (f *fakeExpander) DigitalWrite(pin uint8, level mcp23017.PinLevel) error {
	f.levels[pin] = bool(level)
	return nil
}

func (f *fakeExpander) Close() error {
	f.closed++
	return nil
}

func mcpWith(dev *fakeExpander) *MCPBackend {
	m := NewMCPBackend()
	m.open = func(bus, addr uint8) (expander, error) { return dev, nil }
	return m
}

func TestMCPBackendWritesChangedPins(t *testing.T) {
	dev := newFakeExpander()
	m := mcpWith(dev)
	if err := m.Configure("1:0", 0x03FF, 0); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	for pin := uint8(0); pin < 10; pin++ {
		if !dev.levels[pin] {
			t.Errorf("pin %d not released at configure", pin)
		}
	}

	if err := m.Write(0xFFF7); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if dev.levels[3] {
		t.Error("pin 3 should be driven low")
	}
	if _, ok := dev.levels[12]; ok {
		t.Error("pin 12 is not an output and should not be touched")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if dev.closed != 1 {
		t.Errorf("device closed %d times, want 1", dev.closed)
	}
	if err := m.Write(0xFFFF); !errors.Is(err, ErrWrite) {
		t.Errorf("write after close: expected ErrWrite, got %v", err)
	}
}

func TestMCPBackendClosesDeviceOnSetupFailure(t *testing.T) {
	dev := newFakeExpander()
	dev.failMode = 4
	m := mcpWith(dev)

	if err := m.Configure("1:0", 0xFFFF, 0); !errors.Is(err, ErrInit) {
		t.Fatalf("expected ErrInit, got %v", err)
	}
	if dev.closed != 1 {
		t.Errorf("device closed %d times after failed setup, want 1", dev.closed)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if dev.closed != 1 {
		t.Errorf("Close after failed setup closed again: %d", dev.closed)
	}
}
