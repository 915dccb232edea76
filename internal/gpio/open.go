package gpio

import (
	"fmt"
	"io"
)

// Options selects and configures a backend.
type Options struct {
	Driver    string
	Endpoint  string
	Lines     []int
	Direction uint16
	Frequency int

	// ProbeUSB makes the auto driver require the FT232H bridge before
	// touching real hardware.
	ProbeUSB  bool
	SysfsRoot string

	// Strict turns an init failure into an error instead of a fallback
	// to the simulated backend.
	Strict bool
}

// Selection is the backend chosen by Open.
type Selection struct {
	Backend   Backend
	Driver    string
	Simulated bool

	// Fallback is the reason the simulated backend replaced the requested
	// one. Nil when simulation was requested or real hardware opened.
	Fallback error
}

// Open picks and configures a backend. Unless opts.Strict is set, a real
// backend that fails to initialize is replaced by the simulated one and
// the failure is reported in Selection.Fallback.
func Open(opts Options, simOut io.Writer) (Selection, error) {
	if opts.Direction == 0 {
		opts.Direction = DefaultDirection
	}
	if opts.Frequency == 0 {
		opts.Frequency = DefaultFrequency
	}
	if len(opts.Lines) == 0 {
		opts.Lines = DefaultLines()
	}

	driver := opts.Driver
	switch driver {
	case "", DriverAuto:
		if opts.ProbeUSB && !Probe(opts.SysfsRoot, VendorID, ProductID) {
			err := fmt.Errorf("%w: no usb device %04x:%04x", ErrInit, VendorID, ProductID)
			if opts.Strict {
				return Selection{}, err
			}
			return simulated(opts, simOut, err)
		}
		driver = DriverChip
	case DriverSimulated:
		return simulated(opts, simOut, nil)
	case DriverChip, DriverRpio, DriverMCP:
	default:
		return Selection{}, fmt.Errorf("gpio: unknown driver %q", opts.Driver)
	}

	b, err := newBackend(driver, opts)
	if err == nil {
		if err = b.Configure(opts.Endpoint, opts.Direction, opts.Frequency); err != nil {
			b.Close()
		}
	}
	if err != nil {
		if opts.Strict {
			return Selection{}, err
		}
		return simulated(opts, simOut, err)
	}
	return Selection{Backend: b, Driver: driver}, nil
}

func simulated(opts Options, out io.Writer, reason error) (Selection, error) {
	s := NewSimulated(out)
	if err := s.Configure(opts.Endpoint, opts.Direction, opts.Frequency); err != nil {
		return Selection{}, err
	}
	return Selection{Backend: s, Driver: DriverSimulated, Simulated: true, Fallback: reason}, nil
}
