// Package gpio drives the single 16-bit output word of the relay board.
// Real backends talk to Linux hardware. The simulated backend only logs
// which bits changed, so the panel stays operable without a device.
package gpio

import "errors"

// Backend writes whole 16-bit words to the relay board.
type Backend interface {
	// Configure opens the endpoint and sets the direction of each bit
	// (1 = output). Frequency is the transport clock where it applies.
	Configure(endpoint string, direction uint16, frequency int) error

	// Write drives all configured bits at once.
	Write(word uint16) error

	// Close releases the device.
	Close() error
}

// Word defaults.
const (
	Width            = 16
	PowerOnWord      = 0xFFFF
	DefaultDirection = 0xFFFF
	DefaultFrequency = 6_000_000
)

// Driver names accepted by Open.
const (
	DriverAuto      = "auto"
	DriverSimulated = "simulated"
	DriverChip      = "gpiocdev"
	DriverRpio      = "rpio"
	DriverMCP       = "mcp23017"
)

var (
	// ErrInit reports a device that could not be opened or configured.
	ErrInit = errors.New("gpio: hardware init failed")

	// ErrWrite reports a failed output write.
	ErrWrite = errors.New("gpio: hardware write failed")
)

// DefaultLines maps bit i of the word to line offset i.
func DefaultLines() []int {
	lines := make([]int, Width)
	for i := range lines {
		lines[i] = i
	}
	return lines
}
