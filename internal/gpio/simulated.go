package gpio

import (
	"fmt"
	"io"
	"sync"
)

// Simulated stands in for the board when no device is available.
// Every write is diffed against the previous one and each changed bit is
// reported to the output writer. Writes always succeed.
type Simulated struct {
	mu   sync.Mutex
	out  io.Writer
	last uint16
}

// NewSimulated reports bit changes to out. A nil out discards them.
func NewSimulated(out io.Writer) *Simulated {
	if out == nil {
		out = io.Discard
	}
	return &Simulated{out: out, last: PowerOnWord}
}

// Configure accepts any endpoint.
func (s *Simulated) Configure(endpoint string, direction uint16, frequency int) error {
	return nil
}

// Write logs one line per changed bit.
func (s *Simulated) Write(word uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.last ^ word
	for bit := 0; bit < Width; bit++ {
		mask := uint16(1) << bit
		if changed&mask == 0 {
			continue
		}
		state := "OFF"
		if word&mask == 0 {
			state = "ON"
		}
		fmt.Fprintf(s.out, "[SIMULATION] Relay R%d -> %s\n", bit, state)
	}
	s.last = word
	return nil
}

// Close is a no-op.
func (s *Simulated) Close() error {
	return nil
}

// Word returns the last written word.
func (s *Simulated) Word() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
