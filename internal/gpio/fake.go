package gpio

import (
	"fmt"
	"sync"
	"time"
)

// FakeWrite is one recorded write.
type FakeWrite struct {
	Word uint16
	At   time.Time
}

// FakeBackend is a test double that records every write with a timestamp.
type FakeBackend struct {
	mu sync.Mutex

	// Now stamps recorded writes. Defaults to time.Now.
	Now func() time.Time

	// ConfigureError, if set, is returned by Configure.
	ConfigureError error

	// WriteError, if set, is returned by every Write.
	WriteError error

	// FailOnWrite makes only the n-th write attempt (1-based) fail.
	FailOnWrite int

	Endpoint  string
	Direction uint16
	Frequency int

	writes   []FakeWrite
	attempts int
	closed   bool
}

// NewFakeBackend creates a FakeBackend using the wall clock.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{Now: time.Now}
}

// Configure records the parameters.
func (f *FakeBackend) Configure(endpoint string, direction uint16, frequency int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.Endpoint = endpoint
	f.Direction = direction
	f.Frequency = frequency
	return nil
}

// Write records the word unless a failure is scripted.
func (f *FakeBackend) Write(word uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.WriteError != nil {
		return f.WriteError
	}
	if f.FailOnWrite > 0 && f.attempts == f.FailOnWrite {
		return fmt.Errorf("%w: scripted failure on write %d", ErrWrite, f.attempts)
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	f.writes = append(f.writes, FakeWrite{Word: word, At: now()})
	return nil
}

// Close marks the backend as closed.
func (f *FakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Writes returns a copy of the recorded writes.
func (f *FakeBackend) Writes() []FakeWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

// Words returns the recorded words in order.
func (f *FakeBackend) Words() []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint16, len(f.writes))
	for i, w := range f.writes {
		out[i] = w.Word
	}
	return out
}

// Last returns the most recent word, or PowerOnWord if nothing was written.
func (f *FakeBackend) Last() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return PowerOnWord
	}
	return f.writes[len(f.writes)-1].Word
}

// Closed reports whether Close was called.
func (f *FakeBackend) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset forgets recorded writes and scripted failures.
func (f *FakeBackend) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
	f.attempts = 0
	f.closed = false
	f.WriteError = nil
	f.FailOnWrite = 0
}
