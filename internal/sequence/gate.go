package sequence

import (
	"context"
	"sync"
)

// Checkpoint is consulted after every phase of a stepwise sequence.
type Checkpoint interface {
	Wait(ctx context.Context) error
}

// Passthrough never blocks.
type Passthrough struct{}

// Wait returns immediately.
func (Passthrough) Wait(ctx context.Context) error { return nil }

// Gate implements debug single-stepping. While enabled, Wait blocks until
// Advance is called, the gate is disabled or ctx ends. Only one waiter is
// expected at a time.
type Gate struct {
	mu      sync.Mutex
	log     Logger
	enabled bool
	waiter  chan struct{}
}

// NewGate creates a disabled gate that announces waits on log.
func NewGate(log Logger) *Gate {
	return &Gate{log: log}
}

// Enabled reports whether debug stepping is on.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// SetEnabled turns stepping on or off. Turning it off releases a waiter.
func (g *Gate) SetEnabled(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = on
	if !on {
		g.releaseLocked()
	}
}

// Waiting reports whether a sequence is parked at the gate.
func (g *Gate) Waiting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiter != nil
}

// Advance releases the parked sequence. It reports false if none was waiting.
func (g *Gate) Advance() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.releaseLocked()
}

func (g *Gate) releaseLocked() bool {
	if g.waiter == nil {
		return false
	}
	close(g.waiter)
	g.waiter = nil
	return true
}

// Wait parks the caller while the gate is enabled.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	if !g.enabled {
		g.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	g.waiter = ch
	g.mu.Unlock()

	g.announce("Waiting for Next Step...")
	select {
	case <-ch:
		g.announce("Proceeding to next step...")
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		if g.waiter == ch {
			g.waiter = nil
		}
		g.mu.Unlock()
		return ctx.Err()
	}
}

func (g *Gate) announce(line string) {
	if g.log != nil {
		g.log.Append(line)
	}
}
