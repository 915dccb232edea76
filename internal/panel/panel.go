// Package panel is the command surface the front-ends call. Every request
// becomes an operation on a single sequencer queue, so sequences never
// interleave on the relay word.
package panel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/lightpanel/internal/relay"
	"github.com/sweeney/lightpanel/internal/sequence"
	"github.com/sweeney/lightpanel/internal/sheet"
)

var (
	ErrInvalidInput = errors.New("panel: invalid input")
	ErrDeclined     = errors.New("panel: confirmation declined")
	ErrBusy         = errors.New("panel: control busy")
	ErrNotReady     = errors.New("panel: hardware not ready")
	ErrQueueFull    = errors.New("panel: queue full")
	ErrClosed       = errors.New("panel: closed")
)

// DefaultQueueSize bounds the number of waiting operations.
const DefaultQueueSize = 16

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Confirmed answers yes to everything.
var Confirmed Confirmer = ConfirmFunc(func(string) bool { return true })

// Declined answers no to everything.
var Declined Confirmer = ConfirmFunc(func(string) bool { return false })

// Observer is told about operation lifecycle changes. Calls come from the
// sequencer goroutine and must not block for long.
type Observer interface {
	OperationStarted(Record)
	OperationFinished(Record)
}

// Logger receives operator-facing lines.
type Logger interface {
	Append(line string)
}

// Config wires a Panel.
type Config struct {
	Engine    *sequence.Engine
	Bank      *relay.Bank
	Table     *sheet.Table
	Gate      *sequence.Gate
	Events    Logger
	Log       *log.Logger
	Observers []Observer
	QueueSize int
	Now       func() time.Time
}

// Panel serializes all relay activity through one worker.
type Panel struct {
	engine    *sequence.Engine
	bank      *relay.Bank
	table     *sheet.Table
	gate      *sequence.Gate
	events    Logger
	log       *log.Logger
	observers []Observer
	now       func() time.Time
	jobs      chan *Operation

	mu      sync.Mutex
	ready   bool
	closed  bool
	nextID  uint64
	busy    map[Control]bool
	current *Operation
	cancel  context.CancelFunc
}

// New creates a panel. It accepts no work until SetReady(true).
func New(cfg Config) *Panel {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = log.Default()
	}
	if cfg.Events == nil {
		cfg.Events = discard{}
	}
	if cfg.Gate == nil {
		cfg.Gate = sequence.NewGate(cfg.Events)
	}
	return &Panel{
		engine:    cfg.Engine,
		bank:      cfg.Bank,
		table:     cfg.Table,
		gate:      cfg.Gate,
		events:    cfg.Events,
		log:       cfg.Log,
		observers: cfg.Observers,
		now:       cfg.Now,
		jobs:      make(chan *Operation, cfg.QueueSize),
		busy:      make(map[Control]bool),
	}
}

// SetReady marks the hardware as usable.
func (p *Panel) SetReady(ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = ready
}

// Ready reports whether the panel accepts work.
func (p *Panel) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Run executes queued operations one at a time until ctx ends. Operations
// still queued at that point finish with ErrClosed.
func (p *Panel) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.close()
			return ctx.Err()
		case op := <-p.jobs:
			p.execute(ctx, op)
		}
	}
}

func (p *Panel) execute(ctx context.Context, op *Operation) {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.current = op
	p.cancel = cancel
	p.mu.Unlock()

	op.start(p.now())
	p.notify(op, true)
	p.log.Debug("operation started", "id", op.id, "op", op.name)

	err := p.engine.Run(opCtx, op.seq)
	if err == nil && opCtx.Err() != nil {
		err = fmt.Errorf("%w: %s: stopped during its last step", sequence.ErrCancelled, op.name)
	}

	p.mu.Lock()
	p.current = nil
	p.cancel = nil
	delete(p.busy, op.control)
	p.mu.Unlock()

	op.finish(p.now(), err)
	p.notify(op, false)

	rec := op.Record()
	elapsed := rec.Finished.Sub(rec.Started)
	switch rec.Result {
	case ResultOK:
		p.log.Info("operation finished", "id", op.id, "op", op.name, "elapsed", elapsed)
	case ResultCancelled:
		p.log.Warn("operation cancelled", "id", op.id, "op", op.name, "elapsed", elapsed)
	default:
		p.log.Error("operation failed", "id", op.id, "op", op.name, "err", err)
	}
}

func (p *Panel) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.drain(ErrClosed)
}

func (p *Panel) drain(reason error) int {
	n := 0
	for {
		select {
		case op := <-p.jobs:
			p.mu.Lock()
			delete(p.busy, op.control)
			p.mu.Unlock()
			op.finish(p.now(), reason)
			p.notify(op, false)
			n++
		default:
			return n
		}
	}
}

func (p *Panel) notify(op *Operation, started bool) {
	rec := op.Record()
	for _, o := range p.observers {
		if started {
			o.OperationStarted(rec)
		} else {
			o.OperationFinished(rec)
		}
	}
}

func (p *Panel) submit(name string, control Control, seq sequence.Sequence) (*Operation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.closed:
		return nil, ErrClosed
	case !p.ready:
		p.events.Append("Hardware not ready.")
		return nil, ErrNotReady
	case control != "" && p.busy[control]:
		return nil, fmt.Errorf("%w: %s", ErrBusy, control)
	}

	p.nextID++
	op := newOperation(p.nextID, name, control, seq, p.now())
	select {
	case p.jobs <- op:
	default:
		p.nextID--
		return nil, ErrQueueFull
	}
	if control != "" {
		p.busy[control] = true
	}
	p.log.Debug("operation queued", "id", op.id, "op", name)
	return op, nil
}

// Cancel stops the running operation at its next cancellation point and
// drops everything queued behind it. It reports whether anything was stopped.
func (p *Panel) Cancel() bool {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	dropped := p.drain(fmt.Errorf("%w: dropped from queue", sequence.ErrCancelled))
	if cancel != nil {
		cancel()
	}
	return cancel != nil || dropped > 0
}

// Enabled reports whether control can be triggered.
func (p *Panel) Enabled(control Control) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready && !p.closed && !p.busy[control]
}

func resultOf(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, sequence.ErrCancelled), errors.Is(err, ErrClosed):
		return ResultCancelled
	}
	return ResultFailed
}

type discard struct{}

func (discard) Append(string) {}

func itoa(n int) string {
	return strconv.Itoa(n)
}
