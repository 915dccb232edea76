package panel

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/lightpanel/internal/sequence"
)

// Control names a front-end trigger that is disabled while its operation
// is queued or running.
type Control string

const (
	ControlProgram  Control = "program"
	ControlAllocate Control = "allocate"
)

// PlayControl is the control of the play button for one sheet cell.
func PlayControl(channel, scene int) Control {
	return Control("play:" + itoa(channel) + ":" + itoa(scene))
}

// Result is the terminal state of an operation.
type Result string

const (
	ResultOK        Result = "ok"
	ResultFailed    Result = "failed"
	ResultCancelled Result = "cancelled"
)

// Record describes an operation for observers.
type Record struct {
	ID       uint64
	Name     string
	Control  Control
	Queued   time.Time
	Started  time.Time
	Finished time.Time
	Result   Result
	Err      error
}

// Operation is a queued sequence. Done is closed when it has finished.
type Operation struct {
	id      uint64
	name    string
	control Control
	seq     sequence.Sequence

	mu       sync.Mutex
	queued   time.Time
	started  time.Time
	finished time.Time
	err      error
	done     chan struct{}
}

func newOperation(id uint64, name string, control Control, seq sequence.Sequence, now time.Time) *Operation {
	return &Operation{
		id:      id,
		name:    name,
		control: control,
		seq:     seq,
		queued:  now,
		done:    make(chan struct{}),
	}
}

// ID returns the operation's sequence number.
func (o *Operation) ID() uint64 { return o.id }

// Name returns the operation's display name.
func (o *Operation) Name() string { return o.name }

// Done is closed once the operation has finished.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Err returns the terminal error. Only meaningful after Done is closed.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Wait blocks until the operation finishes or ctx ends.
func (o *Operation) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Record returns a snapshot for observers.
func (o *Operation) Record() Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := Record{
		ID:       o.id,
		Name:     o.name,
		Control:  o.control,
		Queued:   o.queued,
		Started:  o.started,
		Finished: o.finished,
		Err:      o.err,
	}
	if !o.finished.IsZero() {
		r.Result = resultOf(o.err)
	}
	return r
}

func (o *Operation) start(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = now
}

func (o *Operation) finish(now time.Time, err error) {
	o.mu.Lock()
	o.finished = now
	o.err = err
	o.mu.Unlock()
	close(o.done)
}
