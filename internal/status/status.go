// Package status provides a thread-safe status tracker for the lightpanel
// daemon. It is read by the HTTP handlers, the TUI and the MQTT system
// events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/lightpanel/internal/panel"
)

// Config contains daemon configuration for display.
type Config struct {
	Driver   string
	Endpoint string
	Broker   string
	HTTPAddr string
	Channels int
}

// Hardware describes the backend chosen at startup.
type Hardware struct {
	Driver    string
	Simulated bool
	Fallback  string // why simulation replaced the requested driver
}

// Counts tallies finished operations by result.
type Counts struct {
	Completed int
	Failed    int
	Cancelled int
}

// PanelSource supplies the live panel view.
type PanelSource interface {
	Status() panel.Status
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Hardware      Hardware
	Counts        Counts
	Last          *panel.Record
	Panel         panel.Status
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. It observes the
// panel's operations.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	source PanelSource
	now    func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetSource attaches the panel whose live state is merged into snapshots.
func (t *Tracker) SetSource(src PanelSource) {
	t.mu.Lock()
	t.source = src
	t.mu.Unlock()
}

// SetHardware records the selected backend.
func (t *Tracker) SetHardware(hw Hardware) {
	t.mu.Lock()
	t.snap.Hardware = hw
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// OperationStarted implements panel.Observer.
func (t *Tracker) OperationStarted(panel.Record) {}

// OperationFinished implements panel.Observer.
func (t *Tracker) OperationFinished(rec panel.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch rec.Result {
	case panel.ResultOK:
		t.snap.Counts.Completed++
	case panel.ResultCancelled:
		t.snap.Counts.Cancelled++
	default:
		t.snap.Counts.Failed++
	}
	t.snap.Last = &rec
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	src := t.source
	t.mu.RUnlock()

	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	if src != nil {
		s.Panel = src.Status()
	}
	s.Now = t.now()
	return s
}
