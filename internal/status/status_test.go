package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/lightpanel/internal/panel"
)

type fakeSource struct {
	st panel.Status
}

func (f fakeSource) Status() panel.Status { return f.st }

func TestNewTracker(t *testing.T) {
	start := time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC)
	cfg := Config{Driver: "auto", Broker: "tcp://localhost:1883", HTTPAddr: ":8080", Channels: 18}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.Channels != 18 {
		t.Errorf("Config.Channels: got %d, want 18", snap.Config.Channels)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.Last != nil {
		t.Error("expected no last operation initially")
	}
}

func TestOperationCounts(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.OperationFinished(panel.Record{ID: 1, Name: "Program Mode", Result: panel.ResultOK})
	tr.OperationFinished(panel.Record{ID: 2, Name: "Reset", Result: panel.ResultFailed, Err: errors.New("bus")})
	tr.OperationFinished(panel.Record{ID: 3, Name: "Allocate zone 1", Result: panel.ResultCancelled})
	tr.OperationFinished(panel.Record{ID: 4, Name: "Toggle R1", Result: panel.ResultOK})

	snap := tr.Snapshot()
	if snap.Counts != (Counts{Completed: 2, Failed: 1, Cancelled: 1}) {
		t.Errorf("counts = %+v", snap.Counts)
	}
	if snap.Last == nil || snap.Last.ID != 4 {
		t.Errorf("last = %+v", snap.Last)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotMergesPanel(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetSource(fakeSource{st: panel.Status{Ready: true, Word: "0xFDFE", Energized: []int{0, 9}}})
	tr.SetHardware(Hardware{Driver: "simulated", Simulated: true, Fallback: "no usb device"})

	snap := tr.Snapshot()
	if !snap.Panel.Ready || snap.Panel.Word != "0xFDFE" {
		t.Errorf("panel = %+v", snap.Panel)
	}
	if !snap.Hardware.Simulated {
		t.Error("expected simulated hardware")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.OperationFinished(panel.Record{ID: 1, Result: panel.ResultOK})

	snap1 := tr.Snapshot()
	snap1.Last.ID = 99

	tr.OperationFinished(panel.Record{ID: 2, Result: panel.ResultOK})

	if snap1.Counts.Completed != 1 {
		t.Error("snapshot should be a copy; counts were modified")
	}
	if got := tr.Snapshot().Last.ID; got != 2 {
		t.Errorf("tracker last id = %d, want 2", got)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Panel: panel.Status{
			Ready:     true,
			Word:      "0xFFFB",
			Energized: []int{2},
			Running:   "Program Mode",
			Busy:      []panel.Control{panel.ControlProgram},
			Hold:      500 * time.Millisecond,
			Settle:    time.Second,
		},
		Hardware:      Hardware{Driver: "gpiocdev"},
		Counts:        Counts{Completed: 5, Failed: 1},
		Last:          &panel.Record{ID: 6, Name: "Reset", Result: panel.ResultFailed, Err: errors.New("write failed"), Finished: start},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{Broker: "tcp://localhost:1883", HTTPAddr: ":8080"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if !s.Ready || s.Word != "0xFFFB" || len(s.Energized) != 1 || s.Energized[0] != 2 {
		t.Errorf("relay fields = %+v", s)
	}
	if s.HoldMs != 500 || s.SettleMs != 1000 {
		t.Errorf("timing: hold %d settle %d", s.HoldMs, s.SettleMs)
	}
	if len(s.Busy) != 1 || s.Busy[0] != "program" {
		t.Errorf("busy = %v", s.Busy)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Counts.Completed != 5 || s.Counts.Failed != 1 {
		t.Errorf("counts = %+v", s.Counts)
	}
	if s.Last == nil || s.Last.Error != "write failed" || s.Last.Result != "failed" {
		t.Errorf("last = %+v", s.Last)
	}
	if s.Event != "" || s.Reason != "" {
		t.Error("expected no event/reason in web format")
	}
}

func TestFormatJSONEmptyLists(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC),
		Now:       time.Date(2024, 7, 1, 18, 0, 1, 0, time.UTC),
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["status"]["energized"].([]any); !ok {
		t.Errorf("energized should be an empty list, got %v", raw["status"]["energized"])
	}
	if _, exists := raw["status"]["last_operation"]; exists {
		t.Error("last_operation should be omitted")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Hardware:  Hardware{Driver: "simulated", Simulated: true},
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason = %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
	if !parsed.Status.Hardware.Simulated {
		t.Error("expected simulated flag")
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC),
		Now:       time.Date(2024, 7, 1, 18, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]any
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]any)
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetSource(fakeSource{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.OperationFinished(panel.Record{ID: uint64(i), Result: panel.ResultOK})
			tr.SetMQTTConnected(i%2 == 0)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
