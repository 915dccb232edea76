package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/lightpanel/internal/config"
	"github.com/sweeney/lightpanel/internal/eventlog"
	"github.com/sweeney/lightpanel/internal/gpio"
	"github.com/sweeney/lightpanel/internal/mqtt"
	"github.com/sweeney/lightpanel/internal/relay"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.GPIO.Driver = gpio.DriverSimulated
	cfg.Store.Path = filepath.Join(t.TempDir(), "lightpanel.db")
	cfg.HTTP.Addr = ""
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config) *daemon {
	t.Helper()
	d, err := newDaemon(cfg, log.New(io.Discard), time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}
	return d
}

func hasLine(l *eventlog.Log, want string) bool {
	for _, line := range l.Lines() {
		if line == want {
			return true
		}
	}
	return false
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name       string
		flags      flagOverrides
		wantDriver string
		wantAddr   string
	}{
		{"none", flagOverrides{}, gpio.DriverAuto, ":8080"},
		{"simulate", flagOverrides{simulate: true}, gpio.DriverSimulated, ":8080"},
		{"http addr", flagOverrides{http: ":9090", httpSet: true}, gpio.DriverAuto, ":9090"},
		{"http off", flagOverrides{http: "off", httpSet: true}, gpio.DriverAuto, ""},
		{"http empty but unset", flagOverrides{http: ""}, gpio.DriverAuto, ":8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			applyFlags(cfg, tt.flags)
			if cfg.GPIO.Driver != tt.wantDriver {
				t.Errorf("driver: got %q, want %q", cfg.GPIO.Driver, tt.wantDriver)
			}
			if cfg.HTTP.Addr != tt.wantAddr {
				t.Errorf("addr: got %q, want %q", cfg.HTTP.Addr, tt.wantAddr)
			}
		})
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("SIGINT: got %q", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("SIGTERM: got %q", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("SIGHUP: got %q", got)
	}
}

func TestNewDaemonSimulated(t *testing.T) {
	d := newTestDaemon(t, testConfig(t))
	defer d.Close()

	if !d.selection.Simulated || d.selection.Fallback != nil {
		t.Fatalf("selection: %+v", d.selection)
	}
	if !d.panel.Ready() {
		t.Error("panel should be ready")
	}
	if d.bank.Word() != relay.Off {
		t.Errorf("word: got %04X, want FFFF", uint16(d.bank.Word()))
	}
	if !hasLine(d.events, "[SIMULATION] Hardware initialized in simulation mode. All relays OFF.") {
		t.Errorf("missing readiness line in %q", d.events.Lines())
	}
	if d.table.Len() != 18 {
		t.Errorf("channels: got %d, want 18", d.table.Len())
	}

	snap := d.tracker.Snapshot()
	if snap.Hardware.Driver != gpio.DriverSimulated || !snap.Hardware.Simulated {
		t.Errorf("hardware: %+v", snap.Hardware)
	}
}

func TestNewDaemonFallsBackWithoutUSB(t *testing.T) {
	cfg := testConfig(t)
	cfg.GPIO.Driver = gpio.DriverAuto
	cfg.GPIO.ProbeUSB = true
	cfg.GPIO.SysfsRoot = t.TempDir()

	d := newTestDaemon(t, cfg)
	defer d.Close()

	if d.selection.Fallback == nil {
		t.Fatal("expected a fallback reason")
	}
	if !hasLine(d.events, "[SIMULATION] Hardware not available, running in simulation mode") {
		t.Errorf("missing fallback line in %q", d.events.Lines())
	}
	if d.tracker.Snapshot().Hardware.Fallback == "" {
		t.Error("tracker should carry the fallback reason")
	}
}

func TestNewDaemonStrictFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.GPIO.Driver = gpio.DriverAuto
	cfg.GPIO.ProbeUSB = true
	cfg.GPIO.SysfsRoot = t.TempDir()
	cfg.GPIO.Strict = true

	if _, err := newDaemon(cfg, log.New(io.Discard), time.Now()); !errors.Is(err, gpio.ErrInit) {
		t.Errorf("expected gpio.ErrInit, got %v", err)
	}
}

func TestSheetPersistsAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sheet.SiteName = "Main Hall"

	d := newTestDaemon(t, cfg)
	if got := d.table.Sheet().SiteName; got != "Main Hall" {
		t.Fatalf("site: got %q", got)
	}
	if err := d.table.Resize(4); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	d.table.SetSite("Studio", "2024-07-01")
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cfg.Sheet.SiteName = "ignored"
	d = newTestDaemon(t, cfg)
	defer d.Close()
	sh := d.table.Sheet()
	if sh.SiteName != "Studio" || sh.Date != "2024-07-01" {
		t.Errorf("site: got %q %q", sh.SiteName, sh.Date)
	}
	if len(sh.Rows) != 4 {
		t.Errorf("rows: got %d, want 4", len(sh.Rows))
	}
}

func TestNewDaemonWithoutStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = ""
	d := newTestDaemon(t, cfg)
	defer d.Close()
	if d.store != nil {
		t.Error("store should be disabled")
	}
}

func TestPublishStartup(t *testing.T) {
	d := newTestDaemon(t, testConfig(t))
	defer d.Close()

	pub := mqtt.NewFakePublisher()
	pub.SetConnected(true)
	publishStartup(pub, pub, d, log.New(io.Discard))

	events := pub.SystemEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(events))
	}
	if events[0].Event != "STARTUP" || !events[0].Retained {
		t.Errorf("event: %+v", events[0])
	}
	if !d.tracker.Snapshot().MQTTConnected {
		t.Error("tracker should see the connection")
	}

	var payload map[string]map[string]any
	if err := json.Unmarshal(events[0].RawPayload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["status"]["event"] != "STARTUP" {
		t.Errorf("payload event: %v", payload["status"]["event"])
	}
}

func TestPublishStartupReportsFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.GPIO.Driver = gpio.DriverAuto
	cfg.GPIO.SysfsRoot = t.TempDir()
	d := newTestDaemon(t, cfg)
	defer d.Close()

	pub := mqtt.NewFakePublisher()
	publishStartup(pub, pub, d, log.New(io.Discard))

	events := pub.SystemEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(events))
	}
	if events[1].Event != "HARDWARE" || events[1].Reason == "" {
		t.Errorf("hardware event: %+v", events[1])
	}
}

func TestPublishStartupNilPublisher(t *testing.T) {
	d := newTestDaemon(t, testConfig(t))
	defer d.Close()
	publishStartup(nil, nil, d, log.New(io.Discard))
}

func TestRunLoopShutdownOnSignal(t *testing.T) {
	d := newTestDaemon(t, testConfig(t))
	defer d.Close()

	if err := d.bank.GuardOn(); err != nil {
		t.Fatalf("GuardOn: %v", err)
	}

	pub := mqtt.NewFakePublisher()
	pub.SetConnected(true)
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM

	if err := runLoop(d, pub, pub, sig, nil, log.New(io.Discard)); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if d.bank.Word() != relay.Off {
		t.Errorf("word after shutdown: got %04X, want FFFF", uint16(d.bank.Word()))
	}
	events := pub.SystemEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(events))
	}
	if events[0].Event != "SHUTDOWN" || events[0].Reason != "SIGTERM" || !events[0].Retained {
		t.Errorf("event: %+v", events[0])
	}
	var payload map[string]map[string]any
	if err := json.Unmarshal(events[0].RawPayload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["status"]["reason"] != "SIGTERM" {
		t.Errorf("payload reason: %v", payload["status"]["reason"])
	}
}

func TestRunLoopShutdownOnExit(t *testing.T) {
	d := newTestDaemon(t, testConfig(t))
	defer d.Close()

	pub := mqtt.NewFakePublisher()
	exit := make(chan struct{})
	close(exit)

	if err := runLoop(d, pub, nil, make(chan os.Signal), exit, log.New(io.Discard)); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	events := pub.SystemEvents()
	if len(events) != 1 || events[0].Reason != "QUIT" {
		t.Fatalf("events: %+v", events)
	}
}

func TestRunLoopWithoutPublisher(t *testing.T) {
	d := newTestDaemon(t, testConfig(t))
	defer d.Close()

	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGINT
	if err := runLoop(d, nil, nil, sig, nil, log.New(io.Discard)); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if !hasLine(d.events, "All Off: all relays released") {
		t.Errorf("missing all-off line in %q", d.events.Lines())
	}
}
