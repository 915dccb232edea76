// Command lightpanel drives a lighting control keypad through a 16-bit relay
// board and serves the panel over HTTP, MQTT and a terminal UI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/hubertat/servicemaker"

	"github.com/sweeney/lightpanel/internal/config"
	"github.com/sweeney/lightpanel/internal/eventlog"
	"github.com/sweeney/lightpanel/internal/gpio"
	"github.com/sweeney/lightpanel/internal/logging"
	"github.com/sweeney/lightpanel/internal/mqtt"
	"github.com/sweeney/lightpanel/internal/panel"
	"github.com/sweeney/lightpanel/internal/relay"
	"github.com/sweeney/lightpanel/internal/sequence"
	"github.com/sweeney/lightpanel/internal/sheet"
	"github.com/sweeney/lightpanel/internal/status"
	"github.com/sweeney/lightpanel/internal/store"
	"github.com/sweeney/lightpanel/internal/tui"
	"github.com/sweeney/lightpanel/internal/web"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// tuiLogFile receives structured logs while the terminal UI owns the screen.
const tuiLogFile = "lightpanel.log"

var service = servicemaker.ServiceMaker{
	User:               "lightpanel",
	UserGroups:         []string{"gpio", "i2c", "plugdev"},
	ServicePath:        "/etc/systemd/system/lightpanel.service",
	ServiceDescription: "lightpanel relay sequencer",
	ExecDir:            "/srv/lightpanel",
	ExecName:           "lightpanel",
}

// flagOverrides are the command-line values applied over the loaded config.
type flagOverrides struct {
	simulate bool
	http     string
	httpSet  bool
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "YAML configuration file")
	simulate := flag.Bool("simulate", false, "Force the simulated relay backend")
	httpAddr := flag.String("http", "", `HTTP listen address (overrides config, "off" disables)`)
	useTUI := flag.Bool("tui", false, "Run the terminal UI instead of headless mode")
	install := flag.Bool("install", false, "Install the systemd service and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println("lightpanel", Version)
		return
	}

	if *install {
		if err := service.InstallService(); err != nil {
			log.Fatal("install service", "err", err)
		}
		log.Info("service installed", "path", service.ServicePath)
		return
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.Load(*configPath, set["config"])
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	applyFlags(cfg, flagOverrides{simulate: *simulate, http: *httpAddr, httpSet: set["http"]})
	if err := cfg.Validate(); err != nil {
		log.Fatal("config", "err", err)
	}

	if err := run(cfg, *useTUI); err != nil {
		log.Fatal("fatal", "err", err)
	}
}

// applyFlags lays command-line overrides over cfg.
func applyFlags(cfg *config.Config, f flagOverrides) {
	if f.simulate {
		cfg.GPIO.Driver = gpio.DriverSimulated
	}
	if f.httpSet {
		if f.http == "off" {
			cfg.HTTP.Addr = ""
		} else {
			cfg.HTTP.Addr = f.http
		}
	}
}

func run(cfg *config.Config, useTUI bool) error {
	var logOut io.Writer = os.Stderr
	if useTUI {
		f, err := os.OpenFile(tuiLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := logging.New(cfg.Logging, logOut, Version)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	d, err := newDaemon(cfg, logger, time.Now())
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- d.panel.Run(ctx) }()
	defer func() {
		cancel()
		<-runDone
	}()

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Enabled {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			Topics:             mqtt.NewTopics(cfg.MQTT.TopicPrefix),
			Buffer:             cfg.MQTT.Buffer,
			Logger:             logger,
			OnConnectionChange: d.tracker.SetMQTTConnected,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer rp.Close()
		publisher, mqttStatus = rp, rp
		stop := mqtt.Forward(d.events, rp, func(err error) {
			logger.Warn("forward log line", "err", err)
		})
		defer stop()
	}

	publishStartup(publisher, mqttStatus, d, logger)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, web.Deps{
			Panel:   d.panel,
			Tracker: d.tracker,
			Events:  d.events,
			Table:   d.table,
			Logger:  logger,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http listening", "addr", cfg.HTTP.Addr)
	}

	logger.Info("started",
		"driver", d.selection.Driver,
		"simulated", d.selection.Simulated,
		"hold", cfg.Timing.Hold,
		"settle", cfg.Timing.Settle,
		"channels", d.table.Len())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var exit <-chan struct{}
	if useTUI {
		var p *tea.Program
		p, exit = runTUI(d, logger)
		defer func() {
			p.Quit()
			<-exit
		}()
	} else {
		stop := logging.Mirror(d.events, logger)
		defer stop()
	}

	return runLoop(d, publisher, mqttStatus, sigCh, exit, logger)
}

// runTUI starts the terminal UI. The returned channel is closed when the
// program exits.
func runTUI(d *daemon, logger *log.Logger) (*tea.Program, <-chan struct{}) {
	m := tui.New(d.panel, d.events, d.table, tui.Hardware{
		Driver:    d.selection.Driver,
		Simulated: d.selection.Simulated,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	exit := make(chan struct{})
	go func() {
		defer close(exit)
		if _, err := p.Run(); err != nil {
			logger.Error("tui", "err", err)
		}
	}()
	return p, exit
}

// runLoop blocks until a signal arrives or exit closes, then releases the
// relays and publishes the SHUTDOWN event. publisher may be nil.
func runLoop(d *daemon, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, sig <-chan os.Signal, exit <-chan struct{}, logger *log.Logger) error {
	reason := "QUIT"
	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s)
		reason = signalName(s)
	case <-exit:
		logger.Info("shutting down", "reason", "tui quit")
	}

	if err := d.panel.AllOff(); err != nil {
		logger.Error("release relays", "err", err)
	}

	if publisher == nil {
		return nil
	}
	if mqttStatus != nil {
		d.tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	event := mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(d.tracker.Snapshot(), "SHUTDOWN", reason),
	}
	if err := publisher.PublishSystem(event); err != nil {
		logger.Warn("publish shutdown event", "err", err)
	} else {
		logger.Info("published shutdown event")
	}
	return nil
}

// publishStartup sends the retained STARTUP event and, when the requested
// hardware could not be used, a HARDWARE event naming the fallback.
func publishStartup(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, d *daemon, logger *log.Logger) {
	if publisher == nil {
		return
	}
	if mqttStatus != nil {
		d.tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	if err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}); err != nil {
		logger.Warn("publish startup event", "err", err)
	}

	if d.selection.Fallback == nil {
		return
	}
	reason := d.selection.Fallback.Error()
	if err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "HARDWARE",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "HARDWARE", reason),
	}); err != nil {
		logger.Warn("publish hardware event", "err", err)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// daemon holds the wired components.
type daemon struct {
	cfg       *config.Config
	logger    *log.Logger
	events    *eventlog.Log
	selection gpio.Selection
	bank      *relay.Bank
	table     *sheet.Table
	store     *store.Store
	tracker   *status.Tracker
	panel     *panel.Panel
	now       func() time.Time
}

// newDaemon opens the hardware and persistence and wires the panel. The
// relay word is forced to all-off before the panel is marked ready.
func newDaemon(cfg *config.Config, logger *log.Logger, start time.Time) (*daemon, error) {
	d := &daemon{
		cfg:    cfg,
		logger: logger,
		events: eventlog.New(cfg.EventLog.Capacity),
		now:    time.Now,
	}

	sel, err := gpio.Open(cfg.GPIOOptions(), d.events)
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	d.selection = sel
	if sel.Fallback != nil {
		logger.Warn("hardware unavailable, simulating", "driver", cfg.GPIO.Driver, "err", sel.Fallback)
	} else {
		logger.Info("backend selected", "driver", sel.Driver)
	}

	d.bank = relay.NewBank(sel.Backend)
	if err := d.bank.AllOff(); err != nil {
		sel.Backend.Close()
		return nil, fmt.Errorf("initial all-off: %w", err)
	}
	announceHardware(d.events, sel)

	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path, logger)
		if err != nil {
			sel.Backend.Close()
			return nil, err
		}
		d.store = st
	}

	d.table, err = loadTable(cfg.Sheet, d.store, logger)
	if err != nil {
		d.Close()
		return nil, err
	}
	if d.store != nil {
		d.table.OnChange(d.store.SheetChanged)
	}

	gate := sequence.NewGate(d.events)
	engine := sequence.NewEngine(d.bank, d.events,
		sequence.WithCheckpoint(gate),
		sequence.WithTiming(cfg.SequenceTiming()))

	d.tracker = status.NewTracker(start, status.Config{
		Driver:   sel.Driver,
		Endpoint: cfg.GPIO.Endpoint,
		Broker:   mqttBroker(cfg.MQTT),
		HTTPAddr: cfg.HTTP.Addr,
		Channels: d.table.Len(),
	})
	hw := status.Hardware{Driver: sel.Driver, Simulated: sel.Simulated}
	if sel.Fallback != nil {
		hw.Fallback = sel.Fallback.Error()
	}
	d.tracker.SetHardware(hw)

	observers := []panel.Observer{d.tracker}
	if d.store != nil {
		observers = append(observers, d.store)
	}
	d.panel = panel.New(panel.Config{
		Engine:    engine,
		Bank:      d.bank,
		Table:     d.table,
		Gate:      gate,
		Events:    d.events,
		Log:       logger,
		Observers: observers,
		QueueSize: cfg.Panel.Queue,
	})
	d.tracker.SetSource(d.panel)
	d.panel.SetReady(true)
	return d, nil
}

// Close releases the relays and closes the backend and the store.
func (d *daemon) Close() error {
	var errs []error
	if d.bank != nil {
		if err := d.bank.AllOff(); err != nil {
			errs = append(errs, fmt.Errorf("final all-off: %w", err))
		}
	}
	if d.selection.Backend != nil {
		if err := d.selection.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend: %w", err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// announceHardware writes the operator-facing readiness line.
func announceHardware(events *eventlog.Log, sel gpio.Selection) {
	switch {
	case sel.Fallback != nil:
		events.Append("[SIMULATION] Hardware not available, running in simulation mode")
	case sel.Simulated:
		events.Append("[SIMULATION] Hardware initialized in simulation mode. All relays OFF.")
	default:
		events.Append("Hardware initialized. All relays OFF.")
	}
}

// loadTable restores the stored sheet or creates a default one.
func loadTable(cfg config.SheetConfig, st *store.Store, logger *log.Logger) (*sheet.Table, error) {
	if st != nil {
		sh, ok, err := st.LoadSheet()
		if err != nil {
			return nil, fmt.Errorf("load sheet: %w", err)
		}
		if ok {
			logger.Info("sheet restored", "channels", len(sh.Rows))
			return sheet.NewTable(sh), nil
		}
	}
	sh, err := sheet.New(cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	sh.SiteName = cfg.SiteName
	t := sheet.NewTable(sh)
	if st != nil {
		if err := st.SaveSheet(sh); err != nil {
			return nil, fmt.Errorf("save sheet: %w", err)
		}
	}
	return t, nil
}

func mqttBroker(cfg config.MQTTConfig) string {
	if !cfg.Enabled {
		return ""
	}
	return cfg.Broker
}
