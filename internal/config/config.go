// Package config loads the panel configuration from YAML with environment
// overrides.
//
// Precedence, lowest first: built-in defaults, the YAML file,
// LIGHTPANEL_* environment variables, then whatever the caller applies
// (command-line flags) before calling Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/lightpanel/internal/eventlog"
	"github.com/sweeney/lightpanel/internal/gpio"
	"github.com/sweeney/lightpanel/internal/mqtt"
	"github.com/sweeney/lightpanel/internal/panel"
	"github.com/sweeney/lightpanel/internal/sequence"
	"github.com/sweeney/lightpanel/internal/sheet"
)

// DefaultPath is the file read when no -config flag is given. Its absence
// is not an error.
const DefaultPath = "lightpanel.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LIGHTPANEL_"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete runtime configuration.
type Config struct {
	GPIO     GPIOConfig     `yaml:"gpio"`
	Timing   TimingConfig   `yaml:"timing"`
	Sheet    SheetConfig    `yaml:"sheet"`
	Store    StoreConfig    `yaml:"store"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
	EventLog EventLogConfig `yaml:"eventlog"`
	Panel    PanelConfig    `yaml:"panel"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GPIOConfig selects the relay backend.
type GPIOConfig struct {
	Driver    string `yaml:"driver"`
	Endpoint  string `yaml:"endpoint"`
	Lines     []int  `yaml:"lines"`
	Direction uint16 `yaml:"direction"`
	Frequency int    `yaml:"frequency"`
	ProbeUSB  bool   `yaml:"probe_usb"`
	Strict    bool   `yaml:"strict"`
	SysfsRoot string `yaml:"sysfs_root"`
}

// TimingConfig holds the pulse hold and the inter-step settle delay.
type TimingConfig struct {
	Hold   time.Duration `yaml:"hold"`
	Settle time.Duration `yaml:"settle"`
}

// SheetConfig sizes the channel table created when none is stored.
type SheetConfig struct {
	Channels int    `yaml:"channels"`
	SiteName string `yaml:"site_name"`
}

// StoreConfig locates the SQLite database. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig configures the broker link.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Buffer      int    `yaml:"buffer"`
}

// HTTPConfig configures the web surface. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// EventLogConfig bounds the operator log.
type EventLogConfig struct {
	Capacity int `yaml:"capacity"`
}

// PanelConfig sizes the sequencer queue.
type PanelConfig struct {
	Queue int `yaml:"queue"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Driver:    gpio.DriverAuto,
			Endpoint:  "gpiochip0",
			Lines:     gpio.DefaultLines(),
			Direction: gpio.DefaultDirection,
			Frequency: gpio.DefaultFrequency,
			ProbeUSB:  true,
			SysfsRoot: gpio.DefaultSysfsRoot,
		},
		Timing: TimingConfig{
			Hold:   sequence.DefaultHold,
			Settle: sequence.DefaultSettle,
		},
		Sheet: SheetConfig{
			Channels: sheet.DefaultChannels,
		},
		Store: StoreConfig{
			Path: "lightpanel.db",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "lightpanel",
			TopicPrefix: mqtt.DefaultPrefix,
			Buffer:      mqtt.DefaultBuffer,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		EventLog: EventLogConfig{
			Capacity: eventlog.DefaultCapacity,
		},
		Panel: PanelConfig{
			Queue: panel.DefaultQueueSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// When mustExist is false a missing file yields the defaults. Load does
// not validate; callers apply their own overrides first.
func Load(path string, mustExist bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !mustExist:
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies LIGHTPANEL_SECTION_KEY overrides.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []string
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("GPIO_DRIVER", &cfg.GPIO.Driver)
	str("GPIO_ENDPOINT", &cfg.GPIO.Endpoint)
	boolean("GPIO_PROBE_USB", &cfg.GPIO.ProbeUSB)
	boolean("GPIO_STRICT", &cfg.GPIO.Strict)
	duration("TIMING_HOLD", &cfg.Timing.Hold)
	duration("TIMING_SETTLE", &cfg.Timing.Settle)
	integer("SHEET_CHANNELS", &cfg.Sheet.Channels)
	str("SHEET_SITE_NAME", &cfg.Sheet.SiteName)
	str("STORE_PATH", &cfg.Store.Path)
	boolean("MQTT_ENABLED", &cfg.MQTT.Enabled)
	str("MQTT_BROKER", &cfg.MQTT.Broker)
	str("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	str("MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	str("LOGGING_LEVEL", &cfg.Logging.Level)
	str("LOGGING_FORMAT", &cfg.Logging.Format)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// Validate reports every problem in one error wrapping ErrInvalid.
func (c *Config) Validate() error {
	var errs []string

	switch c.GPIO.Driver {
	case gpio.DriverAuto, gpio.DriverSimulated, gpio.DriverChip, gpio.DriverRpio, gpio.DriverMCP:
	default:
		errs = append(errs, fmt.Sprintf("gpio.driver %q is not one of auto, gpiocdev, rpio, mcp23017, simulated", c.GPIO.Driver))
	}
	if n := len(c.GPIO.Lines); n != 0 && n != gpio.Width {
		errs = append(errs, fmt.Sprintf("gpio.lines must list %d offsets, got %d", gpio.Width, n))
	}
	if c.GPIO.Driver == gpio.DriverMCP && c.GPIO.Endpoint != "" {
		if _, _, err := gpio.ParseMCPEndpoint(c.GPIO.Endpoint); err != nil {
			errs = append(errs, fmt.Sprintf("gpio.endpoint: %v", err))
		}
	}
	if c.GPIO.Frequency < 0 {
		errs = append(errs, "gpio.frequency must not be negative")
	}
	if c.Timing.Hold < sequence.MinHold || c.Timing.Hold > sequence.MaxHold {
		errs = append(errs, fmt.Sprintf("timing.hold must be between %v and %v", sequence.MinHold, sequence.MaxHold))
	}
	if c.Timing.Settle < 0 {
		errs = append(errs, "timing.settle must not be negative")
	}
	if c.Sheet.Channels < 1 || c.Sheet.Channels > sheet.MaxChannels {
		errs = append(errs, fmt.Sprintf("sheet.channels must be between 1 and %d", sheet.MaxChannels))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.Buffer < 0 {
		errs = append(errs, "mqtt.buffer must not be negative")
	}
	if c.EventLog.Capacity < 1 {
		errs = append(errs, "eventlog.capacity must be positive")
	}
	if c.Panel.Queue < 1 {
		errs = append(errs, "panel.queue must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q is not one of text, json, logfmt", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// GPIOOptions converts the gpio section for gpio.Open.
func (c *Config) GPIOOptions() gpio.Options {
	return gpio.Options{
		Driver:    c.GPIO.Driver,
		Endpoint:  c.GPIO.Endpoint,
		Lines:     append([]int(nil), c.GPIO.Lines...),
		Direction: c.GPIO.Direction,
		Frequency: c.GPIO.Frequency,
		ProbeUSB:  c.GPIO.ProbeUSB,
		SysfsRoot: c.GPIO.SysfsRoot,
		Strict:    c.GPIO.Strict,
	}
}

// SequenceTiming converts the timing section for the engine.
func (c *Config) SequenceTiming() sequence.Timing {
	return sequence.Timing{Hold: c.Timing.Hold, Settle: c.Timing.Settle}
}
