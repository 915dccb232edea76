// Package logging builds the structured logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/lightpanel/internal/config"
	"github.com/sweeney/lightpanel/internal/eventlog"
)

// New returns a logger writing to w at the configured level and format.
// The version is attached to every record.
func New(cfg config.LoggingConfig, w io.Writer, version string) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging level %q: %w", cfg.Level, err)
	}

	var formatter log.Formatter
	switch cfg.Format {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("logging format %q: %w", cfg.Format, config.ErrInvalid)
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "lightpanel",
	})
	if version != "" {
		logger = logger.With("version", version)
	}
	return logger, nil
}

// Mirror copies every event-log line to logger at info level until the
// returned function is called. Used when no front-end shows the log.
func Mirror(lines *eventlog.Log, logger *log.Logger) (stop func()) {
	logger = logger.WithPrefix("panel")
	return lines.Subscribe(func(e eventlog.Entry) {
		logger.Info(e.Text, "seq", e.Seq)
	})
}
