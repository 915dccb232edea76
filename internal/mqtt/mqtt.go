// Package mqtt forwards the panel's event log and lifecycle events to a
// broker, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/lightpanel/internal/eventlog"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "lightpanel"

// Topics holds the fully qualified topic names.
type Topics struct {
	Log    string
	System string
}

// NewTopics derives the topic names from prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Log:    prefix + "/log",
		System: prefix + "/system",
	}
}

// Publisher publishes panel activity to MQTT.
type Publisher interface {
	// PublishLog sends one event-log line. It must not block: it is called
	// from the event log's subscriber hook.
	PublishLog(entry eventlog.Entry) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a lifecycle event (STARTUP, SHUTDOWN, HARDWARE).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // if set, FormatSystemPayload returns it as is
	Retained   bool
}

// LogPayload is the message body published for an event-log line.
type LogPayload struct {
	Log LogPayloadInner `json:"log"`
}

// LogPayloadInner contains the line details.
type LogPayloadInner struct {
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// FormatLogPayload creates the JSON payload for an event-log line.
func FormatLogPayload(entry eventlog.Entry) ([]byte, error) {
	return json.Marshal(LogPayload{
		Log: LogPayloadInner{
			Seq:       entry.Seq,
			Timestamp: entry.Time.UTC().Format(time.RFC3339Nano),
			Text:      entry.Text,
		},
	})
}

// SystemPayload is the body of simple system events that carry no status
// snapshot, such as the last-will message.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// Forward publishes every line appended to lines from now on. Publish
// errors are passed to onError when it is non-nil. The returned function
// stops forwarding.
func Forward(lines *eventlog.Log, pub Publisher, onError func(error)) (stop func()) {
	return lines.Subscribe(func(e eventlog.Entry) {
		if err := pub.PublishLog(e); err != nil && onError != nil {
			onError(err)
		}
	})
}
