package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Ready         bool           `json:"ready"`
	Word          string         `json:"word"`
	Energized     []int          `json:"energized"`
	Running       string         `json:"running,omitempty"`
	Queued        int            `json:"queued"`
	Busy          []string       `json:"busy"`
	Debug         bool           `json:"debug"`
	Waiting       bool           `json:"waiting"`
	HoldMs        int64          `json:"hold_ms"`
	SettleMs      int64          `json:"settle_ms"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	Hardware      HardwareJSON   `json:"hardware"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        CountsJSON     `json:"operation_counts"`
	Last          *OperationJSON `json:"last_operation,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// HardwareJSON reports the backend in use.
type HardwareJSON struct {
	Driver    string `json:"driver"`
	Simulated bool   `json:"simulated"`
	Fallback  string `json:"fallback,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of operation counts.
type CountsJSON struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// OperationJSON describes the last finished operation.
type OperationJSON struct {
	ID       uint64 `json:"id"`
	Name     string `json:"name"`
	Result   string `json:"result"`
	Error    string `json:"error,omitempty"`
	Finished string `json:"finished"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Driver   string `json:"driver"`
	Endpoint string `json:"endpoint"`
	Broker   string `json:"broker"`
	HTTPAddr string `json:"http_addr"`
	Channels int    `json:"channels"`
}

func buildInner(snap Snapshot) StatusInner {
	p := snap.Panel
	busy := make([]string, len(p.Busy))
	for i, c := range p.Busy {
		busy[i] = string(c)
	}
	energized := p.Energized
	if energized == nil {
		energized = []int{}
	}

	inner := StatusInner{
		Ready:         p.Ready,
		Word:          p.Word,
		Energized:     energized,
		Running:       p.Running,
		Queued:        p.Queued,
		Busy:          busy,
		Debug:         p.Debug,
		Waiting:       p.Waiting,
		HoldMs:        p.Hold.Milliseconds(),
		SettleMs:      p.Settle.Milliseconds(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Hardware: HardwareJSON{
			Driver:    snap.Hardware.Driver,
			Simulated: snap.Hardware.Simulated,
			Fallback:  snap.Hardware.Fallback,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Completed: snap.Counts.Completed,
			Failed:    snap.Counts.Failed,
			Cancelled: snap.Counts.Cancelled,
		},
		Config: ConfigJSON{
			Driver:   snap.Config.Driver,
			Endpoint: snap.Config.Endpoint,
			Broker:   snap.Config.Broker,
			HTTPAddr: snap.Config.HTTPAddr,
			Channels: snap.Config.Channels,
		},
	}

	if l := snap.Last; l != nil {
		inner.Last = &OperationJSON{
			ID:       l.ID,
			Name:     l.Name,
			Result:   string(l.Result),
			Finished: l.Finished.UTC().Format(time.RFC3339),
		}
		if l.Err != nil {
			inner.Last.Error = l.Err.Error()
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
