// Package record persists probe history: per-success latency samples and
// unreachable events.
package record

import (
	"time"

	"github.com/doridoridoriand/pingalert/internal/config"
)

const (
	timestampLayout = "02.01.2006 15:04:05"
	eventDateLayout = "02.01.2006"
	eventTimeLayout = "15:04"
)

// LatencyRecorder stores one latency sample per successful probe.
type LatencyRecorder interface {
	Record(device config.Device, latencyMs int, at time.Time)
}

// EventLog stores unreachable events.
type EventLog interface {
	LogUnreachable(device config.Device, at time.Time)
}

// Multi forwards each call to every non-nil recorder it holds.
type Multi struct {
	Latency []LatencyRecorder
	Events  []EventLog
}

func (m Multi) Record(device config.Device, latencyMs int, at time.Time) {
	for _, r := range m.Latency {
		if r != nil {
			r.Record(device, latencyMs, at)
		}
	}
}

func (m Multi) LogUnreachable(device config.Device, at time.Time) {
	for _, e := range m.Events {
		if e != nil {
			e.LogUnreachable(device, at)
		}
	}
}

// FormatEventLine renders the unreachable log line for device at the given time.
func FormatEventLine(device config.Device, at time.Time) string {
	return device.IP + " - " + device.Name +
		" (Unreachable on " + at.Format(eventDateLayout) + " at " + at.Format(eventTimeLayout) + ")\n"
}
