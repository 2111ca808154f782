package events

import (
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
)

// Event type identifiers for kelindar/event.
const (
	TypeStreamMsg uint32 = iota + 1
	TypeStreamState
	TypeStreamStats
	TypeStreamChanged
	TypeProfileReloaded
	TypeLogEntry
)

// Event is what kelindar/event dispatches.
type Event interface {
	Type() uint32
}

// StreamMsgEvent carries one message drained from a stream's channel.
type StreamMsgEvent struct {
	StreamID  string          `json:"stream_id" example:"main" doc:"Stream identifier"`
	Msg       dawio.StreamMsg `json:"msg" doc:"Stream message"`
	Timestamp time.Time       `json:"timestamp" doc:"When the message was drained"`
}

func (e StreamMsgEvent) Type() uint32 { return TypeStreamMsg }

// StreamStateEvent is published when a stream is started or stops.
type StreamStateEvent struct {
	StreamID   string        `json:"stream_id" example:"main" doc:"Stream identifier"`
	State      string        `json:"state" example:"running" doc:"Lifecycle state"`
	Backend    dawio.Backend `json:"backend,omitempty" example:"jack" doc:"Audio backend"`
	SampleRate uint32        `json:"sample_rate,omitempty" example:"48000" doc:"Sample rate in Hz"`
	Error      string        `json:"error,omitempty" doc:"Why the stream stopped, if it failed"`
	Timestamp  time.Time     `json:"timestamp"`
}

func (e StreamStateEvent) Type() uint32 { return TypeStreamState }

// StreamStatsEvent is a periodic snapshot of the engine counters.
type StreamStatsEvent struct {
	StreamID  string      `json:"stream_id" example:"main" doc:"Stream identifier"`
	Stats     dawio.Stats `json:"stats"`
	Timestamp time.Time   `json:"timestamp"`
}

func (e StreamStatsEvent) Type() uint32 { return TypeStreamStats }

// StreamChangedEvent is published after a live reconfiguration succeeded.
type StreamChangedEvent struct {
	StreamID  string           `json:"stream_id" example:"main" doc:"Stream identifier"`
	Change    string           `json:"change" example:"block-size" doc:"What was changed: ports, jack-ports, block-size or midi"`
	Info      dawio.StreamInfo `json:"info" doc:"Stream info after the change"`
	Timestamp time.Time        `json:"timestamp"`
}

func (e StreamChangedEvent) Type() uint32 { return TypeStreamChanged }

// ProfileReloadedEvent reports how a profile file reload was applied.
type ProfileReloadedEvent struct {
	StreamID  string    `json:"stream_id" example:"main" doc:"Stream identifier"`
	Path      string    `json:"path" doc:"Profile path"`
	Applied   []string  `json:"applied,omitempty" doc:"Changes applied to the running stream"`
	Restart   []string  `json:"restart,omitempty" doc:"Changed keys that need a restart"`
	Error     string    `json:"error,omitempty" doc:"Load or apply failure"`
	Timestamp time.Time `json:"timestamp"`
}

func (e ProfileReloadedEvent) Type() uint32 { return TypeProfileReloaded }

// LogEntryEvent is a log record forwarded to SSE clients.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"alsa" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
