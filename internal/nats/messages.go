package nats

import (
	"encoding/json"
	"fmt"

	"github.com/smazurov/dawio/pkg/dawio"
)

// Subject prefixes for NATS topics.
const (
	SubjectStreamsPrefix = "dawio.streams"
	SubjectControlPrefix = "dawio.control"
)

// Control commands, the last subject token under SubjectControlPrefix.
const (
	CommandPorts     = "ports"
	CommandJackPorts = "jack-ports"
	CommandBlockSize = "block-size"
	CommandMidi      = "midi"
	CommandRestart   = "restart"
)

// SubjectStreamMsgs returns the subject stream messages are published on.
func SubjectStreamMsgs(streamID string) string {
	return fmt.Sprintf("%s.%s.msgs", SubjectStreamsPrefix, streamID)
}

// SubjectStreamState returns the subject for lifecycle changes.
func SubjectStreamState(streamID string) string {
	return fmt.Sprintf("%s.%s.state", SubjectStreamsPrefix, streamID)
}

// SubjectStreamStats returns the subject for counter snapshots.
func SubjectStreamStats(streamID string) string {
	return fmt.Sprintf("%s.%s.stats", SubjectStreamsPrefix, streamID)
}

// SubjectControl returns the subject of one control command.
func SubjectControl(streamID, command string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectControlPrefix, streamID, command)
}

// PortsCommand selects device channels. A nil side keeps its selection.
type PortsCommand struct {
	Inputs  *[]int `json:"inputs,omitempty"`
	Outputs *[]int `json:"outputs,omitempty"`
}

// JackPortsCommand selects Jack system ports by full name.
type JackPortsCommand struct {
	Inputs  *[]string `json:"inputs,omitempty"`
	Outputs *[]string `json:"outputs,omitempty"`
}

// BlockSizeCommand changes the largest block handed to the handler.
type BlockSizeCommand struct {
	Frames uint32 `json:"frames"`
}

// MidiPort references one port of a MIDI device.
type MidiPort struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier,omitempty"`
	Port       int    `json:"port,omitempty"`
}

// MidiCommand opens and closes MIDI ports.
type MidiCommand struct {
	Inputs  *[]MidiPort `json:"inputs,omitempty"`
	Outputs *[]MidiPort `json:"outputs,omitempty"`
}

func midiConfigs(ports *[]MidiPort) *[]dawio.MidiPortConfig {
	if ports == nil {
		return nil
	}
	out := make([]dawio.MidiPortConfig, 0, len(*ports))
	for _, p := range *ports {
		out = append(out, dawio.MidiPortConfig{
			DeviceID:  dawio.DeviceID{Name: p.Name, Identifier: p.Identifier},
			PortIndex: p.Port,
		})
	}
	return &out
}

// Reply answers a control request.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"` // change error kind, when the stream refused
}

// Marshal serializes the reply to JSON.
func (r Reply) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalReply deserializes a Reply from JSON.
func UnmarshalReply(data []byte) (Reply, error) {
	var r Reply
	err := json.Unmarshal(data, &r)
	return r, err
}

func replyFor(err error) Reply {
	if err == nil {
		return Reply{OK: true}
	}
	r := Reply{Error: err.Error()}
	if kind, ok := dawio.ChangeKind(err); ok {
		r.Kind = kind.String()
	}
	return r
}
