package dawio

import (
	"encoding/json"
	"fmt"
)

// StreamMsgKind tags StreamMsg.
type StreamMsgKind int

// Stream message kinds.
const (
	MsgAudioInPortNotFound StreamMsgKind = iota + 1
	MsgAudioOutPortNotFound
	MsgMidiInDeviceNotFound
	MsgMidiOutDeviceNotFound
	MsgAudioDeviceDisconnected
	MsgAudioDeviceReconnected
	MsgMidiDeviceDisconnected
	MsgMidiDeviceReconnected
	MsgError
	MsgClosed
)

var msgKindNames = map[StreamMsgKind]string{
	MsgAudioInPortNotFound:     "audio_in_port_not_found",
	MsgAudioOutPortNotFound:    "audio_out_port_not_found",
	MsgMidiInDeviceNotFound:    "midi_in_device_not_found",
	MsgMidiOutDeviceNotFound:   "midi_out_device_not_found",
	MsgAudioDeviceDisconnected: "audio_device_disconnected",
	MsgAudioDeviceReconnected:  "audio_device_reconnected",
	MsgMidiDeviceDisconnected:  "midi_device_disconnected",
	MsgMidiDeviceReconnected:   "midi_device_reconnected",
	MsgError:                   "error",
	MsgClosed:                  "closed",
}

func (k StreamMsgKind) String() string {
	if name, ok := msgKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("msg(%d)", int(k))
}

// StreamMsg is an event reported by a running stream. Only the fields
// relevant to Kind are set: Name for the *NotFound kinds, Device for the
// connection kinds, Err for MsgError.
type StreamMsg struct {
	Kind   StreamMsgKind
	Name   string
	Device DeviceID
	Err    StreamError
}

// Constructors for each variant.

func AudioInPortNotFound(name string) StreamMsg {
	return StreamMsg{Kind: MsgAudioInPortNotFound, Name: name}
}

func AudioOutPortNotFound(name string) StreamMsg {
	return StreamMsg{Kind: MsgAudioOutPortNotFound, Name: name}
}

func MidiInDeviceNotFound(name string) StreamMsg {
	return StreamMsg{Kind: MsgMidiInDeviceNotFound, Name: name}
}

func MidiOutDeviceNotFound(name string) StreamMsg {
	return StreamMsg{Kind: MsgMidiOutDeviceNotFound, Name: name}
}

func AudioDeviceDisconnected(id DeviceID) StreamMsg {
	return StreamMsg{Kind: MsgAudioDeviceDisconnected, Device: id}
}

func AudioDeviceReconnected(id DeviceID) StreamMsg {
	return StreamMsg{Kind: MsgAudioDeviceReconnected, Device: id}
}

func MidiDeviceDisconnected(id DeviceID) StreamMsg {
	return StreamMsg{Kind: MsgMidiDeviceDisconnected, Device: id}
}

func MidiDeviceReconnected(id DeviceID) StreamMsg {
	return StreamMsg{Kind: MsgMidiDeviceReconnected, Device: id}
}

func ErrorMsg(err StreamError) StreamMsg {
	return StreamMsg{Kind: MsgError, Err: err}
}

func ClosedMsg() StreamMsg {
	return StreamMsg{Kind: MsgClosed}
}

func (m StreamMsg) String() string {
	switch m.Kind {
	case MsgAudioInPortNotFound, MsgAudioOutPortNotFound, MsgMidiInDeviceNotFound, MsgMidiOutDeviceNotFound:
		return fmt.Sprintf("%s(%s)", m.Kind, m.Name)
	case MsgAudioDeviceDisconnected, MsgAudioDeviceReconnected, MsgMidiDeviceDisconnected, MsgMidiDeviceReconnected:
		return fmt.Sprintf("%s(%s)", m.Kind, m.Device)
	case MsgError:
		return fmt.Sprintf("error(%s)", m.Err.Error())
	default:
		return m.Kind.String()
	}
}

// MarshalJSON renders the message for the API and NATS surfaces.
func (m StreamMsg) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind       string    `json:"kind"`
		Name       string    `json:"name,omitempty"`
		Device     *DeviceID `json:"device,omitempty"`
		Error      string    `json:"error,omitempty"`
		ErrorKind  string    `json:"error_kind,omitempty"`
		SampleRate uint32    `json:"sample_rate,omitempty"`
	}{Kind: m.Kind.String(), Name: m.Name}
	switch m.Kind {
	case MsgAudioDeviceDisconnected, MsgAudioDeviceReconnected, MsgMidiDeviceDisconnected, MsgMidiDeviceReconnected:
		dev := m.Device
		out.Device = &dev
	case MsgError:
		out.Error = m.Err.Error()
		out.ErrorKind = m.Err.Kind.String()
		out.SampleRate = m.Err.NewSampleRate
	}
	return json.Marshal(out)
}
