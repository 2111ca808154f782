package dawio

import (
	"encoding/json"
	"fmt"
)

// BufferSizeKind tags StreamAudioBufferSize.
type BufferSizeKind int

// Buffer size variants.
const (
	BufferUnfixed BufferSizeKind = iota
	BufferFixed
	BufferUnfixedWithMaxSize
	BufferUnfixedWithMinSize
)

// StreamAudioBufferSize describes the block sizes process will see.
type StreamAudioBufferSize struct {
	Kind   BufferSizeKind
	Frames uint32
}

// Fixed returns a fixed block size of n frames.
func Fixed(n uint32) StreamAudioBufferSize {
	return StreamAudioBufferSize{Kind: BufferFixed, Frames: n}
}

// UnfixedWithMaxSize returns a variable block size bounded by n.
func UnfixedWithMaxSize(n uint32) StreamAudioBufferSize {
	return StreamAudioBufferSize{Kind: BufferUnfixedWithMaxSize, Frames: n}
}

// UnfixedWithMinSize returns a variable block size of at least n frames.
func UnfixedWithMinSize(n uint32) StreamAudioBufferSize {
	return StreamAudioBufferSize{Kind: BufferUnfixedWithMinSize, Frames: n}
}

// Unfixed returns a variable block size with no known bounds.
func Unfixed() StreamAudioBufferSize {
	return StreamAudioBufferSize{Kind: BufferUnfixed}
}

// MaxFrames returns the largest block process can see, or fallback when the
// size has no upper bound.
func (b StreamAudioBufferSize) MaxFrames(fallback uint32) uint32 {
	switch b.Kind {
	case BufferFixed, BufferUnfixedWithMaxSize:
		return b.Frames
	case BufferUnfixedWithMinSize:
		if fallback < b.Frames {
			return b.Frames
		}
		return fallback
	default:
		return fallback
	}
}

func (b StreamAudioBufferSize) String() string {
	switch b.Kind {
	case BufferFixed:
		return fmt.Sprintf("fixed(%d)", b.Frames)
	case BufferUnfixedWithMaxSize:
		return fmt.Sprintf("unfixed(max=%d)", b.Frames)
	case BufferUnfixedWithMinSize:
		return fmt.Sprintf("unfixed(min=%d)", b.Frames)
	default:
		return "unfixed"
	}
}

// MarshalJSON encodes the size as {"kind": "...", "frames": n}.
func (b StreamAudioBufferSize) MarshalJSON() ([]byte, error) {
	kind := map[BufferSizeKind]string{
		BufferUnfixed:            "unfixed",
		BufferFixed:              "fixed",
		BufferUnfixedWithMaxSize: "unfixed_with_max_size",
		BufferUnfixedWithMinSize: "unfixed_with_min_size",
	}[b.Kind]
	return json.Marshal(struct {
		Kind   string `json:"kind"`
		Frames uint32 `json:"frames,omitempty"`
	}{kind, b.Frames})
}

// AudioPortStreamInfo describes one channel of the running stream.
type AudioPortStreamInfo struct {
	// Name is the stream-side port name, such as "out_1".
	Name string `json:"name"`

	ConnectedToIndex int    `json:"connected_to_index"`
	ConnectedToName  string `json:"connected_to_name"`

	// ConnectedToSystem is false when the port failed to bind and is
	// serviced with silent buffers.
	ConnectedToSystem bool `json:"connected_to_system"`
}

// AudioDeviceDescriptor names the devices a stream runs on.
type AudioDeviceDescriptor struct {
	Kind   string    `json:"kind"` // "single", "linked", or "jack"
	Device *DeviceID `json:"device,omitempty"`
	Input  *DeviceID `json:"input,omitempty"`
	Output *DeviceID `json:"output,omitempty"`
}

// MidiPortStreamInfo describes one MIDI port of the running stream.
type MidiPortStreamInfo struct {
	ID                DeviceID `json:"id"`
	Name              string   `json:"name"`
	ConnectedToSystem bool     `json:"connected_to_system"`
}

// MidiStreamInfo describes the MIDI half of the running stream.
type MidiStreamInfo struct {
	Backend    Backend              `json:"backend"`
	InPorts    []MidiPortStreamInfo `json:"in_ports"`
	OutPorts   []MidiPortStreamInfo `json:"out_ports"`
	BufferSize uint32               `json:"buffer_size"`
}

// StreamInfo is an immutable snapshot of a running stream. A fresh snapshot
// is delivered through StreamChanged after every live reconfiguration.
type StreamInfo struct {
	Backend        Backend               `json:"backend"`
	BackendVersion string                `json:"backend_version,omitempty"`
	AudioDevice    AudioDeviceDescriptor `json:"audio_device"`
	InPorts        []AudioPortStreamInfo `json:"in_ports"`
	OutPorts       []AudioPortStreamInfo `json:"out_ports"`
	SampleRate     uint32                `json:"sample_rate"`
	BufferSize     StreamAudioBufferSize `json:"buffer_size"`

	// EstimatedLatency is in frames.
	EstimatedLatency *uint32 `json:"estimated_latency,omitempty"`

	CheckingForSilentInputs bool `json:"checking_for_silent_inputs"`

	Midi *MidiStreamInfo `json:"midi,omitempty"`
}

// Clone returns a deep copy so snapshots never share slices.
func (s StreamInfo) Clone() StreamInfo {
	out := s
	out.InPorts = append([]AudioPortStreamInfo(nil), s.InPorts...)
	out.OutPorts = append([]AudioPortStreamInfo(nil), s.OutPorts...)
	if s.EstimatedLatency != nil {
		lat := *s.EstimatedLatency
		out.EstimatedLatency = &lat
	}
	if s.Midi != nil {
		midi := *s.Midi
		midi.InPorts = append([]MidiPortStreamInfo(nil), s.Midi.InPorts...)
		midi.OutPorts = append([]MidiPortStreamInfo(nil), s.Midi.OutPorts...)
		out.Midi = &midi
	}
	return out
}

// NumInputs returns the number of audio input channels.
func (s StreamInfo) NumInputs() int { return len(s.InPorts) }

// NumOutputs returns the number of audio output channels.
func (s StreamInfo) NumOutputs() int { return len(s.OutPorts) }
