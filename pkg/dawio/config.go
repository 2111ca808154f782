package dawio

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AutoOption is either Auto, meaning the resolver chooses, or an explicit
// value.
type AutoOption[T any] struct {
	set   bool
	value T
}

// Auto returns an option the resolver will fill in.
func Auto[T any]() AutoOption[T] {
	return AutoOption[T]{}
}

// Use returns an explicit option.
func Use[T any](v T) AutoOption[T] {
	return AutoOption[T]{set: true, value: v}
}

// IsAuto reports whether the option is Auto.
func (o AutoOption[T]) IsAuto() bool {
	return !o.set
}

// Get returns the explicit value and true, or the zero value and false.
func (o AutoOption[T]) Get() (T, bool) {
	return o.value, o.set
}

// OrElse returns the explicit value or def.
func (o AutoOption[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}

func (o AutoOption[T]) String() string {
	if !o.set {
		return "auto"
	}
	return fmt.Sprint(o.value)
}

// MarshalJSON encodes Auto as the string "auto".
func (o AutoOption[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte(`"auto"`), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON accepts "auto", null, or a value.
func (o *AutoOption[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`"auto"`)) {
		*o = AutoOption[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*o = Use(v)
	return nil
}

// Config declares the stream the caller wants. The resolver validates it
// against enumerated device capabilities.
type Config struct {
	AudioBackend AutoOption[Backend] `json:"audio_backend"`

	// AudioDevice is one of SingleDevice, LinkedInOut, or JackPorts. Nil is
	// treated as SingleDevice with an Auto id.
	AudioDevice AudioDeviceConfig `json:"-"`

	SampleRate AutoOption[uint32] `json:"sample_rate"`
	BlockSize  AutoOption[uint32] `json:"block_size"`

	// InputChannels and OutputChannels are port indices into the device.
	InputChannels  AutoOption[[]int] `json:"input_channels"`
	OutputChannels AutoOption[[]int] `json:"output_channels"`

	TakeExclusive bool `json:"take_exclusive"`

	Midi *MidiConfig `json:"midi,omitempty"`
}

// DefaultConfig returns a config that picks everything automatically, with
// no audio inputs and a MIDI input on the preferred device.
func DefaultConfig() Config {
	return Config{
		AudioBackend:   Auto[Backend](),
		AudioDevice:    SingleDevice{ID: Auto[DeviceID]()},
		SampleRate:     Auto[uint32](),
		BlockSize:      Auto[uint32](),
		InputChannels:  Use([]int{}),
		OutputChannels: Auto[[]int](),
		Midi:           DefaultMidiConfig(),
	}
}

func (c Config) audioDevice() AudioDeviceConfig {
	if c.AudioDevice == nil {
		return SingleDevice{}
	}
	return c.AudioDevice
}

// AudioDeviceConfig is the sum type of device selections.
type AudioDeviceConfig interface {
	audioDeviceConfig()
	String() string
}

// SingleDevice selects one device for both directions.
type SingleDevice struct {
	ID AutoOption[DeviceID]
}

// LinkedInOut selects separate input and output devices. A nil side means
// that direction is unused.
type LinkedInOut struct {
	Input  *DeviceID
	Output *DeviceID
}

// JackPorts selects Jack system ports by name.
type JackPorts struct {
	In  AutoOption[[]string]
	Out AutoOption[[]string]
}

// DefaultJackPorts connects no inputs and the default stereo outputs.
func DefaultJackPorts() JackPorts {
	return JackPorts{In: Use([]string{}), Out: Auto[[]string]()}
}

func (SingleDevice) audioDeviceConfig() {}
func (LinkedInOut) audioDeviceConfig()  {}
func (JackPorts) audioDeviceConfig()    {}

func (d SingleDevice) String() string { return "single(" + d.ID.String() + ")" }

func (d LinkedInOut) String() string {
	in, out := "none", "none"
	if d.Input != nil {
		in = d.Input.String()
	}
	if d.Output != nil {
		out = d.Output.String()
	}
	return "linked(in=" + in + ", out=" + out + ")"
}

func (d JackPorts) String() string {
	return "jack(in=" + d.In.String() + ", out=" + d.Out.String() + ")"
}

// MidiControlScheme is the MIDI protocol spoken on a port.
type MidiControlScheme int

// Control schemes.
const (
	Midi1 MidiControlScheme = iota
)

func (s MidiControlScheme) String() string {
	if s == Midi1 {
		return "midi1"
	}
	return fmt.Sprintf("scheme(%d)", int(s))
}

// MidiPortConfig selects one MIDI endpoint.
type MidiPortConfig struct {
	DeviceID      DeviceID          `json:"device_id"`
	PortIndex     int               `json:"port_index"`
	ControlScheme MidiControlScheme `json:"control_scheme"`
}

// MidiConfig is the optional MIDI part of a Config.
type MidiConfig struct {
	Backend AutoOption[Backend]          `json:"backend"`
	In      AutoOption[[]MidiPortConfig] `json:"in"`
	Out     AutoOption[[]MidiPortConfig] `json:"out"`
}

// DefaultMidiConfig opens the preferred input and no outputs.
func DefaultMidiConfig() *MidiConfig {
	return &MidiConfig{
		Backend: Auto[Backend](),
		In:      Auto[[]MidiPortConfig](),
		Out:     Use([]MidiPortConfig{}),
	}
}
