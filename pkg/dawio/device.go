package dawio

import "fmt"

// DeviceID identifies a device. When both sides carry an Identifier it is
// authoritative for matching; the Name alone is advisory.
type DeviceID struct {
	Name       string `json:"name" toml:"name"`
	Identifier string `json:"identifier,omitempty" toml:"identifier,omitempty"`
}

// Matches reports whether id and other refer to the same device.
func (id DeviceID) Matches(other DeviceID) bool {
	if id.Identifier != "" && other.Identifier != "" {
		return id.Identifier == other.Identifier
	}
	return id.Name == other.Name
}

func (id DeviceID) String() string {
	if id.Identifier != "" && id.Identifier != id.Name {
		return fmt.Sprintf("%s (%s)", id.Name, id.Identifier)
	}
	return id.Name
}

// AudioBackendInfo is an immutable snapshot produced by enumeration.
type AudioBackendInfo struct {
	Backend Backend           `json:"backend"`
	Version string            `json:"version,omitempty"`
	Status  BackendStatus     `json:"status"`
	Devices []AudioDeviceInfo `json:"devices"`

	// DefaultDevice is an index into Devices.
	DefaultDevice *int `json:"default_device,omitempty"`

	// SystemWideDevice is set for backends that expose the whole server as
	// one implicit device (Jack, CoreAudio aggregate).
	SystemWideDevice bool `json:"system_wide_device"`

	ErrorMessage string `json:"error,omitempty"`
}

// Running reports whether the backend can be used.
func (i AudioBackendInfo) Running() bool {
	return i.Status.Usable()
}

// Device finds the device matching id.
func (i AudioBackendInfo) Device(id DeviceID) (AudioDeviceInfo, bool) {
	for _, d := range i.Devices {
		if d.ID.Matches(id) {
			return d, true
		}
	}
	return AudioDeviceInfo{}, false
}

// AudioDeviceInfo describes the capabilities of one audio device. A "port"
// is one channel's name within the device; configs refer to ports by index.
type AudioDeviceInfo struct {
	ID       DeviceID `json:"id"`
	InPorts  []string `json:"in_ports"`
	OutPorts []string `json:"out_ports"`

	SampleRates       []uint32 `json:"sample_rates"`
	DefaultSampleRate uint32   `json:"default_sample_rate"`

	// FixedBufferSize is nil when the device only runs with unfixed block
	// sizes.
	FixedBufferSize *FixedBufferSizeRange `json:"fixed_buffer_size,omitempty"`

	DefaultInputLayout  ChannelLayout `json:"default_input_layout"`
	DefaultOutputLayout ChannelLayout `json:"default_output_layout"`

	// Exclusive is published by backends with an exclusive mode (WASAPI).
	Exclusive *ExclusiveCapabilities `json:"exclusive,omitempty"`
}

// SupportsSampleRate reports whether sr is advertised in the given mode.
func (d AudioDeviceInfo) SupportsSampleRate(sr uint32, exclusive bool) bool {
	rates := d.SampleRates
	if exclusive && d.Exclusive != nil {
		rates = d.Exclusive.SampleRates
	}
	for _, r := range rates {
		if r == sr {
			return true
		}
	}
	return false
}

// FixedBufferSizeRange is the range of block sizes a device accepts when the
// block size is fixed for the lifetime of the stream.
type FixedBufferSizeRange struct {
	Min              uint32 `json:"min"`
	Max              uint32 `json:"max"`
	MustBePowerOfTwo bool   `json:"must_be_power_of_two"`
	Default          uint32 `json:"default"`
}

// ExclusiveCapabilities lists what a device supports in exclusive mode.
type ExclusiveCapabilities struct {
	SampleRates     []uint32              `json:"sample_rates"`
	FixedBufferSize *FixedBufferSizeRange `json:"fixed_buffer_size,omitempty"`
}

// MidiBackendInfo is the MIDI analogue of AudioBackendInfo. Every MIDI
// endpoint is one logical port.
type MidiBackendInfo struct {
	Backend    Backend          `json:"backend"`
	Version    string           `json:"version,omitempty"`
	Status     BackendStatus    `json:"status"`
	InDevices  []MidiDeviceInfo `json:"in_devices"`
	OutDevices []MidiDeviceInfo `json:"out_devices"`
	DefaultIn  *int             `json:"default_in,omitempty"`
	DefaultOut *int             `json:"default_out,omitempty"`

	ErrorMessage string `json:"error,omitempty"`
}

// Running reports whether the backend can be used.
func (i MidiBackendInfo) Running() bool {
	return i.Status.Usable()
}

// MidiDeviceInfo describes one MIDI endpoint.
type MidiDeviceInfo struct {
	ID DeviceID `json:"id"`
}

func findMidiDevice(devices []MidiDeviceInfo, id DeviceID) (MidiDeviceInfo, bool) {
	for _, d := range devices {
		if d.ID.Matches(id) {
			return d, true
		}
	}
	return MidiDeviceInfo{}, false
}

func intPtr(i int) *int { return &i }
