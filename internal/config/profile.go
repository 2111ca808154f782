package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/dawio/pkg/dawio"
)

// Profile is a stream profile as stored in profile.toml. Absent keys mean
// "auto"; an empty array means "none".
type Profile struct {
	Audio   AudioProfile   `toml:"audio"`
	Midi    *MidiProfile   `toml:"midi,omitempty"`
	Options OptionsProfile `toml:"options"`
}

// AudioProfile is the [audio] table.
type AudioProfile struct {
	Backend      string          `toml:"backend,omitempty"`
	Device       *dawio.DeviceID `toml:"device,omitempty"`
	InputDevice  *dawio.DeviceID `toml:"input_device,omitempty"`
	OutputDevice *dawio.DeviceID `toml:"output_device,omitempty"`
	SampleRate   uint32          `toml:"sample_rate,omitempty"`
	BlockSize    uint32          `toml:"block_size,omitempty"`
	Inputs       *[]int          `toml:"inputs,omitempty"`
	Outputs      *[]int          `toml:"outputs,omitempty"`
	JackIn       *[]string       `toml:"jack_in,omitempty"`
	JackOut      *[]string       `toml:"jack_out,omitempty"`
	Exclusive    bool            `toml:"exclusive,omitempty"`
}

// MidiProfile is the [midi] table. Without one the stream opens the
// preferred MIDI input.
type MidiProfile struct {
	Disabled bool           `toml:"disabled,omitempty"`
	Backend  string         `toml:"backend,omitempty"`
	Inputs   *[]MidiPortRef `toml:"inputs,omitempty"`
	Outputs  *[]MidiPortRef `toml:"outputs,omitempty"`
}

// MidiPortRef names one MIDI endpoint.
type MidiPortRef struct {
	Name       string `toml:"name"`
	Identifier string `toml:"identifier,omitempty"`
	Port       int    `toml:"port,omitempty"`
}

// OptionsProfile is the [options] table.
type OptionsProfile struct {
	ApplicationName      string        `toml:"application_name,omitempty"`
	AutoAudioInputs      bool          `toml:"auto_audio_inputs,omitempty"`
	MidiBufferSize       uint32        `toml:"midi_buffer_size,omitempty"`
	CheckSilentInputs    bool          `toml:"check_silent_inputs,omitempty"`
	MustHaveStereoOutput bool          `toml:"must_have_stereo_output,omitempty"`
	EmptyBuffersOnFail   *bool         `toml:"empty_buffers_for_failed_ports,omitempty"`
	MsgBufferSize        int           `toml:"msg_buffer_size,omitempty"`
	MaxBufferSize        uint32        `toml:"max_buffer_size,omitempty"`
	CloseTimeout         string        `toml:"close_timeout,omitempty"`
	Errors               ErrorsProfile `toml:"errors,omitempty"`
}

// ErrorsProfile is the [options.errors] table. Empty strings keep the
// defaults.
type ErrorsProfile struct {
	BackendNotFound     string `toml:"backend_not_found,omitempty"`
	DeviceNotFound      string `toml:"device_not_found,omitempty"`
	MidiBackendNotFound string `toml:"midi_backend_not_found,omitempty"`
	PortNotFound        string `toml:"port_not_found,omitempty"`
	SampleRate          string `toml:"sample_rate,omitempty"`
	SampleRateMin       uint32 `toml:"sample_rate_min,omitempty"`
	SampleRateMax       uint32 `toml:"sample_rate_max,omitempty"`
	BlockSize           string `toml:"block_size,omitempty"`
	MidiDeviceNotFound  string `toml:"midi_device_not_found,omitempty"`
}

// LoadProfile reads and validates the profile at path. Unknown keys are
// rejected so typos do not silently fall back to auto.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return p, fmt.Errorf("profile %s: %s", path, strict.String())
		}
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if _, err := p.ToConfig(); err != nil {
		return p, fmt.Errorf("profile %s: %w", path, err)
	}
	if _, err := p.ToRunOptions(dawio.DefaultRunOptions()); err != nil {
		return p, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// SaveProfile writes p to path through a temporary file in the same
// directory, so watchers never see a half-written profile.
func SaveProfile(path string, p Profile) error {
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".profile-*.toml")
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// ToConfig converts the profile into a stream config.
func (p Profile) ToConfig() (dawio.Config, error) {
	cfg := dawio.DefaultConfig()
	a := p.Audio

	if a.Backend != "" && a.Backend != "auto" {
		b, err := dawio.ParseBackend(a.Backend)
		if err != nil {
			return cfg, fmt.Errorf("audio.backend: %w", err)
		}
		cfg.AudioBackend = dawio.Use(b)
	}

	jack := a.JackIn != nil || a.JackOut != nil
	linked := a.InputDevice != nil || a.OutputDevice != nil
	switch {
	case jack && (linked || a.Device != nil):
		return cfg, errors.New("audio: jack_in/jack_out cannot be combined with a device")
	case linked && a.Device != nil:
		return cfg, errors.New("audio: device cannot be combined with input_device/output_device")
	case jack:
		ports := dawio.DefaultJackPorts()
		if a.JackIn != nil {
			ports.In = dawio.Use(slices.Clone(*a.JackIn))
		}
		if a.JackOut != nil {
			ports.Out = dawio.Use(slices.Clone(*a.JackOut))
		}
		cfg.AudioDevice = ports
		if cfg.AudioBackend.IsAuto() {
			cfg.AudioBackend = dawio.Use(dawio.BackendJack)
		}
	case linked:
		cfg.AudioDevice = dawio.LinkedInOut{Input: a.InputDevice, Output: a.OutputDevice}
	case a.Device != nil:
		cfg.AudioDevice = dawio.SingleDevice{ID: dawio.Use(*a.Device)}
	}

	if a.SampleRate > 0 {
		cfg.SampleRate = dawio.Use(a.SampleRate)
	}
	if a.BlockSize > 0 {
		cfg.BlockSize = dawio.Use(a.BlockSize)
	}
	if a.Inputs != nil {
		cfg.InputChannels = dawio.Use(slices.Clone(*a.Inputs))
	}
	if a.Outputs != nil {
		cfg.OutputChannels = dawio.Use(slices.Clone(*a.Outputs))
	}
	cfg.TakeExclusive = a.Exclusive

	midi, err := p.Midi.toConfig()
	if err != nil {
		return cfg, err
	}
	cfg.Midi = midi
	return cfg, nil
}

func (m *MidiProfile) toConfig() (*dawio.MidiConfig, error) {
	cfg := dawio.DefaultMidiConfig()
	if m == nil {
		return cfg, nil
	}
	if m.Disabled {
		return nil, nil
	}
	if m.Backend != "" && m.Backend != "auto" {
		b, err := dawio.ParseBackend(m.Backend)
		if err != nil {
			return nil, fmt.Errorf("midi.backend: %w", err)
		}
		cfg.Backend = dawio.Use(b)
	}
	if m.Inputs != nil {
		cfg.In = dawio.Use(midiPorts(*m.Inputs))
	}
	if m.Outputs != nil {
		cfg.Out = dawio.Use(midiPorts(*m.Outputs))
	}
	return cfg, nil
}

func midiPorts(refs []MidiPortRef) []dawio.MidiPortConfig {
	out := make([]dawio.MidiPortConfig, len(refs))
	for i, r := range refs {
		out[i] = dawio.MidiPortConfig{
			DeviceID:      dawio.DeviceID{Name: r.Name, Identifier: r.Identifier},
			PortIndex:     r.Port,
			ControlScheme: dawio.Midi1,
		}
	}
	return out
}

// ToRunOptions applies the [options] table on top of base.
func (p Profile) ToRunOptions(base dawio.RunOptions) (dawio.RunOptions, error) {
	o := p.Options
	out := base
	if o.ApplicationName != "" {
		out.ApplicationName = o.ApplicationName
	}
	out.AutoAudioInputs = out.AutoAudioInputs || o.AutoAudioInputs
	out.CheckForSilentInputs = out.CheckForSilentInputs || o.CheckSilentInputs
	out.MustHaveStereoOutput = out.MustHaveStereoOutput || o.MustHaveStereoOutput
	if o.EmptyBuffersOnFail != nil {
		out.EmptyBuffersForFailedPorts = *o.EmptyBuffersOnFail
	}
	if o.MidiBufferSize > 0 {
		out.MidiBufferSize = o.MidiBufferSize
	}
	if o.MsgBufferSize > 0 {
		out.MsgBufferSize = o.MsgBufferSize
	}
	if o.MaxBufferSize > 0 {
		out.MaxBufferSize = o.MaxBufferSize
	}
	if o.CloseTimeout != "" {
		d, err := time.ParseDuration(o.CloseTimeout)
		if err != nil {
			return out, fmt.Errorf("options.close_timeout: %w", err)
		}
		out.CloseTimeout = d
	}
	eb, err := o.Errors.apply(out.ErrorBehavior)
	if err != nil {
		return out, err
	}
	out.ErrorBehavior = eb
	return out, nil
}

func (e ErrorsProfile) apply(eb dawio.ErrorBehavior) (dawio.ErrorBehavior, error) {
	var err error
	if eb.AudioBackendNotFound, err = notFound("backend_not_found", e.BackendNotFound, eb.AudioBackendNotFound); err != nil {
		return eb, err
	}
	if eb.AudioDeviceNotFound, err = notFound("device_not_found", e.DeviceNotFound, eb.AudioDeviceNotFound); err != nil {
		return eb, err
	}
	if eb.MidiBackendNotFound, err = notFound("midi_backend_not_found", e.MidiBackendNotFound, eb.MidiBackendNotFound); err != nil {
		return eb, err
	}

	switch e.PortNotFound {
	case "":
	case "silence":
		eb.AudioPortNotFound = dawio.UseEmptyBufferForInvalidPorts
	case "error":
		eb.AudioPortNotFound = dawio.AudioPortReturnWithError
	default:
		return eb, badChoice("port_not_found", e.PortNotFound)
	}

	switch e.SampleRate {
	case "":
	case "next-best":
		eb.SampleRateConfigError = dawio.SampleRateConfigErrorBehavior{Kind: dawio.SampleRateTryNextBest}
	case "next-best-in-range":
		if e.SampleRateMin > e.SampleRateMax {
			return eb, fmt.Errorf("options.errors: sample_rate_min %d exceeds sample_rate_max %d", e.SampleRateMin, e.SampleRateMax)
		}
		eb.SampleRateConfigError = dawio.SampleRateConfigErrorBehavior{
			Kind: dawio.SampleRateTryNextBestWithMinMax,
			Min:  e.SampleRateMin,
			Max:  e.SampleRateMax,
		}
	case "error":
		eb.SampleRateConfigError = dawio.SampleRateConfigErrorBehavior{Kind: dawio.SampleRateReturnWithError}
	default:
		return eb, badChoice("sample_rate", e.SampleRate)
	}

	switch e.BlockSize {
	case "":
	case "next-best-or-unfixed":
		eb.BufferSizeConfigError = dawio.BufferSizeTryNextBestThenFallbackToUnfixedSize
	case "next-best-or-error":
		eb.BufferSizeConfigError = dawio.BufferSizeTryNextBestThenReturnError
	case "unfixed":
		eb.BufferSizeConfigError = dawio.BufferSizeFallbackToUnfixedSize
	case "error":
		eb.BufferSizeConfigError = dawio.BufferSizeReturnWithError
	default:
		return eb, badChoice("block_size", e.BlockSize)
	}

	switch e.MidiDeviceNotFound {
	case "":
	case "silence":
		eb.MidiDeviceNotFound = dawio.UseEmptyBufferForInvalidDevices
	case "error":
		eb.MidiDeviceNotFound = dawio.MidiDeviceReturnWithError
	default:
		return eb, badChoice("midi_device_not_found", e.MidiDeviceNotFound)
	}
	return eb, nil
}

func notFound(key, val string, def dawio.NotFoundBehavior) (dawio.NotFoundBehavior, error) {
	switch val {
	case "":
		return def, nil
	case "next-best":
		return dawio.NotFoundTryNextBest, nil
	case "error":
		return dawio.NotFoundReturnWithError, nil
	}
	return def, badChoice(key, val)
}

func badChoice(key, val string) error {
	return fmt.Errorf("options.errors.%s: unknown value %q", key, val)
}

// Changes are the differences between two profiles that a running stream
// can apply without a restart. Nil fields are unchanged.
type Changes struct {
	Inputs, Outputs *[]int
	JackIn, JackOut *[]string
	BlockSize       uint32
	MidiIn, MidiOut *[]dawio.MidiPortConfig

	// Restart names the keys whose change needs a new stream.
	Restart []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return c.Inputs == nil && c.Outputs == nil && c.JackIn == nil && c.JackOut == nil &&
		c.BlockSize == 0 && c.MidiIn == nil && c.MidiOut == nil && len(c.Restart) == 0
}

// Diff compares the running profile old with cur.
func Diff(old, cur Profile) Changes {
	var c Changes
	restart := func(key string) { c.Restart = append(c.Restart, key) }

	oa, ca := old.Audio, cur.Audio
	if oa.Backend != ca.Backend {
		restart("audio.backend")
	}
	if !sameDevice(oa.Device, ca.Device) || !sameDevice(oa.InputDevice, ca.InputDevice) ||
		!sameDevice(oa.OutputDevice, ca.OutputDevice) {
		restart("audio.device")
	}
	if oa.SampleRate != ca.SampleRate {
		restart("audio.sample_rate")
	}
	if oa.Exclusive != ca.Exclusive {
		restart("audio.exclusive")
	}
	if oa.BlockSize != ca.BlockSize {
		if ca.BlockSize == 0 {
			restart("audio.block_size")
		} else {
			c.BlockSize = ca.BlockSize
		}
	}
	c.Inputs = diffList(oa.Inputs, ca.Inputs, "audio.inputs", restart)
	c.Outputs = diffList(oa.Outputs, ca.Outputs, "audio.outputs", restart)
	c.JackIn = diffList(oa.JackIn, ca.JackIn, "audio.jack_in", restart)
	c.JackOut = diffList(oa.JackOut, ca.JackOut, "audio.jack_out", restart)

	om, cm := old.Midi, cur.Midi
	switch {
	case om == nil && cm == nil:
	case om == nil || cm == nil || om.Disabled != cm.Disabled || om.Backend != cm.Backend:
		restart("midi")
	default:
		if in := diffList(om.Inputs, cm.Inputs, "midi.inputs", restart); in != nil {
			ports := midiPorts(*in)
			c.MidiIn = &ports
		}
		if out := diffList(om.Outputs, cm.Outputs, "midi.outputs", restart); out != nil {
			ports := midiPorts(*out)
			c.MidiOut = &ports
		}
	}

	if !sameOptions(old.Options, cur.Options) {
		restart("options")
	}
	return c
}

func sameOptions(a, b OptionsProfile) bool {
	ea, eb := a.EmptyBuffersOnFail, b.EmptyBuffersOnFail
	a.EmptyBuffersOnFail, b.EmptyBuffersOnFail = nil, nil
	if a != b {
		return false
	}
	if ea == nil || eb == nil {
		return ea == eb
	}
	return *ea == *eb
}

func sameDevice(a, b *dawio.DeviceID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// diffList returns the new list when an explicit selection changed. Moving
// between auto and explicit needs the resolver, so it asks for a restart.
func diffList[T comparable](old, cur *[]T, key string, restart func(string)) *[]T {
	switch {
	case old == nil && cur == nil:
		return nil
	case old == nil || cur == nil:
		restart(key)
		return nil
	case slices.Equal(*old, *cur):
		return nil
	}
	v := slices.Clone(*cur)
	return &v
}
