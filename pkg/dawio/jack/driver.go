// Package jack runs dawio streams as a client of a Jack server.
//
// The server is exposed as a single system-wide device named "Jack Server"
// whose ports are the physical capture and playback ports. The client
// registers one Jack port per stream channel (in_1, out_1, midi_in_1, ...)
// and connects them to the selected system ports.
package jack

import (
	"context"
	"errors"
	"slices"

	"github.com/smazurov/dawio/pkg/dawio"
)

// Names used by the adapter.
const (
	ServerDeviceName  = "Jack Server"
	DefaultClientName = "dawio_client"
	enumClientName    = "dawio_enum"
)

var serverDevice = dawio.DeviceID{Name: ServerDeviceName}

// Driver is the Jack audio driver.
type Driver struct {
	sdk SDK
}

// NewDriver creates a driver on top of sdk.
func NewDriver(sdk SDK) *Driver {
	return &Driver{sdk: sdk}
}

// Register adds the Jack audio and MIDI drivers to h.
func Register(h *dawio.Host, sdk SDK) {
	d := NewDriver(sdk)
	h.RegisterAudio(d)
	h.RegisterMidi(d.Midi())
}

func (d *Driver) Backend() dawio.Backend { return dawio.BackendJack }

// NativeMidi reports that Jack MIDI ports are serviced by the audio stream.
func (d *Driver) NativeMidi() bool { return true }

// Midi returns the MIDI enumeration side of the driver.
func (d *Driver) Midi() *MidiDriver { return &MidiDriver{sdk: d.sdk} }

func (d *Driver) open(name string) (Client, dawio.BackendStatus, error) {
	c, err := d.sdk.Open(name)
	if err == nil {
		return c, dawio.StatusRunning, nil
	}
	if errors.Is(err, ErrLibraryNotLoaded) {
		return nil, dawio.StatusNotInstalled, err
	}
	return nil, dawio.StatusNotRunning, err
}

// Enumerate opens a short-lived client and reports the server as one device.
func (d *Driver) Enumerate(ctx context.Context) dawio.AudioBackendInfo {
	info := dawio.AudioBackendInfo{
		Backend:          dawio.BackendJack,
		Version:          d.sdk.Version(),
		SystemWideDevice: true,
	}
	c, status, err := d.open(enumClientName)
	info.Status = status
	if err != nil {
		info.ErrorMessage = err.Error()
		return info
	}
	defer c.Close()

	info.Devices = []dawio.AudioDeviceInfo{describeServer(c)}
	def := 0
	info.DefaultDevice = &def
	return info
}

func describeServer(c Client) dawio.AudioDeviceInfo {
	sr, bs := c.SampleRate(), c.BufferSize()
	capture := systemCapture(c)
	playback := systemPlayback(c)
	dev := dawio.AudioDeviceInfo{
		ID:                serverDevice,
		InPorts:           capture,
		OutPorts:          playback,
		SampleRates:       []uint32{sr},
		DefaultSampleRate: sr,
		FixedBufferSize: &dawio.FixedBufferSizeRange{
			Min:     bs,
			Max:     bs,
			Default: bs,
		},
	}
	if i := preferredIndex(capture, "system:capture_1"); i >= 0 {
		dev.DefaultInputLayout = dawio.MonoLayout(i)
	}
	left := slices.Index(playback, "system:playback_1")
	right := slices.Index(playback, "system:playback_2")
	switch {
	case left >= 0 && right >= 0:
		dev.DefaultOutputLayout = dawio.StereoLayout(left, right)
	case len(playback) >= 2:
		dev.DefaultOutputLayout = dawio.StereoLayout(0, 1)
	case len(playback) == 1:
		dev.DefaultOutputLayout = dawio.MonoLayout(0)
	}
	return dev
}

// preferredIndex returns the index of name, else 0 for a non-empty list,
// else -1.
func preferredIndex(list []string, name string) int {
	if i := slices.Index(list, name); i >= 0 {
		return i
	}
	if len(list) > 0 {
		return 0
	}
	return -1
}

// Capture ports are outputs from the server's point of view.
func systemCapture(c Client) []string {
	return c.Ports(AudioType, PortIsOutput|PortIsPhysical)
}

func systemPlayback(c Client) []string {
	return c.Ports(AudioType, PortIsInput|PortIsPhysical)
}

func systemMidiCapture(c Client) []string {
	return c.Ports(MidiType, PortIsOutput|PortIsPhysical)
}

func systemMidiPlayback(c Client) []string {
	return c.Ports(MidiType, PortIsInput|PortIsPhysical)
}

// MidiDriver enumerates Jack MIDI ports. Streams on the Jack audio backend
// open them natively.
type MidiDriver struct {
	sdk SDK
}

func (m *MidiDriver) Backend() dawio.Backend { return dawio.BackendJack }

// Enumerate lists the physical MIDI ports, one device per port.
func (m *MidiDriver) Enumerate(ctx context.Context) dawio.MidiBackendInfo {
	info := dawio.MidiBackendInfo{
		Backend: dawio.BackendJack,
		Version: m.sdk.Version(),
	}
	c, status, err := (&Driver{sdk: m.sdk}).open(enumClientName)
	info.Status = status
	if err != nil {
		info.ErrorMessage = err.Error()
		return info
	}
	defer c.Close()

	ins, outs := systemMidiCapture(c), systemMidiPlayback(c)
	info.InDevices = midiDevices(ins)
	info.OutDevices = midiDevices(outs)
	if i := preferredIndex(ins, "system:midi_capture_1"); i >= 0 {
		info.DefaultIn = &i
	}
	if i := preferredIndex(outs, "system:midi_playback_1"); i >= 0 {
		info.DefaultOut = &i
	}
	return info
}

func midiDevices(names []string) []dawio.MidiDeviceInfo {
	out := make([]dawio.MidiDeviceInfo, len(names))
	for i, n := range names {
		out[i] = dawio.MidiDeviceInfo{ID: dawio.DeviceID{Name: n}}
	}
	return out
}
