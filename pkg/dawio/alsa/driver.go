// Package alsa runs dawio streams directly on ALSA hardware devices.
//
// Every PCM device of every card is one dawio device named "Card: PCM" with
// identifier hw:C,D. Its ports are capture_N and playback_N for every
// channel the hardware offers. Raw MIDI devices are served through the
// generic MIDI bridge.
package alsa

import (
	"context"
	"fmt"
	"slices"

	"github.com/smazurov/dawio/pkg/dawio"
)

const (
	// maxPorts caps the port list of devices reporting open-ended channel
	// ranges.
	maxPorts = 64

	defaultPeriod  = 256
	defaultPeriods = 2
)

// Driver is the ALSA audio driver.
type Driver struct {
	sdk SDK
}

// NewDriver creates a driver on top of sdk.
func NewDriver(sdk SDK) *Driver {
	return &Driver{sdk: sdk}
}

// Register adds the ALSA audio and raw MIDI drivers to h.
func Register(h *dawio.Host, sdk SDK) {
	h.RegisterAudio(NewDriver(sdk))
	h.RegisterMidi(NewMidiDriver(sdk))
}

func (d *Driver) Backend() dawio.Backend { return dawio.BackendAlsa }

// Enumerate probes every PCM device.
func (d *Driver) Enumerate(ctx context.Context) dawio.AudioBackendInfo {
	info := dawio.AudioBackendInfo{
		Backend: dawio.BackendAlsa,
		Version: d.sdk.Version(),
	}
	pcms, err := d.sdk.Devices()
	if err != nil {
		info.Status = dawio.StatusError
		info.ErrorMessage = err.Error()
		return info
	}
	for _, p := range pcms {
		if p.Capture == nil && p.Playback == nil {
			continue
		}
		info.Devices = append(info.Devices, describe(p))
	}
	if len(info.Devices) == 0 {
		info.Status = dawio.StatusNoDevices
		return info
	}
	info.Status = dawio.StatusRunning
	def := defaultDevice(info.Devices)
	info.DefaultDevice = &def
	return info
}

// defaultDevice prefers the first device that can play stereo.
func defaultDevice(devices []dawio.AudioDeviceInfo) int {
	for i, d := range devices {
		if len(d.OutPorts) >= 2 {
			return i
		}
	}
	return 0
}

func deviceID(p PCMInfo) dawio.DeviceID {
	return dawio.DeviceID{
		Name:       fmt.Sprintf("%s: %s", p.CardName, p.Name),
		Identifier: hwID(p.Card, p.Device),
	}
}

func hwID(card, device int) string {
	return fmt.Sprintf("hw:%d,%d", card, device)
}

func parseHwID(id string) (card, device int, ok bool) {
	if _, err := fmt.Sscanf(id, "hw:%d,%d", &card, &device); err != nil {
		return 0, 0, false
	}
	return card, device, true
}

func portNames(prefix string, caps *PCMCaps) []string {
	if caps == nil {
		return []string{}
	}
	n := min(caps.MaxChannels, maxPorts)
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", prefix, i+1)
	}
	return names
}

func describe(p PCMInfo) dawio.AudioDeviceInfo {
	dev := dawio.AudioDeviceInfo{
		ID:       deviceID(p),
		InPorts:  portNames("capture", p.Capture),
		OutPorts: portNames("playback", p.Playback),
	}

	var rates []uint32
	var lo, hi uint32
	for _, caps := range []*PCMCaps{p.Capture, p.Playback} {
		if caps == nil {
			continue
		}
		if rates == nil {
			rates = slices.Clone(caps.Rates)
			lo, hi = caps.MinPeriod, caps.MaxPeriod
			continue
		}
		rates = slices.DeleteFunc(rates, func(r uint32) bool { return !slices.Contains(caps.Rates, r) })
		lo, hi = max(lo, caps.MinPeriod), min(hi, caps.MaxPeriod)
	}
	dev.SampleRates = rates
	switch {
	case slices.Contains(rates, 48000):
		dev.DefaultSampleRate = 48000
	case len(rates) > 0:
		dev.DefaultSampleRate = rates[0]
	}
	if lo > 0 && lo <= hi {
		dev.FixedBufferSize = &dawio.FixedBufferSizeRange{
			Min:     lo,
			Max:     hi,
			Default: min(max(defaultPeriod, lo), hi),
		}
	}

	if len(dev.InPorts) > 0 {
		dev.DefaultInputLayout = dawio.MonoLayout(0)
	}
	switch {
	case len(dev.OutPorts) >= 2:
		dev.DefaultOutputLayout = dawio.StereoLayout(0, 1)
	case len(dev.OutPorts) == 1:
		dev.DefaultOutputLayout = dawio.MonoLayout(0)
	}
	return dev
}
