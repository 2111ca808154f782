// Package wasapi runs dawio streams on Windows audio endpoints.
//
// Every active endpoint is one device. Render endpoints have playback
// ports, capture endpoints have capture ports; use a LinkedInOut config to
// run both. Streams run in shared mode unless the config asks for exclusive
// access, in which case every sample rate is probed per endpoint.
package wasapi

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/smazurov/dawio/pkg/dawio/sampleconv"
)

// probeRates are the exclusive mode sample rates tried per endpoint.
var probeRates = []uint32{22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}

// Driver is the WASAPI audio driver.
type Driver struct {
	sdk SDK

	initOnce sync.Once
	initErr  error
}

// NewDriver creates a driver on top of sdk.
func NewDriver(sdk SDK) *Driver {
	return &Driver{sdk: sdk}
}

// Register adds the WASAPI driver to h.
func Register(h *dawio.Host, sdk SDK) {
	h.RegisterAudio(NewDriver(sdk))
}

func (d *Driver) Backend() dawio.Backend { return dawio.BackendWasapi }

func (d *Driver) init() error {
	d.initOnce.Do(func() {
		d.initErr = d.sdk.Init()
	})
	return d.initErr
}

// Enumerate lists the active render and capture endpoints.
func (d *Driver) Enumerate(ctx context.Context) dawio.AudioBackendInfo {
	info := dawio.AudioBackendInfo{Backend: dawio.BackendWasapi}
	if err := d.init(); err != nil {
		info.Status = dawio.StatusNotInstalled
		info.ErrorMessage = err.Error()
		return info
	}
	info.Version = d.sdk.Version()

	def := -1
	for _, flow := range []DataFlow{Render, Capture} {
		eps, err := d.sdk.Endpoints(flow)
		if err != nil {
			info.Status = dawio.StatusError
			info.ErrorMessage = fmt.Sprintf("list %s endpoints: %v", flow, err)
			return info
		}
		for _, ep := range eps {
			if ep.State != StateActive {
				continue
			}
			dev, err := d.describe(ep)
			if err != nil {
				continue
			}
			if def < 0 && flow == Render && ep.IsDefault && len(dev.OutPorts) >= 2 {
				def = len(info.Devices)
			}
			info.Devices = append(info.Devices, dev)
		}
	}
	if len(info.Devices) == 0 {
		info.Status = dawio.StatusNoDevices
		return info
	}
	if def < 0 {
		def = slices.IndexFunc(info.Devices, func(dev dawio.AudioDeviceInfo) bool { return len(dev.OutPorts) >= 2 })
	}
	info.Status = dawio.StatusRunning
	def = max(def, 0)
	info.DefaultDevice = &def
	return info
}

func deviceID(ep Endpoint) dawio.DeviceID {
	return dawio.DeviceID{Name: ep.Name, Identifier: ep.ID}
}

func portNames(flow DataFlow, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", flow, i+1)
	}
	return names
}

func (d *Driver) describe(ep Endpoint) (dawio.AudioDeviceInfo, error) {
	mix, err := d.sdk.MixFormat(ep.ID, ep.Flow)
	if err != nil {
		return dawio.AudioDeviceInfo{}, err
	}
	dev := dawio.AudioDeviceInfo{
		ID:                deviceID(ep),
		InPorts:           []string{},
		OutPorts:          []string{},
		SampleRates:       []uint32{mix.Rate},
		DefaultSampleRate: mix.Rate,
	}
	ports := portNames(ep.Flow, mix.Channels)
	if ep.Flow == Capture {
		dev.InPorts = ports
		dev.DefaultInputLayout = dawio.MonoLayout(0)
	} else {
		dev.OutPorts = ports
		switch {
		case mix.Channels >= 2:
			dev.DefaultOutputLayout = dawio.StereoLayout(0, 1)
		case mix.Channels == 1:
			dev.DefaultOutputLayout = dawio.MonoLayout(0)
		}
	}

	excl := &dawio.ExclusiveCapabilities{}
	for _, rate := range probeRates {
		if _, ok := d.pickFormat(ep.ID, ep.Flow, Exclusive, mix.Channels, rate); ok {
			excl.SampleRates = append(excl.SampleRates, rate)
		}
	}
	if len(excl.SampleRates) > 0 {
		dev.Exclusive = excl
	}
	return dev, nil
}

// pickFormat returns the first supported format in preference order.
func (d *Driver) pickFormat(id string, flow DataFlow, mode ShareMode, channels int, rate uint32) (WaveFormat, bool) {
	for _, f := range sampleconv.Preferred {
		wf := WaveFormat{Format: f, Channels: channels, Rate: rate}
		if d.sdk.IsFormatSupported(id, flow, mode, wf) {
			return wf, true
		}
	}
	return WaveFormat{}, false
}
