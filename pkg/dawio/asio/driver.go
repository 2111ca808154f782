// Package asio runs dawio streams on ASIO drivers through PortAudio's ASIO
// host API. The native binding is only compiled with the asio build tag.
package asio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/smazurov/dawio/pkg/dawio"
)

var probeRates = []uint32{44100, 48000, 88200, 96000, 176400, 192000}

// Driver is the ASIO audio driver.
type Driver struct {
	sdk SDK

	initOnce sync.Once
	initErr  error
}

// NewDriver creates a driver on top of sdk.
func NewDriver(sdk SDK) *Driver {
	return &Driver{sdk: sdk}
}

// Register adds the ASIO driver to h.
func Register(h *dawio.Host, sdk SDK) {
	h.RegisterAudio(NewDriver(sdk))
}

func (d *Driver) Backend() dawio.Backend { return dawio.BackendAsio }

func (d *Driver) init() error {
	d.initOnce.Do(func() { d.initErr = d.sdk.Init() })
	return d.initErr
}

func (d *Driver) Enumerate(ctx context.Context) dawio.AudioBackendInfo {
	info := dawio.AudioBackendInfo{Backend: dawio.BackendAsio}
	if err := d.init(); err != nil {
		info.Status = dawio.StatusNotInstalled
		if !errors.Is(err, ErrNoHostAPI) {
			info.Status = dawio.StatusError
		}
		info.ErrorMessage = err.Error()
		return info
	}
	info.Version = d.sdk.Version()

	devs, err := d.sdk.Devices()
	if err != nil {
		info.Status = dawio.StatusError
		info.ErrorMessage = err.Error()
		return info
	}
	def := -1
	for _, dev := range devs {
		if dev.InChannels == 0 && dev.OutChannels == 0 {
			continue
		}
		if def < 0 && dev.IsDefault {
			def = len(info.Devices)
		}
		info.Devices = append(info.Devices, d.describe(dev))
	}
	if len(info.Devices) == 0 {
		info.Status = dawio.StatusNoDevices
		return info
	}
	info.Status = dawio.StatusRunning
	def = max(def, 0)
	info.DefaultDevice = &def
	return info
}

func channelNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", prefix, i+1)
	}
	return names
}

func (d *Driver) describe(dev Device) dawio.AudioDeviceInfo {
	out := dawio.AudioDeviceInfo{
		ID:                dawio.DeviceID{Name: dev.Name, Identifier: strconv.Itoa(dev.Index)},
		InPorts:           channelNames("input", dev.InChannels),
		OutPorts:          channelNames("output", dev.OutChannels),
		DefaultSampleRate: dev.DefaultRate,
	}
	for _, rate := range probeRates {
		if d.sdk.Supports(dev.Index, dev.InChannels, dev.OutChannels, rate) {
			out.SampleRates = append(out.SampleRates, rate)
		}
	}
	if len(out.SampleRates) == 0 {
		out.SampleRates = []uint32{dev.DefaultRate}
	}
	if dev.PreferredFrames > 0 {
		out.FixedBufferSize = &dawio.FixedBufferSizeRange{
			Min:     min(dev.MinFrames, dev.PreferredFrames),
			Max:     max(dev.MaxFrames, dev.PreferredFrames),
			Default: dev.PreferredFrames,
		}
	}
	if dev.InChannels > 0 {
		out.DefaultInputLayout = dawio.MonoLayout(0)
	}
	switch {
	case dev.OutChannels >= 2:
		out.DefaultOutputLayout = dawio.StereoLayout(0, 1)
	case dev.OutChannels == 1:
		out.DefaultOutputLayout = dawio.MonoLayout(0)
	}
	return out
}
