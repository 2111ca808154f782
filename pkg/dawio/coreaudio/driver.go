// Package coreaudio runs dawio streams on macOS audio devices through a
// render callback owned by CoreAudio.
package coreaudio

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/smazurov/dawio/pkg/dawio"
)

// Driver is the CoreAudio audio driver.
type Driver struct {
	sdk SDK
}

// NewDriver creates a driver on top of sdk.
func NewDriver(sdk SDK) *Driver {
	return &Driver{sdk: sdk}
}

// Register adds the CoreAudio driver to h.
func Register(h *dawio.Host, sdk SDK) {
	h.RegisterAudio(NewDriver(sdk))
}

func (d *Driver) Backend() dawio.Backend { return dawio.BackendCoreAudio }

func (d *Driver) Enumerate(ctx context.Context) dawio.AudioBackendInfo {
	info := dawio.AudioBackendInfo{
		Backend: dawio.BackendCoreAudio,
		Version: d.sdk.Version(),
	}
	devs, err := d.sdk.Devices()
	switch {
	case errors.Is(err, ErrUnavailable):
		info.Status = dawio.StatusNotInstalled
		info.ErrorMessage = err.Error()
		return info
	case err != nil:
		info.Status = dawio.StatusError
		info.ErrorMessage = err.Error()
		return info
	}

	def := -1
	for _, dev := range devs {
		if dev.InChannels == 0 && dev.OutChannels == 0 {
			continue
		}
		if def < 0 && dev.DefaultOutput && dev.OutChannels >= 2 {
			def = len(info.Devices)
		}
		info.Devices = append(info.Devices, describe(dev))
	}
	if len(info.Devices) == 0 {
		info.Status = dawio.StatusNoDevices
		return info
	}
	if def < 0 {
		def = max(slices.IndexFunc(info.Devices, func(d dawio.AudioDeviceInfo) bool { return len(d.OutPorts) >= 2 }), 0)
	}
	info.Status = dawio.StatusRunning
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

func describe(dev Device) dawio.AudioDeviceInfo {
	out := dawio.AudioDeviceInfo{
		ID:                dawio.DeviceID{Name: dev.Name, Identifier: dev.ID},
		InPorts:           channelNames("input", dev.InChannels),
		OutPorts:          channelNames("output", dev.OutChannels),
		SampleRates:       slices.Clone(dev.SampleRates),
		DefaultSampleRate: dev.NominalRate,
	}
	if len(out.SampleRates) == 0 && dev.NominalRate > 0 {
		out.SampleRates = []uint32{dev.NominalRate}
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
