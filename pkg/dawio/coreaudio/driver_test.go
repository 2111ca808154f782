package coreaudio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/smazurov/dawio/pkg/dawio"
)

func TestEnumerate(t *testing.T) {
	sdk := newFakeSDK()
	sdk.devices = append(sdk.devices, Device{ID: "Aggregate:empty", Name: "Empty Aggregate"})
	info := NewDriver(sdk).Enumerate(context.Background())

	if info.Status != dawio.StatusRunning {
		t.Fatalf("status = %s, want running (%s)", info.Status, info.ErrorMessage)
	}
	if len(info.Devices) != 2 {
		t.Fatalf("devices = %d, want 2 (channel-less devices skipped)", len(info.Devices))
	}
	if info.DefaultDevice == nil || *info.DefaultDevice != 0 {
		t.Errorf("default device = %v, want 0", info.DefaultDevice)
	}

	usb := info.Devices[1]
	if !slices.Equal(usb.InPorts, []string{"input_1", "input_2"}) || !slices.Equal(usb.OutPorts, []string{"output_1", "output_2"}) {
		t.Errorf("usb ports = %v / %v", usb.InPorts, usb.OutPorts)
	}
	if usb.DefaultSampleRate != 44100 {
		t.Errorf("default rate = %d, want the nominal 44100", usb.DefaultSampleRate)
	}
	if usb.Exclusive != nil || usb.FixedBufferSize != nil {
		t.Error("coreaudio devices have no exclusive mode or fixed buffer")
	}
}

func TestEnumerateDefaultFallback(t *testing.T) {
	sdk := newFakeSDK()
	sdk.devices[0].DefaultOutput = false
	info := NewDriver(sdk).Enumerate(context.Background())
	if info.DefaultDevice == nil || *info.DefaultDevice != 0 {
		t.Errorf("default device = %v, want first stereo output", info.DefaultDevice)
	}
}

func TestEnumerateStatus(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeSDK)
		want  dawio.BackendStatus
	}{
		{name: "unavailable", setup: func(f *fakeSDK) { f.err = fmt.Errorf("list devices: %w", ErrUnavailable) }, want: dawio.StatusNotInstalled},
		{name: "hal error", setup: func(f *fakeSDK) { f.err = errors.New("kAudioHardwareUnspecifiedError") }, want: dawio.StatusError},
		{name: "no devices", setup: func(f *fakeSDK) { f.devices = nil }, want: dawio.StatusNoDevices},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sdk := newFakeSDK()
			tt.setup(sdk)
			if got := NewDriver(sdk).Enumerate(context.Background()).Status; got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}
