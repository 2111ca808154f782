// Package rtmidi serves MIDI devices through RtMidi (gomidi's rtmididrv) for
// the generic MIDI bridge. The native binding needs the rtmidi build tag.
package rtmidi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
)

// Driver is a dawio.MidiPortOpener backed by RtMidi. It reports itself as
// the platform backend it stands in for, since RtMidi wraps the native MIDI
// API of each OS.
type Driver struct {
	backend dawio.Backend
	sdk     SDK
}

// NewDriver creates a driver that registers as backend.
func NewDriver(backend dawio.Backend, sdk SDK) *Driver {
	return &Driver{backend: backend, sdk: sdk}
}

// Register adds the driver to h under the native MIDI backend of goos:
// WinMM for windows, CoreMIDI for darwin. Linux MIDI is served by the ALSA
// and Jack drivers, so Register reports false there.
func Register(h *dawio.Host, goos string, sdk SDK) bool {
	var backend dawio.Backend
	switch goos {
	case "windows":
		backend = dawio.BackendWasapi
	case "darwin":
		backend = dawio.BackendCoreAudio
	default:
		return false
	}
	h.RegisterMidi(NewDriver(backend, sdk))
	return true
}

func (d *Driver) Backend() dawio.Backend { return d.backend }

func (d *Driver) Enumerate(ctx context.Context) dawio.MidiBackendInfo {
	info := dawio.MidiBackendInfo{
		Backend:    d.backend,
		Version:    "RtMidi",
		InDevices:  []dawio.MidiDeviceInfo{},
		OutDevices: []dawio.MidiDeviceInfo{},
	}
	ins, err := d.sdk.Ins()
	if err == nil {
		var outs []string
		outs, err = d.sdk.Outs()
		for _, name := range outs {
			info.OutDevices = append(info.OutDevices, dawio.MidiDeviceInfo{ID: dawio.DeviceID{Name: name}})
		}
	}
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
	for _, name := range ins {
		info.InDevices = append(info.InDevices, dawio.MidiDeviceInfo{ID: dawio.DeviceID{Name: name}})
	}
	info.Status = dawio.StatusRunning
	if len(info.InDevices) > 0 {
		def := 0
		info.DefaultIn = &def
	}
	if len(info.OutDevices) > 0 {
		def := 0
		info.DefaultOut = &def
	}
	return info
}

func find(list func() ([]string, error), id dawio.DeviceID) (string, error) {
	names, err := list()
	if err != nil {
		return "", err
	}
	if !slices.Contains(names, id.Name) {
		return "", fmt.Errorf("midi port %s not found", id)
	}
	return id.Name, nil
}

// OpenInput listens on the named input. Every RtMidi port is its own
// device, so portIndex is unused.
func (d *Driver) OpenInput(ctx context.Context, id dawio.DeviceID, portIndex int, recv func(time.Time, []byte), fail func(error)) (io.Closer, error) {
	name, err := find(d.sdk.Ins, id)
	if err != nil {
		return nil, err
	}
	in := &input{}
	stop, err := d.sdk.Listen(name, func(msg []byte) {
		recv(time.Now(), msg)
	}, func(err error) {
		if in.closed() {
			return
		}
		in.failOnce.Do(func() { fail(err) })
	})
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", name, err)
	}
	in.stop = stop
	return in, nil
}

type input struct {
	mu       sync.Mutex
	stop     func()
	done     bool
	failOnce sync.Once
}

func (in *input) closed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.done
}

func (in *input) Close() error {
	in.mu.Lock()
	if in.done {
		in.mu.Unlock()
		return nil
	}
	in.done = true
	stop := in.stop
	in.mu.Unlock()
	if stop != nil {
		stop()
	}
	return nil
}

// OpenOutput opens the named output.
func (d *Driver) OpenOutput(ctx context.Context, id dawio.DeviceID, portIndex int) (dawio.MidiSender, error) {
	name, err := find(d.sdk.Outs, id)
	if err != nil {
		return nil, err
	}
	out, err := d.sdk.OpenOutput(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return out, nil
}
