package dawio

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Inventory is a snapshot of every backend on the host, in priority order.
// It is the input of Resolve.
type Inventory struct {
	Audio []AudioBackendInfo `json:"audio"`
	Midi  []MidiBackendInfo  `json:"midi"`
}

// AudioBackend returns the snapshot for b.
func (inv Inventory) AudioBackend(b Backend) (AudioBackendInfo, bool) {
	for _, info := range inv.Audio {
		if info.Backend == b {
			return info, true
		}
	}
	return AudioBackendInfo{}, false
}

// MidiBackend returns the snapshot for b.
func (inv Inventory) MidiBackend(b Backend) (MidiBackendInfo, bool) {
	for _, info := range inv.Midi {
		if info.Backend == b {
			return info, true
		}
	}
	return MidiBackendInfo{}, false
}

// AvailableAudioBackends returns the audio backends of this platform in
// priority order, compiled in or not.
func (h *Host) AvailableAudioBackends() []Backend {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Backend(nil), h.audioByOrder...)
}

// AvailableMidiBackends returns the MIDI backends of this platform in
// priority order.
func (h *Host) AvailableMidiBackends() []Backend {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Backend(nil), h.midiByOrder...)
}

// EnumerateAudioBackend probes b. A backend without a registered driver
// reports StatusNotInstalled without probing.
func (h *Host) EnumerateAudioBackend(ctx context.Context, b Backend) (AudioBackendInfo, error) {
	if !b.Valid() {
		return AudioBackendInfo{}, &RunConfigError{Kind: KindAudioBackendNotFound, Backend: b}
	}
	d, ok := h.audioDriver(b)
	if !ok {
		return AudioBackendInfo{Backend: b, Status: StatusNotInstalled}, nil
	}
	ctx, cancel := h.enumContext(ctx)
	defer cancel()
	return safeEnumerateAudio(ctx, d), nil
}

// EnumerateAudioDevice probes b and returns the device matching id.
func (h *Host) EnumerateAudioDevice(ctx context.Context, b Backend, id DeviceID) (AudioDeviceInfo, error) {
	info, err := h.EnumerateAudioBackend(ctx, b)
	if err != nil {
		return AudioDeviceInfo{}, err
	}
	if err := backendUnusable(info.Backend, info.Status); err != nil {
		return AudioDeviceInfo{}, err
	}
	dev, ok := info.Device(id)
	if !ok {
		return AudioDeviceInfo{}, &RunConfigError{Kind: KindAudioDeviceNotFound, Backend: b, Device: id}
	}
	return dev, nil
}

// EnumerateMidiBackend probes MIDI backend b.
func (h *Host) EnumerateMidiBackend(ctx context.Context, b Backend) (MidiBackendInfo, error) {
	if !b.Valid() {
		return MidiBackendInfo{}, &RunConfigError{Kind: KindMidiBackendNotFound, Backend: b}
	}
	d, ok := h.midiDriver(b)
	if !ok {
		return MidiBackendInfo{Backend: b, Status: StatusNotInstalled}, nil
	}
	ctx, cancel := h.enumContext(ctx)
	defer cancel()
	return safeEnumerateMidi(ctx, d), nil
}

// EnumerateMidiDevice probes b and returns the input or output device
// matching id.
func (h *Host) EnumerateMidiDevice(ctx context.Context, b Backend, id DeviceID) (MidiDeviceInfo, error) {
	info, err := h.EnumerateMidiBackend(ctx, b)
	if err != nil {
		return MidiDeviceInfo{}, err
	}
	if !info.Running() {
		return MidiDeviceInfo{}, &RunConfigError{Kind: KindMidiBackendNotFound, Backend: b}
	}
	if dev, ok := findMidiDevice(info.InDevices, id); ok {
		return dev, nil
	}
	if dev, ok := findMidiDevice(info.OutDevices, id); ok {
		return dev, nil
	}
	return MidiDeviceInfo{}, &RunConfigError{Kind: KindMidiDeviceNotFound, Backend: b, Device: id}
}

// Inventory enumerates every platform backend concurrently.
func (h *Host) Inventory(ctx context.Context) (Inventory, error) {
	audio := h.AvailableAudioBackends()
	midi := h.AvailableMidiBackends()
	inv := Inventory{
		Audio: make([]AudioBackendInfo, len(audio)),
		Midi:  make([]MidiBackendInfo, len(midi)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range audio {
		g.Go(func() error {
			info, err := h.EnumerateAudioBackend(gctx, b)
			inv.Audio[i] = info
			return err
		})
	}
	for i, b := range midi {
		g.Go(func() error {
			info, err := h.EnumerateMidiBackend(gctx, b)
			inv.Midi[i] = info
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Inventory{}, fmt.Errorf("enumerate backends: %w", err)
	}
	return inv, nil
}

// FindPreferredAudioBackend walks the priority list and returns the first
// running backend with at least one device.
func (h *Host) FindPreferredAudioBackend(ctx context.Context) (AudioBackendInfo, bool) {
	for _, b := range h.AvailableAudioBackends() {
		info, err := h.EnumerateAudioBackend(ctx, b)
		if err == nil && info.Running() && len(info.Devices) > 0 {
			return info, true
		}
	}
	return AudioBackendInfo{}, false
}

// FindPreferredAudioDevice returns the preferred device of backend b.
func (h *Host) FindPreferredAudioDevice(ctx context.Context, b Backend) (AudioDeviceInfo, bool) {
	info, err := h.EnumerateAudioBackend(ctx, b)
	if err != nil || !info.Running() {
		return AudioDeviceInfo{}, false
	}
	return PreferredAudioDevice(info)
}

// FindPreferredMidiBackend returns the first running MIDI backend with at
// least one device.
func (h *Host) FindPreferredMidiBackend(ctx context.Context) (MidiBackendInfo, bool) {
	for _, b := range h.AvailableMidiBackends() {
		info, err := h.EnumerateMidiBackend(ctx, b)
		if err == nil && info.Running() && len(info.InDevices)+len(info.OutDevices) > 0 {
			return info, true
		}
	}
	return MidiBackendInfo{}, false
}

// FindPreferredMidiDevice returns the preferred input device of backend b.
func (h *Host) FindPreferredMidiDevice(ctx context.Context, b Backend) (MidiDeviceInfo, bool) {
	info, err := h.EnumerateMidiBackend(ctx, b)
	if err != nil || !info.Running() {
		return MidiDeviceInfo{}, false
	}
	return preferredMidiDevice(info.InDevices, info.DefaultIn)
}

// PreferredAudioDevice picks the backend's default device, else the first
// device with at least two outputs, else the first device.
func PreferredAudioDevice(info AudioBackendInfo) (AudioDeviceInfo, bool) {
	if len(info.Devices) == 0 {
		return AudioDeviceInfo{}, false
	}
	if d := info.DefaultDevice; d != nil && *d >= 0 && *d < len(info.Devices) {
		return info.Devices[*d], true
	}
	for _, dev := range info.Devices {
		if len(dev.OutPorts) >= 2 {
			return dev, true
		}
	}
	return info.Devices[0], true
}

func preferredMidiDevice(devices []MidiDeviceInfo, def *int) (MidiDeviceInfo, bool) {
	if len(devices) == 0 {
		return MidiDeviceInfo{}, false
	}
	if def != nil && *def >= 0 && *def < len(devices) {
		return devices[*def], true
	}
	return devices[0], true
}

func backendUnusable(b Backend, status BackendStatus) error {
	switch status {
	case StatusRunning:
		return nil
	case StatusNotInstalled:
		return &RunConfigError{Kind: KindAudioBackendNotInstalled, Backend: b}
	case StatusNotRunning:
		return &RunConfigError{Kind: KindAudioBackendNotRunning, Backend: b}
	default:
		return &RunConfigError{Kind: KindAudioBackendNotFound, Backend: b}
	}
}

func safeEnumerateAudio(ctx context.Context, d AudioDriver) (info AudioBackendInfo) {
	defer func() {
		if r := recover(); r != nil {
			info = AudioBackendInfo{Backend: d.Backend(), Status: StatusError, ErrorMessage: fmt.Sprint(r)}
		}
	}()
	info = d.Enumerate(ctx)
	info.Backend = d.Backend()
	if info.Status == StatusRunning && len(info.Devices) == 0 {
		info.Status = StatusNoDevices
	}
	if !info.Status.Usable() {
		info.Devices = nil
		info.DefaultDevice = nil
	}
	return info
}

func safeEnumerateMidi(ctx context.Context, d MidiDriver) (info MidiBackendInfo) {
	defer func() {
		if r := recover(); r != nil {
			info = MidiBackendInfo{Backend: d.Backend(), Status: StatusError, ErrorMessage: fmt.Sprint(r)}
		}
	}()
	info = d.Enumerate(ctx)
	info.Backend = d.Backend()
	if !info.Status.Usable() {
		info.InDevices, info.OutDevices = nil, nil
		info.DefaultIn, info.DefaultOut = nil, nil
	}
	return info
}

// Package-level wrappers over the default host.

// AvailableAudioBackends calls DefaultHost().AvailableAudioBackends.
func AvailableAudioBackends() []Backend { return defaultHost.AvailableAudioBackends() }

// AvailableMidiBackends calls DefaultHost().AvailableMidiBackends.
func AvailableMidiBackends() []Backend { return defaultHost.AvailableMidiBackends() }

// EnumerateAudioBackend calls DefaultHost().EnumerateAudioBackend.
func EnumerateAudioBackend(ctx context.Context, b Backend) (AudioBackendInfo, error) {
	return defaultHost.EnumerateAudioBackend(ctx, b)
}

// EnumerateAudioDevice calls DefaultHost().EnumerateAudioDevice.
func EnumerateAudioDevice(ctx context.Context, b Backend, id DeviceID) (AudioDeviceInfo, error) {
	return defaultHost.EnumerateAudioDevice(ctx, b, id)
}

// EnumerateMidiBackend calls DefaultHost().EnumerateMidiBackend.
func EnumerateMidiBackend(ctx context.Context, b Backend) (MidiBackendInfo, error) {
	return defaultHost.EnumerateMidiBackend(ctx, b)
}

// EnumerateMidiDevice calls DefaultHost().EnumerateMidiDevice.
func EnumerateMidiDevice(ctx context.Context, b Backend, id DeviceID) (MidiDeviceInfo, error) {
	return defaultHost.EnumerateMidiDevice(ctx, b, id)
}

// FindPreferredAudioBackend calls DefaultHost().FindPreferredAudioBackend.
func FindPreferredAudioBackend(ctx context.Context) (AudioBackendInfo, bool) {
	return defaultHost.FindPreferredAudioBackend(ctx)
}

// FindPreferredAudioDevice calls DefaultHost().FindPreferredAudioDevice.
func FindPreferredAudioDevice(ctx context.Context, b Backend) (AudioDeviceInfo, bool) {
	return defaultHost.FindPreferredAudioDevice(ctx, b)
}

// FindPreferredMidiBackend calls DefaultHost().FindPreferredMidiBackend.
func FindPreferredMidiBackend(ctx context.Context) (MidiBackendInfo, bool) {
	return defaultHost.FindPreferredMidiBackend(ctx)
}

// FindPreferredMidiDevice calls DefaultHost().FindPreferredMidiDevice.
func FindPreferredMidiDevice(ctx context.Context, b Backend) (MidiDeviceInfo, bool) {
	return defaultHost.FindPreferredMidiDevice(ctx, b)
}

// GetInventory calls DefaultHost().Inventory.
func GetInventory(ctx context.Context) (Inventory, error) {
	return defaultHost.Inventory(ctx)
}
