package dawio

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"
)

// AudioDriver is implemented by every audio backend package.
type AudioDriver interface {
	Backend() Backend

	// Enumerate probes the backend. Failures are reported through the
	// Status and ErrorMessage fields, never as a panic.
	Enumerate(ctx context.Context) AudioBackendInfo

	// Start opens the plan in req and begins calling the engine. It must
	// not return before the stream is running or has failed.
	Start(ctx context.Context, req StartRequest) (PlatformStream, error)
}

// MidiDriver is implemented by every MIDI backend package.
type MidiDriver interface {
	Backend() Backend
	Enumerate(ctx context.Context) MidiBackendInfo
}

// MidiPortOpener is a MidiDriver whose devices are serviced through the
// generic bridge rather than by the audio backend itself.
type MidiPortOpener interface {
	MidiDriver

	// OpenInput starts delivering events from a device. recv is called from
	// a driver goroutine; fail is called once if the device goes away.
	OpenInput(ctx context.Context, id DeviceID, portIndex int, recv func(at time.Time, data []byte), fail func(error)) (io.Closer, error)

	OpenOutput(ctx context.Context, id DeviceID, portIndex int) (MidiSender, error)
}

// MidiSender writes raw MIDI messages to a device.
type MidiSender interface {
	Send(data []byte) error
	Close() error
}

// Capabilities are the live reconfigurations a PlatformStream supports.
type Capabilities struct {
	AudioPorts bool
	JackPorts  bool
	BlockSize  bool

	// NativeMidi is set when the audio backend services MIDI itself. Other
	// streams get MIDI through a MidiSession.
	NativeMidi  bool
	MidiDevices bool
}

// PlatformStream is the backend side of a running stream. All methods are
// called from the controller; the StreamHandle serializes them.
type PlatformStream interface {
	Engine() *Engine
	Capabilities() Capabilities

	ChangeAudioPorts(in, out *[]int) error
	ChangeJackPorts(in, out *[]string) error
	ChangeBlockSize(n uint32) error

	// ChangeMidiPorts is only called when Capabilities().NativeMidi is set.
	ChangeMidiPorts(in, out *[]MidiPortConfig) error

	// Stop ends the stream and releases SDK resources. It returns once the
	// audio thread will no longer call the engine, or when ctx expires.
	Stop(ctx context.Context) error
}

// StartRequest carries everything a driver needs to start a stream.
type StartRequest struct {
	Plan     Plan
	Options  RunOptions
	Handler  ProcessHandler
	Messages MsgProducer

	// Midi holds bridges for non-native MIDI. Nil when the plan has no MIDI
	// or the driver handles it natively.
	Midi *MidiSession

	// Fatal is called at most once, from any goroutine, when the stream can
	// no longer run. The StreamHandle tears the stream down in response.
	Fatal func(StreamError)

	Logger *slog.Logger
}

// NewEngine builds the engine for layout, filling in the MIDI bridges of the
// session and the silence flag.
func (r StartRequest) NewEngine(layout Layout) (*Engine, error) {
	if r.Midi != nil {
		r.Midi.applyTo(&layout)
	}
	layout.Info.CheckingForSilentInputs = r.Options.CheckForSilentInputs
	return NewEngine(r.Handler, r.Options, r.Messages, layout)
}

// NativeMidiDriver is implemented by audio drivers that service MIDI ports
// of their own backend, such as Jack.
type NativeMidiDriver interface {
	NativeMidi() bool
}

// Host is a set of registered drivers.
type Host struct {
	mu           sync.RWMutex
	goos         string
	audio        map[Backend]AudioDriver
	midi         map[Backend]MidiDriver
	enumTimeout  time.Duration
	audioByOrder []Backend
	midiByOrder  []Backend
}

// NewHost creates an empty host for the given GOOS.
func NewHost(goos string) *Host {
	return &Host{
		goos:         goos,
		audio:        make(map[Backend]AudioDriver),
		midi:         make(map[Backend]MidiDriver),
		enumTimeout:  5 * time.Second,
		audioByOrder: PlatformBackends(goos),
		midiByOrder:  PlatformMidiBackends(goos),
	}
}

var defaultHost = &Host{
	goos:         runtime.GOOS,
	audio:        make(map[Backend]AudioDriver),
	midi:         make(map[Backend]MidiDriver),
	enumTimeout:  5 * time.Second,
	audioByOrder: defaultPriority(),
	midiByOrder:  PlatformMidiBackends(runtime.GOOS),
}

// DefaultHost returns the host used by the package-level functions.
func DefaultHost() *Host { return defaultHost }

// RegisterAudio makes an audio driver available. It panics if a driver for
// the same backend is already registered.
func (h *Host) RegisterAudio(d AudioDriver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d == nil {
		panic("dawio: RegisterAudio driver is nil")
	}
	b := d.Backend()
	if _, dup := h.audio[b]; dup {
		panic("dawio: RegisterAudio called twice for backend " + string(b))
	}
	h.audio[b] = d
	if !containsBackend(h.audioByOrder, b) {
		h.audioByOrder = append(h.audioByOrder, b)
	}
}

// RegisterMidi makes a MIDI driver available. It panics if a driver for the
// same backend is already registered.
func (h *Host) RegisterMidi(d MidiDriver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d == nil {
		panic("dawio: RegisterMidi driver is nil")
	}
	b := d.Backend()
	if _, dup := h.midi[b]; dup {
		panic("dawio: RegisterMidi called twice for backend " + string(b))
	}
	h.midi[b] = d
	if !containsBackend(h.midiByOrder, b) {
		h.midiByOrder = append(h.midiByOrder, b)
	}
}

// RegisterAudio registers an audio driver with the default host. Backend
// packages call it from init.
func RegisterAudio(d AudioDriver) { defaultHost.RegisterAudio(d) }

// RegisterMidi registers a MIDI driver with the default host.
func RegisterMidi(d MidiDriver) { defaultHost.RegisterMidi(d) }

// RegisteredAudioBackends returns the backends with a registered driver,
// sorted by name.
func (h *Host) RegisteredAudioBackends() []Backend {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Backend, 0, len(h.audio))
	for b := range h.audio {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RegisteredMidiBackends returns the MIDI backends with a registered
// driver, sorted by name.
func (h *Host) RegisteredMidiBackends() []Backend {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Backend, 0, len(h.midi))
	for b := range h.midi {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Host) audioDriver(b Backend) (AudioDriver, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.audio[b]
	return d, ok
}

func (h *Host) midiDriver(b Backend) (MidiDriver, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.midi[b]
	return d, ok
}

func (h *Host) enumContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.enumTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.enumTimeout)
}

func containsBackend(list []Backend, b Backend) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}
