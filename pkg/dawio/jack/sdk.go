package jack

import "errors"

// Port type strings as reported by the Jack server.
const (
	AudioType = "32 bit float mono audio"
	MidiType  = "8 bit raw midi"
)

// PortFlags mirror JackPortFlags.
type PortFlags uint64

// Port flags.
const (
	PortIsInput    PortFlags = 0x1
	PortIsOutput   PortFlags = 0x2
	PortIsPhysical PortFlags = 0x4
)

// ErrLibraryNotLoaded is returned by SDK.Open when the Jack client library
// is missing. Enumeration reports it as StatusNotInstalled.
var ErrLibraryNotLoaded = errors.New("jack client library not loaded")

// SDK is the part of libjack the adapter uses.
type SDK interface {
	Open(clientName string) (Client, error)
	Version() string
}

// Client is one Jack client connection. Callbacks run on Jack threads:
// process on the realtime thread, the others on the notification thread.
type Client interface {
	Name() string
	SampleRate() uint32
	BufferSize() uint32

	SetProcessCallback(fn func(nframes uint32) int) error
	SetSampleRateCallback(fn func(rate uint32) int) error
	SetXRunCallback(fn func() int) error
	SetShutdownCallback(fn func(reason string))
	SetPortRegistrationCallback(fn func(portName string, registered bool)) error

	RegisterPort(shortName, portType string, flags PortFlags) (Port, error)
	UnregisterPort(p Port) error

	Connect(src, dst string) error
	Disconnect(src, dst string) error

	// Ports lists full port names whose type matches portType and whose
	// flags include flags.
	Ports(portType string, flags PortFlags) []string

	Activate() error
	Deactivate() error
	Close() error
}

// MidiSink receives MIDI events read from a port.
type MidiSink interface {
	PushMidi(time uint32, data []byte)
}

// Port is a port registered by a Client. Buffer methods are only valid
// inside the process callback.
type Port interface {
	// Name returns the full "client:port" name.
	Name() string

	AudioBuffer(nframes uint32) []float32

	ReadMidi(nframes uint32, sink MidiSink)
	ClearMidi(nframes uint32)
	WriteMidi(nframes uint32, time uint32, data []byte) error
}
