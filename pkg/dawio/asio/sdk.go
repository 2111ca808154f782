package asio

import "errors"

// ErrNoHostAPI is returned by Init when PortAudio was built without the
// ASIO host API or no ASIO driver is installed.
var ErrNoHostAPI = errors.New("asio host api not available")

// Device is one ASIO driver. ASIO exposes exactly one device per driver.
type Device struct {
	Index       int
	Name        string
	InChannels  int
	OutChannels int
	DefaultRate uint32
	IsDefault   bool

	// MinFrames and MaxFrames bound the buffer sizes the driver accepts.
	// PreferredFrames is the size set in the driver's control panel.
	MinFrames       uint32
	MaxFrames       uint32
	PreferredFrames uint32
}

// StreamConfig opens a duplex callback stream on one driver.
type StreamConfig struct {
	Device      int
	InChannels  int
	OutChannels int
	SampleRate  uint32
	Frames      uint32
}

// ProcessFunc is called on the driver thread with interleaved f32 buffers
// of the configured size. in is empty without input channels.
type ProcessFunc func(in, out []float32)

// Stream is an open callback stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// SDK is the slice of the ASIO host API the adapter uses.
type SDK interface {
	Init() error
	Version() string
	Devices() ([]Device, error)
	Supports(device, inChannels, outChannels int, rate uint32) bool
	Open(cfg StreamConfig, process ProcessFunc) (Stream, error)
}
