package coreaudio

import "errors"

// ErrUnavailable is returned by SDKs that cannot run on this platform.
var ErrUnavailable = errors.New("coreaudio is only available on darwin with cgo")

// Device is one audio device. Input and output live on the same device.
type Device struct {
	ID            string
	Name          string
	InChannels    int
	OutChannels   int
	SampleRates   []uint32
	NominalRate   uint32
	DefaultInput  bool
	DefaultOutput bool
}

// SessionConfig opens a render callback session. An empty ID skips that
// direction.
type SessionConfig struct {
	InputID     string
	OutputID    string
	InChannels  int
	OutChannels int
	SampleRate  uint32
	Frames      uint32
}

// RenderFunc runs on the SDK's IO thread with interleaved f32 buffers. in
// is nil without an input device; out must be filled completely.
type RenderFunc func(in, out []float32, frames int)

// Session is an open render callback session.
type Session interface {
	Start() error
	Stop() error
	Close() error
}

// SDK is the slice of CoreAudio the adapter uses.
type SDK interface {
	Version() string
	Devices() ([]Device, error)

	// Open creates a session. lost is called once, from any thread, when
	// the device stops without Stop being called.
	Open(cfg SessionConfig, render RenderFunc, lost func(error)) (Session, error)
}
