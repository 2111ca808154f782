package wasapi

import (
	"errors"
	"time"

	"github.com/smazurov/dawio/pkg/dawio/sampleconv"
)

// Errors a Client returns from Wait.
var (
	ErrTimeout           = errors.New("wasapi: timed out waiting for buffer")
	ErrDeviceInvalidated = errors.New("wasapi: device invalidated")
)

// DataFlow is the direction of an endpoint.
type DataFlow int

const (
	Render DataFlow = iota
	Capture
)

func (f DataFlow) String() string {
	if f == Capture {
		return "capture"
	}
	return "render"
}

// DeviceState mirrors the endpoint states of the device enumerator.
type DeviceState int

const (
	StateActive DeviceState = iota
	StateDisabled
	StateNotPresent
	StateUnplugged
)

func (s DeviceState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDisabled:
		return "disabled"
	case StateNotPresent:
		return "not present"
	case StateUnplugged:
		return "unplugged"
	default:
		return "unknown"
	}
}

// Endpoint is one audio endpoint.
type Endpoint struct {
	ID        string
	Name      string
	Flow      DataFlow
	State     DeviceState
	IsDefault bool
}

// ShareMode selects shared or exclusive access to an endpoint.
type ShareMode int

const (
	Shared ShareMode = iota
	Exclusive
)

// WaveFormat is an interleaved PCM format.
type WaveFormat struct {
	Format   sampleconv.Format
	Channels int
	Rate     uint32
}

// ClientConfig opens one audio client over up to two endpoints.
type ClientConfig struct {
	Mode ShareMode

	// CaptureID and RenderID are empty for a direction that is not used.
	CaptureID string
	RenderID  string
	Capture   WaveFormat
	Render    WaveFormat

	// PeriodFrames is a hint; shared mode may use the engine period.
	PeriodFrames uint32
}

// Exchange is one period of device buffers. In is nil without capture, Out
// is nil without render. Out must be filled before Release.
type Exchange struct {
	In     []byte
	Out    []byte
	Frames int
}

// Client is an initialized audio client.
type Client interface {
	// BufferFrames is the largest period Wait hands out.
	BufferFrames() uint32

	Start() error

	// Wait blocks until the device needs the next period, the timeout
	// expires (ErrTimeout) or the device goes away (ErrDeviceInvalidated).
	Wait(timeout time.Duration) (Exchange, error)

	// Release gives the buffers of the last Exchange back to the device.
	Release() error

	Stop() error
	Close() error
}

// SDK is the slice of WASAPI the adapter uses.
type SDK interface {
	// Init initializes the platform audio subsystem. The driver calls it
	// once per process.
	Init() error

	Version() string

	// Endpoints lists the endpoints of one flow. Only active endpoints are
	// required; an endpoint missing from the list counts as not present.
	Endpoints(flow DataFlow) ([]Endpoint, error)

	// MixFormat is the shared mode format of an endpoint.
	MixFormat(id string, flow DataFlow) (WaveFormat, error)

	IsFormatSupported(id string, flow DataFlow, mode ShareMode, f WaveFormat) bool

	Open(cfg ClientConfig) (Client, error)
}
