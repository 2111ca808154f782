package dawio

import (
	"log/slog"
	"time"
)

// NotFoundBehavior decides what happens when a requested backend or device
// is unavailable.
type NotFoundBehavior int

// Not-found policies.
const (
	NotFoundTryNextBest NotFoundBehavior = iota
	NotFoundReturnWithError
)

// AudioPortNotFoundBehavior decides what happens when a configured port
// does not exist or fails to bind.
type AudioPortNotFoundBehavior int

// Port policies.
const (
	UseEmptyBufferForInvalidPorts AudioPortNotFoundBehavior = iota
	AudioPortReturnWithError
)

// SampleRateConfigErrorBehavior decides what happens when the requested
// sample rate is not advertised.
type SampleRateConfigErrorBehavior struct {
	Kind SampleRateBehaviorKind
	// Min and Max bound the replacement rate for
	// SampleRateTryNextBestWithMinMax.
	Min, Max uint32
}

// SampleRateBehaviorKind tags SampleRateConfigErrorBehavior.
type SampleRateBehaviorKind int

// Sample rate policies.
const (
	SampleRateTryNextBest SampleRateBehaviorKind = iota
	SampleRateTryNextBestWithMinMax
	SampleRateReturnWithError
)

// BufferSizeConfigErrorBehavior decides what happens when the requested
// block size cannot be used.
type BufferSizeConfigErrorBehavior int

// Block size policies.
const (
	BufferSizeTryNextBestThenFallbackToUnfixedSize BufferSizeConfigErrorBehavior = iota
	BufferSizeTryNextBestThenReturnError
	BufferSizeFallbackToUnfixedSize
	BufferSizeReturnWithError
)

// MidiDeviceNotFoundBehavior decides what happens when a configured MIDI
// device is missing.
type MidiDeviceNotFoundBehavior int

// MIDI device policies.
const (
	UseEmptyBufferForInvalidDevices MidiDeviceNotFoundBehavior = iota
	MidiDeviceReturnWithError
)

// ErrorBehavior groups the per-class error policies.
type ErrorBehavior struct {
	AudioBackendNotFound  NotFoundBehavior
	AudioDeviceNotFound   NotFoundBehavior
	MidiBackendNotFound   NotFoundBehavior
	AudioPortNotFound     AudioPortNotFoundBehavior
	SampleRateConfigError SampleRateConfigErrorBehavior
	BufferSizeConfigError BufferSizeConfigErrorBehavior
	MidiDeviceNotFound    MidiDeviceNotFoundBehavior
}

// DefaultErrorBehavior leans toward getting a stream running.
func DefaultErrorBehavior() ErrorBehavior {
	return ErrorBehavior{
		AudioBackendNotFound:  NotFoundTryNextBest,
		AudioDeviceNotFound:   NotFoundTryNextBest,
		MidiBackendNotFound:   NotFoundTryNextBest,
		AudioPortNotFound:     UseEmptyBufferForInvalidPorts,
		SampleRateConfigError: SampleRateConfigErrorBehavior{Kind: SampleRateTryNextBest},
		BufferSizeConfigError: BufferSizeTryNextBestThenFallbackToUnfixedSize,
		MidiDeviceNotFound:    UseEmptyBufferForInvalidDevices,
	}
}

// RunOptions are read-only for the lifetime of a stream.
type RunOptions struct {
	// ApplicationName is the client name shown by servers such as Jack.
	ApplicationName string

	// AutoAudioInputs lets an Auto input selection open the device's default
	// input layout. When false, Auto inputs resolve to none.
	AutoAudioInputs bool

	// MidiBufferSize is the capacity, in events, of every MIDI buffer.
	MidiBufferSize uint32

	CheckForSilentInputs bool
	MustHaveStereoOutput bool

	// EmptyBuffersForFailedPorts keeps ports that did not bind in the buffer
	// layout as silent inputs and discarded outputs.
	EmptyBuffersForFailedPorts bool

	// MsgBufferSize is the capacity of the StreamMsg channel.
	MsgBufferSize int

	// MaxBufferSize bounds preallocated buffers on backends with unfixed
	// block sizes.
	MaxBufferSize uint32

	// CloseTimeout bounds how long Close waits for the audio thread.
	CloseTimeout time.Duration

	ErrorBehavior ErrorBehavior

	// Logger receives controller-side logs. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultRunOptions returns the defaults.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		MidiBufferSize:             1024,
		EmptyBuffersForFailedPorts: true,
		MsgBufferSize:              512,
		MaxBufferSize:              4096,
		CloseTimeout:               5 * time.Second,
		ErrorBehavior:              DefaultErrorBehavior(),
	}
}

func (o RunOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// normalized fills zero values with defaults.
func (o RunOptions) normalized() RunOptions {
	def := DefaultRunOptions()
	if o.MidiBufferSize == 0 {
		o.MidiBufferSize = def.MidiBufferSize
	}
	if o.MsgBufferSize <= 0 {
		o.MsgBufferSize = def.MsgBufferSize
	}
	if o.MaxBufferSize == 0 {
		o.MaxBufferSize = def.MaxBufferSize
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = def.CloseTimeout
	}
	return o
}

// PermissivePorts reports whether ports that fail to bind are kept as silent
// buffers instead of failing the run.
func (o RunOptions) PermissivePorts() bool {
	return o.EmptyBuffersForFailedPorts && o.ErrorBehavior.AudioPortNotFound == UseEmptyBufferForInvalidPorts
}
