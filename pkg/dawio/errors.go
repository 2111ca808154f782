package dawio

import (
	"errors"
	"fmt"
)

// RunConfigErrorKind classifies setup failures returned by Run and Resolve.
type RunConfigErrorKind int

// Run config error kinds.
const (
	KindMalformedConfig RunConfigErrorKind = iota + 1
	KindAudioBackendNotFound
	KindAudioBackendNotInstalled
	KindAudioBackendNotRunning
	KindAudioDeviceNotFound
	KindCouldNotUseSampleRate
	KindCouldNotUseBlockSize
	KindConfigHasNoStereoOutput
	KindAutoNoStereoOutputFound
	KindCouldNotUseExclusive
	KindAudioPortNotFound
	KindMidiBackendNotFound
	KindMidiDeviceNotFound
	KindJackNotEnabledForPlatform
	KindPlatformSpecific
)

// Sentinels for errors.Is against a *RunConfigError.
var (
	ErrMalformedConfig           = &RunConfigError{Kind: KindMalformedConfig}
	ErrAudioBackendNotFound      = &RunConfigError{Kind: KindAudioBackendNotFound}
	ErrAudioBackendNotInstalled  = &RunConfigError{Kind: KindAudioBackendNotInstalled}
	ErrAudioBackendNotRunning    = &RunConfigError{Kind: KindAudioBackendNotRunning}
	ErrAudioDeviceNotFound       = &RunConfigError{Kind: KindAudioDeviceNotFound}
	ErrCouldNotUseSampleRate     = &RunConfigError{Kind: KindCouldNotUseSampleRate}
	ErrCouldNotUseBlockSize      = &RunConfigError{Kind: KindCouldNotUseBlockSize}
	ErrConfigHasNoStereoOutput   = &RunConfigError{Kind: KindConfigHasNoStereoOutput}
	ErrAutoNoStereoOutputFound   = &RunConfigError{Kind: KindAutoNoStereoOutputFound}
	ErrCouldNotUseExclusive      = &RunConfigError{Kind: KindCouldNotUseExclusive}
	ErrAudioPortNotFound         = &RunConfigError{Kind: KindAudioPortNotFound}
	ErrMidiBackendNotFound       = &RunConfigError{Kind: KindMidiBackendNotFound}
	ErrMidiDeviceNotFound        = &RunConfigError{Kind: KindMidiDeviceNotFound}
	ErrJackNotEnabledForPlatform = &RunConfigError{Kind: KindJackNotEnabledForPlatform}
	ErrPlatformSpecific          = &RunConfigError{Kind: KindPlatformSpecific}
)

// RunConfigError is returned when a config cannot be run. Only the fields
// relevant to Kind are set.
type RunConfigError struct {
	Kind       RunConfigErrorKind
	Message    string
	Backend    Backend
	Device     DeviceID
	SampleRate uint32
	BlockSize  uint32
	Port       string
	Err        error
}

func (e *RunConfigError) Error() string {
	switch e.Kind {
	case KindMalformedConfig:
		return "malformed config: " + e.Message
	case KindAudioBackendNotFound:
		if e.Backend == "" {
			return "no usable audio backend found"
		}
		return fmt.Sprintf("audio backend %s not found", e.Backend)
	case KindAudioBackendNotInstalled:
		return fmt.Sprintf("audio backend %s is not installed", e.Backend)
	case KindAudioBackendNotRunning:
		return fmt.Sprintf("audio backend %s is not running", e.Backend)
	case KindAudioDeviceNotFound:
		if e.Device == (DeviceID{}) {
			return fmt.Sprintf("no usable audio device on %s", e.Backend)
		}
		return fmt.Sprintf("audio device %s not found", e.Device)
	case KindCouldNotUseSampleRate:
		return fmt.Sprintf("could not use sample rate %d", e.SampleRate)
	case KindCouldNotUseBlockSize:
		return fmt.Sprintf("could not use block size %d", e.BlockSize)
	case KindConfigHasNoStereoOutput:
		return "config has no stereo output"
	case KindAutoNoStereoOutputFound:
		return "no device with a stereo output was found"
	case KindCouldNotUseExclusive:
		return "could not use exclusive mode"
	case KindAudioPortNotFound:
		return fmt.Sprintf("audio port %q not found", e.Port)
	case KindMidiBackendNotFound:
		if e.Backend == "" {
			return "no usable midi backend found"
		}
		return fmt.Sprintf("midi backend %s not found", e.Backend)
	case KindMidiDeviceNotFound:
		return fmt.Sprintf("midi device %s not found", e.Device)
	case KindJackNotEnabledForPlatform:
		return "jack is not enabled for this platform"
	case KindPlatformSpecific:
		if e.Err != nil {
			return "platform error: " + e.Err.Error()
		}
		return "platform error: " + e.Message
	default:
		return "run config error"
	}
}

// Unwrap returns the platform cause, if any.
func (e *RunConfigError) Unwrap() error {
	return e.Err
}

// Is matches any *RunConfigError of the same kind, so the sentinels work
// with errors.Is.
func (e *RunConfigError) Is(target error) bool {
	var t *RunConfigError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func malformed(format string, args ...any) *RunConfigError {
	return &RunConfigError{Kind: KindMalformedConfig, Message: fmt.Sprintf(format, args...)}
}

// PlatformError wraps a backend-specific setup failure.
func PlatformError(err error) *RunConfigError {
	return &RunConfigError{Kind: KindPlatformSpecific, Err: err}
}

// StreamErrorKind classifies runtime errors reported through StreamMsg.
type StreamErrorKind int

// Stream error kinds.
const (
	AudioServerShutdown StreamErrorKind = iota + 1
	AudioServerChangedSamplerate
	StreamPlatformSpecific
)

func (k StreamErrorKind) String() string {
	switch k {
	case AudioServerShutdown:
		return "audio_server_shutdown"
	case AudioServerChangedSamplerate:
		return "audio_server_changed_samplerate"
	case StreamPlatformSpecific:
		return "platform_specific"
	default:
		return fmt.Sprintf("stream_error(%d)", int(k))
	}
}

// StreamError is a runtime error. It is a value type so it can travel
// through the message channel without allocating.
type StreamError struct {
	Kind          StreamErrorKind
	Message       string
	NewSampleRate uint32
	Err           error
}

func (e StreamError) Error() string {
	switch e.Kind {
	case AudioServerShutdown:
		if e.Message != "" {
			return "audio server shut down: " + e.Message
		}
		return "audio server shut down"
	case AudioServerChangedSamplerate:
		return fmt.Sprintf("audio server changed sample rate to %d", e.NewSampleRate)
	default:
		if e.Err != nil {
			return "stream platform error: " + e.Err.Error()
		}
		return "stream platform error: " + e.Message
	}
}

// Unwrap returns the platform cause, if any.
func (e StreamError) Unwrap() error {
	return e.Err
}

// ChangeErrorKind classifies control plane failures.
type ChangeErrorKind int

// Change error kinds shared by the three change errors.
const (
	NotSupportedByBackend ChangeErrorKind = iota + 1
	InvalidPort
	InvalidBlockSize
	InvalidMidiDevice
	StreamClosed
	ChangePlatformSpecific
)

func (k ChangeErrorKind) String() string {
	switch k {
	case NotSupportedByBackend:
		return "not supported by backend"
	case InvalidPort:
		return "invalid port"
	case InvalidBlockSize:
		return "invalid block size"
	case InvalidMidiDevice:
		return "invalid midi device"
	case StreamClosed:
		return "stream closed"
	case ChangePlatformSpecific:
		return "platform error"
	default:
		return fmt.Sprintf("change_error(%d)", int(k))
	}
}

type changeError struct {
	Kind   ChangeErrorKind
	Detail string
	Err    error
}

func (e changeError) describe(what string) string {
	msg := what + ": " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// ChangeBlockSizeError is returned by StreamHandle.ChangeBlockSizeConfig.
type ChangeBlockSizeError struct{ changeError }

func (e *ChangeBlockSizeError) Error() string { return e.describe("change block size") }

// Unwrap returns the platform cause, if any.
func (e *ChangeBlockSizeError) Unwrap() error { return e.Err }

// ChangeAudioPortsError is returned by the audio port change calls.
type ChangeAudioPortsError struct{ changeError }

func (e *ChangeAudioPortsError) Error() string { return e.describe("change audio ports") }

// Unwrap returns the platform cause, if any.
func (e *ChangeAudioPortsError) Unwrap() error { return e.Err }

// ChangeMidiPortsError is returned by StreamHandle.ChangeMidiDeviceConfig.
type ChangeMidiPortsError struct{ changeError }

func (e *ChangeMidiPortsError) Error() string { return e.describe("change midi ports") }

// Unwrap returns the platform cause, if any.
func (e *ChangeMidiPortsError) Unwrap() error { return e.Err }

// NewChangeBlockSizeError builds a ChangeBlockSizeError.
func NewChangeBlockSizeError(kind ChangeErrorKind, detail string, err error) *ChangeBlockSizeError {
	return &ChangeBlockSizeError{changeError{Kind: kind, Detail: detail, Err: err}}
}

// NewChangeAudioPortsError builds a ChangeAudioPortsError.
func NewChangeAudioPortsError(kind ChangeErrorKind, detail string, err error) *ChangeAudioPortsError {
	return &ChangeAudioPortsError{changeError{Kind: kind, Detail: detail, Err: err}}
}

// NewChangeMidiPortsError builds a ChangeMidiPortsError.
func NewChangeMidiPortsError(kind ChangeErrorKind, detail string, err error) *ChangeMidiPortsError {
	return &ChangeMidiPortsError{changeError{Kind: kind, Detail: detail, Err: err}}
}

// ChangeKind extracts the ChangeErrorKind from any of the change errors.
func ChangeKind(err error) (ChangeErrorKind, bool) {
	var bs *ChangeBlockSizeError
	if errors.As(err, &bs) {
		return bs.Kind, true
	}
	var ap *ChangeAudioPortsError
	if errors.As(err, &ap) {
		return ap.Kind, true
	}
	var mp *ChangeMidiPortsError
	if errors.As(err, &mp) {
		return mp.Kind, true
	}
	return 0, false
}
