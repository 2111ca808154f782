package dawio

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

// Backend identifies a platform audio or MIDI subsystem.
type Backend string

// Known backends. Each one is compiled in independently.
const (
	BackendJack      Backend = "jack"
	BackendPipewire  Backend = "pipewire"
	BackendAlsa      Backend = "alsa"
	BackendPulse     Backend = "pulse"
	BackendCoreAudio Backend = "coreaudio"
	BackendWasapi    Backend = "wasapi"
	BackendAsio      Backend = "asio"
)

// AllBackends lists every backend this package knows about.
var AllBackends = []Backend{
	BackendJack, BackendPipewire, BackendAlsa, BackendPulse,
	BackendCoreAudio, BackendWasapi, BackendAsio,
}

// String returns the display name of the backend.
func (b Backend) String() string {
	switch b {
	case BackendJack:
		return "Jack"
	case BackendPipewire:
		return "Pipewire"
	case BackendAlsa:
		return "ALSA"
	case BackendPulse:
		return "PulseAudio"
	case BackendCoreAudio:
		return "CoreAudio"
	case BackendWasapi:
		return "WASAPI"
	case BackendAsio:
		return "ASIO"
	default:
		return string(b)
	}
}

// Valid reports whether b is one of the known backends.
func (b Backend) Valid() bool {
	for _, known := range AllBackends {
		if b == known {
			return true
		}
	}
	return false
}

// HasExclusiveMode reports whether the backend can open a device for this
// process alone. Only WASAPI can; TakeExclusive is ignored elsewhere.
func (b Backend) HasExclusiveMode() bool {
	return b == BackendWasapi
}

// ParseBackend accepts either the identifier ("wasapi") or the display name
// ("WASAPI"), case-insensitively.
func ParseBackend(s string) (Backend, error) {
	s = strings.TrimSpace(s)
	for _, b := range AllBackends {
		if strings.EqualFold(s, string(b)) || strings.EqualFold(s, b.String()) {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler so profiles can spell
// backends either way.
func (b *Backend) UnmarshalText(text []byte) error {
	parsed, err := ParseBackend(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// PlatformBackends returns the backends in priority order for the given
// GOOS. The first entry is tried first when the backend is Auto.
func PlatformBackends(goos string) []Backend {
	switch goos {
	case "linux", "freebsd":
		return []Backend{BackendJack, BackendPipewire, BackendPulse, BackendAlsa}
	case "windows":
		return []Backend{BackendWasapi, BackendAsio}
	case "darwin":
		return []Backend{BackendCoreAudio, BackendJack}
	default:
		return nil
	}
}

// PlatformMidiBackends returns the MIDI backends in priority order for the
// given GOOS.
func PlatformMidiBackends(goos string) []Backend {
	switch goos {
	case "linux", "freebsd":
		return []Backend{BackendJack, BackendAlsa}
	case "windows":
		return []Backend{BackendWasapi}
	case "darwin":
		return []Backend{BackendCoreAudio, BackendJack}
	default:
		return nil
	}
}

func defaultPriority() []Backend {
	return PlatformBackends(runtime.GOOS)
}

// BackendStatus is the availability of a backend at enumeration time.
type BackendStatus int

// Backend statuses.
const (
	StatusNotInstalled BackendStatus = iota
	StatusNotRunning
	StatusRunning
	StatusNoDevices
	StatusError
)

func (s BackendStatus) String() string {
	switch s {
	case StatusNotInstalled:
		return "not_installed"
	case StatusNotRunning:
		return "not_running"
	case StatusRunning:
		return "running"
	case StatusNoDevices:
		return "no_devices"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalJSON encodes the status by name.
func (s BackendStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Usable reports whether devices on this backend can be opened.
func (s BackendStatus) Usable() bool {
	return s == StatusRunning
}
