//go:build cgo && (windows || darwin)

// Package miniaudio holds the malgo plumbing shared by the WASAPI and
// CoreAudio bindings: one process-wide context per backend, enriched device
// listings, and duplex devices driven by a data callback.
package miniaudio

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/smazurov/dawio/pkg/dawio/sampleconv"
)

// Device is one endpoint as reported by miniaudio.
type Device struct {
	ID        malgo.DeviceID
	Name      string
	IsDefault bool
	Channels  int
	Rates     []uint32
	Formats   []sampleconv.Format

	// Mix is the first native format, which is the mix format in shared
	// mode. Formats miniaudio cannot carry show up as F32LE.
	Mix     sampleconv.Format
	MixRate uint32
}

// Identifier is the stable string form of the endpoint ID.
func (d Device) Identifier() string { return Identifier(d.ID) }

// Identifier hex-encodes a malgo device ID.
func Identifier(id malgo.DeviceID) string {
	return hex.EncodeToString(id[:])
}

// ParseIdentifier reverses Identifier.
func ParseIdentifier(s string) (malgo.DeviceID, error) {
	var id malgo.DeviceID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("device id has %d bytes, want %d", len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}

var formats = map[malgo.FormatType]sampleconv.Format{
	malgo.FormatU8:  sampleconv.U8,
	malgo.FormatS16: sampleconv.S16LE,
	malgo.FormatS24: sampleconv.S24LE3,
	malgo.FormatS32: sampleconv.S32LE,
	malgo.FormatF32: sampleconv.F32LE,
}

// FormatType maps a sample format to miniaudio. Formats miniaudio cannot
// carry report false.
func FormatType(f sampleconv.Format) (malgo.FormatType, bool) {
	for ft, sf := range formats {
		if sf == f {
			return ft, true
		}
	}
	return malgo.FormatUnknown, false
}

// Context is a process-wide miniaudio context bound to one backend.
type Context struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	logger *slog.Logger
}

var (
	contextsMu sync.Mutex
	contexts   = map[malgo.Backend]*Context{}
)

// Shared returns the context for backend, creating it on first use.
func Shared(backend malgo.Backend, logger *slog.Logger) (*Context, error) {
	contextsMu.Lock()
	defer contextsMu.Unlock()
	if c, ok := contexts[backend]; ok {
		return c, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Context{logger: logger}
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(msg string) {
		c.logger.Debug("miniaudio", "message", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	c.ctx = ctx
	contexts[backend] = c
	return c, nil
}

// Devices lists the endpoints of one direction with their native formats.
func (c *Context) Devices(kind malgo.DeviceType) ([]Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	infos, err := c.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	out := make([]Device, 0, len(infos))
	for _, info := range infos {
		full, err := c.ctx.DeviceInfo(kind, info.ID, malgo.Shared)
		if err != nil {
			c.logger.Warn("Unable to get audio device info", "device", info.Name(), "error", err)
			continue
		}
		out = append(out, describe(full))
	}
	return out, nil
}

// Probe reports whether the endpoint natively supports the format in the
// given share mode. Zero channels or rate in a native format match anything.
func (c *Context) Probe(kind malgo.DeviceType, id malgo.DeviceID, mode malgo.ShareMode, f sampleconv.Format, channels int, rate uint32) bool {
	ft, ok := FormatType(f)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	info, err := c.ctx.DeviceInfo(kind, id, mode)
	if err != nil {
		return false
	}
	for i := range min(int(info.FormatCount), len(info.Formats)) {
		df := info.Formats[i]
		if df.Format != malgo.FormatUnknown && df.Format != ft {
			continue
		}
		if df.Channels != 0 && int(df.Channels) != channels {
			continue
		}
		if df.SampleRate != 0 && df.SampleRate != rate {
			continue
		}
		return true
	}
	return false
}

func describe(info malgo.DeviceInfo) Device {
	d := Device{
		ID:        info.ID,
		Name:      info.Name(),
		IsDefault: info.IsDefault == 1,
	}
	for i := range min(int(info.FormatCount), len(info.Formats)) {
		df := info.Formats[i]
		if i == 0 {
			d.Mix, d.MixRate = formats[df.Format], df.SampleRate
		}
		d.Channels = max(d.Channels, int(df.Channels))
		if df.SampleRate != 0 && !slices.Contains(d.Rates, df.SampleRate) {
			d.Rates = append(d.Rates, df.SampleRate)
		}
		if f, ok := formats[df.Format]; ok && !slices.Contains(d.Formats, f) {
			d.Formats = append(d.Formats, f)
		}
	}
	slices.Sort(d.Rates)
	return d
}

// DuplexConfig opens capture, playback or both on one device callback.
type DuplexConfig struct {
	Capture          *malgo.DeviceID
	Playback         *malgo.DeviceID
	CaptureChannels  int
	PlaybackChannels int
	CaptureFormat    sampleconv.Format
	PlaybackFormat   sampleconv.Format
	SampleRate       uint32
	PeriodFrames     uint32
	Exclusive        bool
}

// ErrNoDirection is returned by Open when neither direction is requested.
var ErrNoDirection = errors.New("neither capture nor playback requested")

// Open initializes a device. data runs on the miniaudio thread with
// interleaved buffers; stopped runs when the device stops for any reason.
// The device is not started.
func (c *Context) Open(cfg DuplexConfig, data func(out, in []byte, frames uint32), stopped func()) (*malgo.Device, error) {
	dc := malgo.DeviceConfig{
		SampleRate:         cfg.SampleRate,
		PeriodSizeInFrames: cfg.PeriodFrames,
		Periods:            2,
		PerformanceProfile: malgo.LowLatency,
	}
	mode := malgo.Shared
	if cfg.Exclusive {
		mode = malgo.Exclusive
	}
	switch {
	case cfg.Capture != nil && cfg.Playback != nil:
		dc.DeviceType = malgo.Duplex
	case cfg.Capture != nil:
		dc.DeviceType = malgo.Capture
	case cfg.Playback != nil:
		dc.DeviceType = malgo.Playback
	default:
		return nil, ErrNoDirection
	}
	if cfg.Capture != nil {
		ft, ok := FormatType(cfg.CaptureFormat)
		if !ok {
			return nil, fmt.Errorf("capture format %s is not supported", cfg.CaptureFormat)
		}
		dc.Capture = malgo.SubConfig{
			DeviceID:  cfg.Capture.Pointer(),
			Format:    ft,
			Channels:  uint32(cfg.CaptureChannels),
			ShareMode: mode,
		}
	}
	if cfg.Playback != nil {
		ft, ok := FormatType(cfg.PlaybackFormat)
		if !ok {
			return nil, fmt.Errorf("playback format %s is not supported", cfg.PlaybackFormat)
		}
		dc.Playback = malgo.SubConfig{
			DeviceID:  cfg.Playback.Pointer(),
			Format:    ft,
			Channels:  uint32(cfg.PlaybackChannels),
			ShareMode: mode,
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	dev, err := malgo.InitDevice(c.ctx.Context, dc, malgo.DeviceCallbacks{
		Data: data,
		Stop: stopped,
	})
	if err != nil {
		return nil, fmt.Errorf("init device: %w", err)
	}
	return dev, nil
}
