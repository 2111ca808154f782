package alsa

import (
	"context"
	"errors"
	"io"

	"github.com/smazurov/dawio/pkg/dawio/sampleconv"
)

// Errors a PCM transfer may return besides SDK specific failures.
var (
	// ErrXrun is an overrun or underrun. Prepare recovers the PCM.
	ErrXrun = errors.New("alsa: xrun")

	// ErrDisconnected means the card went away.
	ErrDisconnected = errors.New("alsa: device disconnected")
)

// Direction is a PCM stream direction.
type Direction int

const (
	Playback Direction = iota
	Capture
)

func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "playback"
}

// PCMCaps is the configuration space of one PCM direction.
type PCMCaps struct {
	Rates       []uint32
	MinChannels int
	MaxChannels int
	Formats     []sampleconv.Format
	MinPeriod   uint32
	MaxPeriod   uint32
}

// PCMInfo describes a PCM device. A direction the device lacks, or that
// could not be probed, is nil.
type PCMInfo struct {
	Card     int
	Device   int
	CardName string
	Name     string
	Capture  *PCMCaps
	Playback *PCMCaps
}

// HwParams is a PCM configuration. Sizes are in frames.
type HwParams struct {
	Format     sampleconv.Format
	Channels   int
	Rate       uint32
	PeriodSize int
	Periods    int
}

// FrameBytes returns the size of one interleaved frame.
func (h HwParams) FrameBytes() int {
	return h.Channels * h.Format.Bytes()
}

// PCM is one open direction of a PCM device. Transfers block.
type PCM interface {
	// Configure applies hw and sw params and returns what the device
	// accepted. Format, channels and rate must match exactly.
	Configure(want HwParams) (HwParams, error)
	Prepare() error
	Drop() error
	ReadInterleaved(buf []byte, frames int) (int, error)
	WriteInterleaved(buf []byte, frames int) (int, error)
	Close() error
}

// MidiPortInfo describes a raw MIDI device.
type MidiPortInfo struct {
	Card     int
	Device   int
	CardName string
	Name     string
	Input    bool
	Output   bool
}

// SDK is the part of the ALSA kernel interface the adapter needs.
type SDK interface {
	Version() string

	// Devices lists every PCM device with probed capabilities. An error
	// means ALSA itself is unusable.
	Devices() ([]PCMInfo, error)
	OpenPCM(card, device int, dir Direction) (PCM, error)

	MidiPorts() ([]MidiPortInfo, error)
	OpenMidi(card, device int, input bool) (io.ReadWriteCloser, error)

	// WatchCards calls fn for cards that appear or disappear until ctx is
	// done.
	WatchCards(ctx context.Context, fn func(card int, added bool)) error
}
