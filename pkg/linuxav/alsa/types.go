//go:build linux

package alsa

import "strconv"

// Stream is the PCM direction.
type Stream int

const (
	StreamPlayback Stream = 0
	StreamCapture  Stream = 1
)

func (s Stream) String() string {
	if s == StreamCapture {
		return "capture"
	}
	return "playback"
}

// suffix is the character ALSA appends to PCM node names.
func (s Stream) suffix() byte {
	if s == StreamCapture {
		return 'c'
	}
	return 'p'
}

// Device represents one direction of an ALSA PCM device.
type Device struct {
	CardNumber       int
	CardID           string
	CardName         string
	DeviceNumber     int
	DeviceName       string
	Type             Stream
	ALSADevice       string // e.g. "hw:0,0"
	SupportedRates   []int
	MinChannels      int
	MaxChannels      int
	SupportedFormats []Format
	MinBufferSize    int
	MaxBufferSize    int
	MinPeriodSize    int
	MaxPeriodSize    int
}

// FormatALSADevice creates an ALSA device string from card and device numbers.
func FormatALSADevice(cardNum, deviceNum int) string {
	return "hw:" + strconv.Itoa(cardNum) + "," + strconv.Itoa(deviceNum)
}

// Format is an ALSA PCM sample format number.
type Format int

// PCM format constants
const (
	FormatS8        Format = 0
	FormatU8        Format = 1
	FormatS16LE     Format = 2
	FormatS16BE     Format = 3
	FormatS24LE     Format = 6
	FormatS24BE     Format = 7
	FormatS32LE     Format = 10
	FormatS32BE     Format = 11
	FormatFloatLE   Format = 14
	FormatFloatBE   Format = 15
	FormatFloat64LE Format = 16
	FormatFloat64BE Format = 17
	FormatS243LE    Format = 32
)

var formatNames = map[Format]string{
	FormatS8:        "S8",
	FormatU8:        "U8",
	FormatS16LE:     "S16_LE",
	FormatS16BE:     "S16_BE",
	FormatS24LE:     "S24_LE",
	FormatS24BE:     "S24_BE",
	FormatS32LE:     "S32_LE",
	FormatS32BE:     "S32_BE",
	FormatFloatLE:   "FLOAT_LE",
	FormatFloatBE:   "FLOAT_BE",
	FormatFloat64LE: "FLOAT64_LE",
	FormatFloat64BE: "FLOAT64_BE",
	FormatS243LE:    "S24_3LE",
}

// String returns the ALSA name of the format, e.g. "S16_LE".
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "UNKNOWN"
}

// CommonSampleRates are probed against the device's rate interval.
var CommonSampleRates = []int{
	8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000,
}

// CommonFormats are probed against the device's format mask.
var CommonFormats = []Format{
	FormatU8, FormatS16LE, FormatS24LE, FormatS243LE,
	FormatS32LE, FormatFloatLE, FormatFloat64LE,
}

// Card describes a sound card.
type Card struct {
	Number   int
	ID       string
	Driver   string
	Name     string
	LongName string
}

// RawMidiDevice describes a raw MIDI device on a card.
type RawMidiDevice struct {
	CardNumber   int
	CardName     string
	DeviceNumber int
	Name         string
	Input        bool
	Output       bool
}

// HwID returns the ALSA identifier, e.g. "hw:1,0".
func (d RawMidiDevice) HwID() string {
	return FormatALSADevice(d.CardNumber, d.DeviceNumber)
}
