//go:build linux && (amd64 || arm64 || arm)

package alsa

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/smazurov/dawio/pkg/dawio/sampleconv"
	"github.com/smazurov/dawio/pkg/linuxav/alsa"
	"github.com/smazurov/dawio/pkg/linuxav/hotplug"
)

var formats = map[sampleconv.Format]alsa.Format{
	sampleconv.F32LE:  alsa.FormatFloatLE,
	sampleconv.S32LE:  alsa.FormatS32LE,
	sampleconv.S24LE:  alsa.FormatS24LE,
	sampleconv.S24LE3: alsa.FormatS243LE,
	sampleconv.S16LE:  alsa.FormatS16LE,
	sampleconv.F64LE:  alsa.FormatFloat64LE,
	sampleconv.U8:     alsa.FormatU8,
}

type kernelSDK struct{}

// NativeSDK talks to the kernel through /dev/snd.
func NativeSDK() SDK { return kernelSDK{} }

func (kernelSDK) Version() string {
	b, err := os.ReadFile("/proc/asound/version")
	if err != nil {
		return ""
	}
	v := strings.TrimSpace(string(b))
	if i := strings.LastIndexByte(v, ' '); i >= 0 {
		v = v[i+1:]
	}
	return strings.TrimSuffix(v, ".")
}

func (kernelSDK) Devices() ([]PCMInfo, error) {
	if _, err := os.Stat("/dev/snd"); err != nil {
		return nil, err
	}
	devices, err := alsa.ListDevices()
	if err != nil {
		return nil, err
	}
	var out []PCMInfo
	index := make(map[[2]int]int)
	for _, d := range devices {
		key := [2]int{d.CardNumber, d.DeviceNumber}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, PCMInfo{Card: d.CardNumber, Device: d.DeviceNumber, CardName: d.CardName, Name: d.DeviceName})
		}
		if d.MaxChannels == 0 {
			continue
		}
		caps := capsOf(d)
		if d.Type == alsa.StreamCapture {
			out[i].Capture = caps
		} else {
			out[i].Playback = caps
		}
	}
	return out, nil
}

func capsOf(d alsa.Device) *PCMCaps {
	caps := &PCMCaps{
		MinChannels: d.MinChannels,
		MaxChannels: d.MaxChannels,
		MinPeriod:   uint32(d.MinPeriodSize),
		MaxPeriod:   uint32(d.MaxPeriodSize),
	}
	for _, r := range d.SupportedRates {
		caps.Rates = append(caps.Rates, uint32(r))
	}
	for _, f := range sampleconv.Preferred {
		for _, have := range d.SupportedFormats {
			if formats[f] == have {
				caps.Formats = append(caps.Formats, f)
			}
		}
	}
	return caps
}

func (kernelSDK) OpenPCM(card, device int, dir Direction) (PCM, error) {
	stream := alsa.StreamPlayback
	if dir == Capture {
		stream = alsa.StreamCapture
	}
	p, err := alsa.OpenPCM(card, device, stream)
	if err != nil {
		return nil, err
	}
	return kernelPCM{p}, nil
}

type kernelPCM struct {
	*alsa.PCM
}

func (k kernelPCM) Configure(want HwParams) (HwParams, error) {
	got, err := k.PCM.Configure(alsa.HwParams{
		Format:     formats[want.Format],
		Channels:   want.Channels,
		Rate:       int(want.Rate),
		PeriodSize: want.PeriodSize,
		Periods:    want.Periods,
	})
	if err != nil {
		return HwParams{}, err
	}
	return HwParams{
		Format:     want.Format,
		Channels:   got.Channels,
		Rate:       uint32(got.Rate),
		PeriodSize: got.PeriodSize,
		Periods:    got.Periods,
	}, nil
}

func (k kernelPCM) Prepare() error {
	return mapErr(k.PCM.Prepare())
}

func (k kernelPCM) ReadInterleaved(buf []byte, frames int) (int, error) {
	n, err := k.PCM.ReadInterleaved(buf, frames)
	return n, mapErr(err)
}

func (k kernelPCM) WriteInterleaved(buf []byte, frames int) (int, error) {
	n, err := k.PCM.WriteInterleaved(buf, frames)
	return n, mapErr(err)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, alsa.ErrXrun):
		return ErrXrun
	case errors.Is(err, alsa.ErrDisconnected):
		return ErrDisconnected
	default:
		return err
	}
}

func (kernelSDK) MidiPorts() ([]MidiPortInfo, error) {
	devices, err := alsa.ListRawMidi()
	if err != nil {
		return nil, err
	}
	out := make([]MidiPortInfo, len(devices))
	for i, d := range devices {
		out[i] = MidiPortInfo{
			Card:     d.CardNumber,
			Device:   d.DeviceNumber,
			CardName: d.CardName,
			Name:     d.Name,
			Input:    d.Input,
			Output:   d.Output,
		}
	}
	return out, nil
}

func (kernelSDK) OpenMidi(card, device int, input bool) (io.ReadWriteCloser, error) {
	return alsa.OpenRawMidi(card, device, input)
}

func (kernelSDK) WatchCards(ctx context.Context, fn func(card int, added bool)) error {
	m, err := hotplug.NewMonitor()
	if err != nil {
		return err
	}
	defer m.Close()
	m.AddSubsystemFilter(hotplug.SubsystemSound)

	events := make(chan hotplug.Event, 16)
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx, events) }()
	for ev := range events {
		card, ok := ev.SoundCard()
		if !ok {
			continue
		}
		switch ev.Action {
		case hotplug.ActionAdd:
			fn(card, true)
		case hotplug.ActionRemove:
			fn(card, false)
		}
	}
	return <-errc
}
