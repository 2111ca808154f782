//go:build darwin && cgo

package coreaudio

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/smazurov/dawio/pkg/dawio/internal/miniaudio"
	"github.com/smazurov/dawio/pkg/dawio/sampleconv"
)

var errStopped = errors.New("coreaudio device stopped")

type nativeSDK struct {
	logger *slog.Logger
}

// NativeSDK returns the CoreAudio binding over miniaudio.
func NativeSDK() SDK {
	return &nativeSDK{logger: slog.Default().With("module", "coreaudio")}
}

func (n *nativeSDK) Version() string { return "CoreAudio (miniaudio)" }

func (n *nativeSDK) context() (*miniaudio.Context, error) {
	return miniaudio.Shared(malgo.BackendCoreaudio, n.logger)
}

// Devices merges the playback and capture listings, which share device IDs.
func (n *nativeSDK) Devices() ([]Device, error) {
	ctx, err := n.context()
	if err != nil {
		return nil, err
	}
	outs, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, err
	}
	ins, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, err
	}
	var devs []Device
	index := map[string]int{}
	add := func(d miniaudio.Device, input bool) {
		i, ok := index[d.Identifier()]
		if !ok {
			i = len(devs)
			index[d.Identifier()] = i
			devs = append(devs, Device{ID: d.Identifier(), Name: d.Name, SampleRates: d.Rates, NominalRate: d.MixRate})
		}
		dev := &devs[i]
		if input {
			dev.InChannels, dev.DefaultInput = d.Channels, d.IsDefault
		} else {
			dev.OutChannels, dev.DefaultOutput = d.Channels, d.IsDefault
		}
		if dev.NominalRate == 0 {
			dev.NominalRate = d.MixRate
		}
	}
	for _, d := range outs {
		add(d, false)
	}
	for _, d := range ins {
		add(d, true)
	}
	return devs, nil
}

func (n *nativeSDK) Open(cfg SessionConfig, render RenderFunc, lost func(error)) (Session, error) {
	ctx, err := n.context()
	if err != nil {
		return nil, err
	}
	dc := miniaudio.DuplexConfig{
		SampleRate:     cfg.SampleRate,
		PeriodFrames:   cfg.Frames,
		CaptureFormat:  sampleconv.F32LE,
		PlaybackFormat: sampleconv.F32LE,
	}
	if cfg.InputID != "" {
		id, err := miniaudio.ParseIdentifier(cfg.InputID)
		if err != nil {
			return nil, err
		}
		dc.Capture, dc.CaptureChannels = &id, cfg.InChannels
	}
	if cfg.OutputID != "" {
		id, err := miniaudio.ParseIdentifier(cfg.OutputID)
		if err != nil {
			return nil, err
		}
		dc.Playback, dc.PlaybackChannels = &id, cfg.OutChannels
	}

	s := &nativeSession{}
	data := func(out, in []byte, frames uint32) {
		render(float32s(in), float32s(out), int(frames))
	}
	stopped := func() {
		if !s.stopping.Load() {
			lost(errStopped)
		}
	}
	dev, err := ctx.Open(dc, data, stopped)
	if err != nil {
		return nil, err
	}
	s.dev = dev
	return s, nil
}

// float32s reinterprets an f32 device buffer without copying.
func float32s(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

type nativeSession struct {
	dev      *malgo.Device
	stopping atomic.Bool
}

func (s *nativeSession) Start() error { return s.dev.Start() }

func (s *nativeSession) Stop() error {
	s.stopping.Store(true)
	return s.dev.Stop()
}

func (s *nativeSession) Close() error {
	s.stopping.Store(true)
	s.dev.Uninit()
	return nil
}
