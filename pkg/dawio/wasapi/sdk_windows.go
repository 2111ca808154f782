//go:build windows && cgo

package wasapi

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/smazurov/dawio/pkg/dawio/internal/miniaudio"
)

type nativeSDK struct {
	logger *slog.Logger
	ctx    *miniaudio.Context
}

// NativeSDK returns the WASAPI binding over miniaudio.
func NativeSDK() SDK {
	return &nativeSDK{logger: slog.Default().With("module", "wasapi")}
}

func (n *nativeSDK) Init() error {
	ctx, err := miniaudio.Shared(malgo.BackendWasapi, n.logger)
	if err != nil {
		return err
	}
	n.ctx = ctx
	return nil
}

func (n *nativeSDK) Version() string { return "WASAPI (miniaudio)" }

func kind(flow DataFlow) malgo.DeviceType {
	if flow == Capture {
		return malgo.Capture
	}
	return malgo.Playback
}

// Endpoints lists active endpoints only; miniaudio does not report the
// others.
func (n *nativeSDK) Endpoints(flow DataFlow) ([]Endpoint, error) {
	devs, err := n.ctx.Devices(kind(flow))
	if err != nil {
		return nil, err
	}
	out := make([]Endpoint, len(devs))
	for i, d := range devs {
		out[i] = Endpoint{ID: d.Identifier(), Name: d.Name, Flow: flow, State: StateActive, IsDefault: d.IsDefault}
	}
	return out, nil
}

func (n *nativeSDK) find(id string, flow DataFlow) (miniaudio.Device, error) {
	devs, err := n.ctx.Devices(kind(flow))
	if err != nil {
		return miniaudio.Device{}, err
	}
	for _, d := range devs {
		if d.Identifier() == id {
			return d, nil
		}
	}
	return miniaudio.Device{}, fmt.Errorf("%s endpoint %s not present", flow, id)
}

func (n *nativeSDK) MixFormat(id string, flow DataFlow) (WaveFormat, error) {
	d, err := n.find(id, flow)
	if err != nil {
		return WaveFormat{}, err
	}
	return WaveFormat{Format: d.Mix, Channels: d.Channels, Rate: d.MixRate}, nil
}

func (n *nativeSDK) IsFormatSupported(id string, flow DataFlow, mode ShareMode, f WaveFormat) bool {
	devID, err := miniaudio.ParseIdentifier(id)
	if err != nil {
		return false
	}
	share := malgo.Shared
	if mode == Exclusive {
		share = malgo.Exclusive
	}
	return n.ctx.Probe(kind(flow), devID, share, f.Format, f.Channels, f.Rate)
}

func (n *nativeSDK) Open(cfg ClientConfig) (Client, error) {
	dc := miniaudio.DuplexConfig{
		PeriodFrames: cfg.PeriodFrames,
		Exclusive:    cfg.Mode == Exclusive,
	}
	if cfg.CaptureID != "" {
		id, err := miniaudio.ParseIdentifier(cfg.CaptureID)
		if err != nil {
			return nil, err
		}
		dc.Capture, dc.CaptureChannels, dc.CaptureFormat = &id, cfg.Capture.Channels, cfg.Capture.Format
		dc.SampleRate = cfg.Capture.Rate
	}
	if cfg.RenderID != "" {
		id, err := miniaudio.ParseIdentifier(cfg.RenderID)
		if err != nil {
			return nil, err
		}
		dc.Playback, dc.PlaybackChannels, dc.PlaybackFormat = &id, cfg.Render.Channels, cfg.Render.Format
		dc.SampleRate = cfg.Render.Rate
	}

	c := &nativeClient{
		frames:   max(cfg.PeriodFrames*4, 4096),
		ready:    make(chan Exchange),
		released: make(chan struct{}),
		lost:     make(chan struct{}),
		closed:   make(chan struct{}),
		timer:    time.NewTimer(time.Hour),
	}
	c.timer.Stop()
	dev, err := n.ctx.Open(dc, c.onData, c.onStop)
	if err != nil {
		return nil, err
	}
	c.dev = dev
	return c, nil
}

// nativeClient hands each miniaudio callback to the stream loop and blocks
// the callback until the loop releases the buffers.
type nativeClient struct {
	dev    *malgo.Device
	frames uint32

	ready    chan Exchange
	released chan struct{}
	lost     chan struct{}
	lostOnce sync.Once
	closed   chan struct{}
	stopOnce sync.Once
	stopping atomic.Bool
	timer    *time.Timer
}

func (c *nativeClient) onData(out, in []byte, frames uint32) {
	ex := Exchange{In: in, Out: out, Frames: int(frames)}
	if len(in) == 0 {
		ex.In = nil
	}
	if len(out) == 0 {
		ex.Out = nil
	}
	select {
	case c.ready <- ex:
	case <-c.closed:
		clear(out)
		return
	}
	select {
	case <-c.released:
	case <-c.closed:
	}
}

func (c *nativeClient) onStop() {
	if c.stopping.Load() {
		return
	}
	c.lostOnce.Do(func() { close(c.lost) })
}

func (c *nativeClient) BufferFrames() uint32 { return c.frames }

func (c *nativeClient) Start() error { return c.dev.Start() }

func (c *nativeClient) Wait(timeout time.Duration) (Exchange, error) {
	c.timer.Reset(timeout)
	defer c.timer.Stop()
	select {
	case ex := <-c.ready:
		return ex, nil
	case <-c.lost:
		return Exchange{}, ErrDeviceInvalidated
	case <-c.timer.C:
		return Exchange{}, ErrTimeout
	}
}

func (c *nativeClient) Release() error {
	select {
	case c.released <- struct{}{}:
		return nil
	case <-c.lost:
		return ErrDeviceInvalidated
	}
}

func (c *nativeClient) Stop() error {
	c.stopping.Store(true)
	c.stopOnce.Do(func() { close(c.closed) })
	return c.dev.Stop()
}

func (c *nativeClient) Close() error {
	_ = c.Stop()
	c.dev.Uninit()
	return nil
}
