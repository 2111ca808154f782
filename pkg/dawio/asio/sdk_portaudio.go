//go:build asio

package asio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// NativeSDK returns the SDK backed by PortAudio's ASIO host API.
func NativeSDK() SDK { return &nativeSDK{} }

type nativeSDK struct {
	mu      sync.Mutex
	devices []*portaudio.DeviceInfo
}

func (n *nativeSDK) Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	if _, err := portaudio.HostApi(portaudio.ASIO); err != nil {
		return fmt.Errorf("%w: %v", ErrNoHostAPI, err)
	}
	return nil
}

func (n *nativeSDK) Version() string { return portaudio.VersionText() }

// framesFor converts a PortAudio latency into frames. The ASIO host API
// derives its low and high latencies from the driver's preferred and
// maximum buffer sizes.
func framesFor(lat time.Duration, rate float64) uint32 {
	return uint32(math.Round(lat.Seconds() * rate))
}

func (n *nativeSDK) Devices() ([]Device, error) {
	api, err := portaudio.HostApi(portaudio.ASIO)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoHostAPI, err)
	}
	n.mu.Lock()
	n.devices = api.Devices
	n.mu.Unlock()

	out := make([]Device, 0, len(api.Devices))
	for i, d := range api.Devices {
		low, high := d.DefaultLowOutputLatency, d.DefaultHighOutputLatency
		if d.MaxOutputChannels == 0 {
			low, high = d.DefaultLowInputLatency, d.DefaultHighInputLatency
		}
		preferred := framesFor(low, d.DefaultSampleRate)
		out = append(out, Device{
			Index:           i,
			Name:            d.Name,
			InChannels:      d.MaxInputChannels,
			OutChannels:     d.MaxOutputChannels,
			DefaultRate:     uint32(d.DefaultSampleRate),
			IsDefault:       d == api.DefaultOutputDevice,
			MinFrames:       preferred,
			MaxFrames:       max(framesFor(high, d.DefaultSampleRate), preferred),
			PreferredFrames: preferred,
		})
	}
	return out, nil
}

func (n *nativeSDK) device(index int) (*portaudio.DeviceInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= len(n.devices) {
		return nil, fmt.Errorf("asio device %d not enumerated", index)
	}
	return n.devices[index], nil
}

func (n *nativeSDK) params(index, in, out int, rate uint32, frames uint32) (portaudio.StreamParameters, error) {
	dev, err := n.device(index)
	if err != nil {
		return portaudio.StreamParameters{}, err
	}
	p := portaudio.StreamParameters{
		SampleRate:      float64(rate),
		FramesPerBuffer: int(frames),
	}
	if in > 0 {
		p.Input = portaudio.StreamDeviceParameters{Device: dev, Channels: in, Latency: dev.DefaultLowInputLatency}
	}
	if out > 0 {
		p.Output = portaudio.StreamDeviceParameters{Device: dev, Channels: out, Latency: dev.DefaultLowOutputLatency}
	}
	return p, nil
}

func (n *nativeSDK) Supports(index, in, out int, rate uint32) bool {
	p, err := n.params(index, in, out, rate, 0)
	if err != nil {
		return false
	}
	return portaudio.IsFormatSupported(p, func(in, out []float32) {}) == nil
}

func (n *nativeSDK) Open(cfg StreamConfig, process ProcessFunc) (Stream, error) {
	p, err := n.params(cfg.Device, cfg.InChannels, cfg.OutChannels, cfg.SampleRate, cfg.Frames)
	if err != nil {
		return nil, err
	}
	st, err := portaudio.OpenStream(p, func(in, out []float32) { process(in, out) })
	if err != nil {
		return nil, err
	}
	return st, nil
}
