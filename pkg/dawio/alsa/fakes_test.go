package alsa

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/smazurov/dawio/pkg/dawio/sampleconv"
)

var errNoSuchDevice = errors.New("no such device")

// fakeSDK simulates one USB card (hw:1,0) with stereo capture and playback.
type fakeSDK struct {
	mu         sync.Mutex
	pcms       []PCMInfo
	accept     []sampleconv.Format
	forceRate  uint32
	devicesErr error
	unplugged  bool
	opened     []*fakePCM
	watcher    func(card int, added bool)

	// capture holds the constant each capture channel produces.
	capture []float32

	midi      []MidiPortInfo
	midiConns map[int]*fakeMidiConn
}

func usbCaps(rates ...uint32) *PCMCaps {
	return &PCMCaps{
		Rates:       rates,
		MinChannels: 2,
		MaxChannels: 2,
		Formats:     []sampleconv.Format{sampleconv.S16LE},
		MinPeriod:   32,
		MaxPeriod:   4096,
	}
}

func newFakeSDK() *fakeSDK {
	return &fakeSDK{
		pcms: []PCMInfo{{
			Card:     1,
			Device:   0,
			CardName: "USB Audio",
			Name:     "USB Audio",
			Capture:  usbCaps(44100, 48000),
			Playback: usbCaps(44100, 48000),
		}},
		accept:    []sampleconv.Format{sampleconv.S16LE},
		capture:   []float32{0, 0.25},
		midiConns: make(map[int]*fakeMidiConn),
	}
}

func (f *fakeSDK) Version() string { return "k6.8.0" }

func (f *fakeSDK) Devices() ([]PCMInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.devicesErr != nil {
		return nil, f.devicesErr
	}
	if f.unplugged {
		return nil, nil
	}
	return slices.Clone(f.pcms), nil
}

func (f *fakeSDK) OpenPCM(card, device int, dir Direction) (PCM, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unplugged {
		return nil, errNoSuchDevice
	}
	p := &fakePCM{sdk: f, dir: dir}
	f.opened = append(f.opened, p)
	return p, nil
}

func (f *fakeSDK) setUnplugged(v bool) {
	f.mu.Lock()
	f.unplugged = v
	f.mu.Unlock()
}

func (f *fakeSDK) isUnplugged() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unplugged
}

// last returns the most recently opened PCM of dir.
func (f *fakeSDK) last(dir Direction) *fakePCM {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.opened) - 1; i >= 0; i-- {
		if f.opened[i].dir == dir {
			return f.opened[i]
		}
	}
	return nil
}

func (f *fakeSDK) WatchCards(ctx context.Context, fn func(card int, added bool)) error {
	f.mu.Lock()
	f.watcher = fn
	f.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSDK) plug(card int) bool {
	f.mu.Lock()
	fn := f.watcher
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(card, true)
	return true
}

type fakePCM struct {
	sdk *fakeSDK
	dir Direction

	mu       sync.Mutex
	params   HwParams
	prepared int
	failNext error
	last     []byte
	closed   bool
}

func (p *fakePCM) Configure(want HwParams) (HwParams, error) {
	p.sdk.mu.Lock()
	accept, forced := p.sdk.accept, p.sdk.forceRate
	p.sdk.mu.Unlock()
	if !slices.Contains(accept, want.Format) {
		return HwParams{}, errors.New("format not supported")
	}
	got := want
	got.PeriodSize = min(max(want.PeriodSize, 32), 4096)
	if forced != 0 {
		got.Rate = forced
	}
	p.mu.Lock()
	p.params = got
	p.mu.Unlock()
	return got, nil
}

func (p *fakePCM) Prepare() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prepared++
	return nil
}

func (p *fakePCM) Drop() error { return nil }

func (p *fakePCM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePCM) fail(err error) {
	p.mu.Lock()
	p.failNext = err
	p.mu.Unlock()
}

func (p *fakePCM) prepareCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prepared
}

func (p *fakePCM) format() sampleconv.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params.Format
}

func (p *fakePCM) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// transfer paces the loop and reports injected failures.
func (p *fakePCM) transfer() error {
	time.Sleep(200 * time.Microsecond)
	if p.sdk.isUnplugged() {
		return ErrDisconnected
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.failNext
	p.failNext = nil
	return err
}

func (p *fakePCM) ReadInterleaved(buf []byte, frames int) (int, error) {
	if err := p.transfer(); err != nil {
		return 0, err
	}
	p.sdk.mu.Lock()
	values := slices.Clone(p.sdk.capture)
	p.sdk.mu.Unlock()
	p.mu.Lock()
	h := p.params
	p.mu.Unlock()
	samples := make([]float32, frames*h.Channels)
	for i := range samples {
		samples[i] = values[i%h.Channels]
	}
	sampleconv.FromFloat32(h.Format, samples, buf)
	return frames, nil
}

func (p *fakePCM) WriteInterleaved(buf []byte, frames int) (int, error) {
	if err := p.transfer(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = slices.Clone(buf[:frames*p.params.FrameBytes()])
	return frames, nil
}

// played decodes the last block written to playback.
func (p *fakePCM) played() []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]float32, len(p.last)/p.params.Format.Bytes())
	sampleconv.ToFloat32(p.params.Format, p.last, out)
	return out
}

func (f *fakeSDK) MidiPorts() ([]MidiPortInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.midi), nil
}

func (f *fakeSDK) OpenMidi(card, device int, input bool) (io.ReadWriteCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, w := io.Pipe()
	c := &fakeMidiConn{r: r, w: w}
	f.midiConns[card*100+device] = c
	return c, nil
}

func (f *fakeSDK) conn(card, device int) *fakeMidiConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.midiConns[card*100+device]
}

// fakeMidiConn is a raw MIDI device: the test writes incoming bytes to w
// and the driver reads them from r. Writes by the driver are recorded.
type fakeMidiConn struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu   sync.Mutex
	sent [][]byte
}

func (c *fakeMidiConn) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *fakeMidiConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, slices.Clone(p))
	return len(p), nil
}

func (c *fakeMidiConn) Close() error {
	return c.r.Close()
}

// recorder writes out[i] to output i and keeps the last input block.
type recorder struct {
	mu     sync.Mutex
	out    []float32
	input  [][]float32
	frames []int
}

func (r *recorder) Init(*dawio.StreamInfo)          {}
func (r *recorder) StreamChanged(*dawio.StreamInfo) {}

func (r *recorder) Process(p dawio.ProcessInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, buf := range p.AudioOutputs {
		if i < len(r.out) {
			for f := range buf {
				buf[f] = r.out[i]
			}
		}
	}
	r.input = r.input[:0]
	for _, buf := range p.AudioInputs {
		r.input = append(r.input, slices.Clone(buf))
	}
	if len(r.frames) < 64 {
		r.frames = append(r.frames, p.Frames)
	}
}

func (r *recorder) lastInput() [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.input)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
