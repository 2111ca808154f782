package asio

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
)

// fakeSDK has two ASIO drivers: an 8x8 interface preferring 256 frames
// and a stereo output-only driver.
type fakeSDK struct {
	mu      sync.Mutex
	initErr error
	devices []Device
	rates   []uint32
	streams []*fakeStream
	inits   int
}

func newFakeSDK() *fakeSDK {
	return &fakeSDK{
		devices: []Device{
			{Index: 0, Name: "Focusrite USB ASIO", InChannels: 8, OutChannels: 8, DefaultRate: 48000, IsDefault: true, MinFrames: 32, MaxFrames: 1024, PreferredFrames: 256},
			{Index: 1, Name: "ASIO4ALL v2", OutChannels: 2, DefaultRate: 44100, MinFrames: 64, MaxFrames: 2048, PreferredFrames: 512},
		},
		rates: []uint32{44100, 48000, 96000},
	}
}

func (f *fakeSDK) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeSDK) Version() string { return "PortAudio V19.7.0-devel" }

func (f *fakeSDK) Devices() ([]Device, error) {
	return slices.Clone(f.devices), nil
}

func (f *fakeSDK) Supports(device, in, out int, rate uint32) bool {
	return slices.Contains(f.rates, rate)
}

func (f *fakeSDK) Open(cfg StreamConfig, process ProcessFunc) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeStream{cfg: cfg, process: process, quit: make(chan struct{}), exited: make(chan struct{})}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeSDK) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

// fakeStream calls process with buffers of exactly cfg.Frames.
type fakeStream struct {
	cfg     StreamConfig
	process ProcessFunc

	mu      sync.Mutex
	started bool
	closed  bool
	last    []float32
	quit    chan struct{}
	exited  chan struct{}
	once    sync.Once
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.loop()
	return nil
}

func (s *fakeStream) loop() {
	defer close(s.exited)
	frames := int(s.cfg.Frames)
	in := make([]float32, frames*s.cfg.InChannels)
	for i := range in {
		in[i] = float32(i%max(s.cfg.InChannels, 1)) / 8
	}
	out := make([]float32, frames*s.cfg.OutChannels)
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		s.process(in, out)
		s.mu.Lock()
		s.last = slices.Clone(out)
		s.mu.Unlock()
		time.Sleep(200 * time.Microsecond)
	}
}

func (s *fakeStream) Stop() error {
	s.once.Do(func() { close(s.quit) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.exited
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("already closed")
	}
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeStream) output() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.last)
}

type recorder struct {
	mu     sync.Mutex
	out    []float32
	input  [][]float32
	frames int
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
	r.frames = p.Frames
}

func (r *recorder) lastInput() [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.input)
}

func (r *recorder) lastFrames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
