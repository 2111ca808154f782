package coreaudio

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
)

const builtinID = "BuiltInSpeakerDevice"

// fakeSDK has built-in speakers (stereo out) and a USB interface with two
// inputs and two outputs.
type fakeSDK struct {
	mu       sync.Mutex
	devices  []Device
	sessions []*fakeSession
	err      error
	openErr  error
	unplug   map[string]bool
}

func newFakeSDK() *fakeSDK {
	return &fakeSDK{
		devices: []Device{
			{ID: builtinID, Name: "MacBook Pro Speakers", OutChannels: 2, SampleRates: []uint32{44100, 48000}, NominalRate: 48000, DefaultOutput: true},
			{ID: "AppleUSBAudioEngine:1", Name: "Scarlett 2i2", InChannels: 2, OutChannels: 2, SampleRates: []uint32{44100, 48000, 96000}, NominalRate: 44100},
		},
		unplug: map[string]bool{},
	}
}

func (f *fakeSDK) Version() string { return "fake" }

func (f *fakeSDK) Devices() ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []Device
	for _, d := range f.devices {
		if !f.unplug[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeSDK) Open(cfg SessionConfig, render RenderFunc, lost func(error)) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	for _, id := range []string{cfg.InputID, cfg.OutputID} {
		if id != "" && f.unplug[id] {
			return nil, errors.New("device not present")
		}
	}
	s := &fakeSession{cfg: cfg, render: render, lost: lost, quit: make(chan struct{}), exited: make(chan struct{})}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeSDK) last() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[len(f.sessions)-1]
}

func (f *fakeSDK) session(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

func (f *fakeSDK) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// unplugDevice removes id from the listing and stops its running session
// the way CoreAudio does.
func (f *fakeSDK) unplugDevice(id string, gone bool) {
	f.mu.Lock()
	f.unplug[id] = gone
	sessions := slices.Clone(f.sessions)
	f.mu.Unlock()
	if !gone {
		return
	}
	for _, s := range sessions {
		if s.cfg.OutputID == id || s.cfg.InputID == id {
			s.die()
		}
	}
}

// fakeSession calls render with 64 frame buffers from its own goroutine.
type fakeSession struct {
	cfg    SessionConfig
	render RenderFunc
	lost   func(error)

	mu      sync.Mutex
	started bool
	closed  bool
	last    []float32
	quit    chan struct{}
	exited  chan struct{}
	once    sync.Once
}

func (s *fakeSession) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.loop()
	return nil
}

func (s *fakeSession) loop() {
	defer close(s.exited)
	var in []float32
	if s.cfg.InChannels > 0 {
		in = make([]float32, 64*s.cfg.InChannels)
		for i := range in {
			in[i] = float32(i%s.cfg.InChannels) * 0.25
		}
	}
	out := make([]float32, 64*s.cfg.OutChannels)
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		s.render(in, out, 64)
		s.mu.Lock()
		s.last = slices.Clone(out)
		s.mu.Unlock()
		time.Sleep(200 * time.Microsecond)
	}
}

func (s *fakeSession) halt() {
	s.once.Do(func() { close(s.quit) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.exited
	}
}

func (s *fakeSession) die() {
	s.halt()
	s.lost(errors.New("kAudioHardwareBadDeviceError"))
}

func (s *fakeSession) Stop() error {
	s.halt()
	return nil
}

func (s *fakeSession) Close() error {
	s.halt()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) output() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.last)
}

type recorder struct {
	mu    sync.Mutex
	out   []float32
	input [][]float32
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
}

func (r *recorder) lastInput() [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.input)
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
