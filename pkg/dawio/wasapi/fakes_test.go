package wasapi

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/smazurov/dawio/pkg/dawio/sampleconv"
)

const (
	speakersID   = "{0.0.0.00000000}.{speakers}"
	microphoneID = "{0.0.1.00000000}.{microphone}"
)

// fakeSDK has one stereo render endpoint (f32 mix) and one stereo capture
// endpoint (s16 mix), both at 48 kHz. Exclusive mode accepts S16 at 44.1
// and 48 kHz.
type fakeSDK struct {
	mu        sync.Mutex
	initErr   error
	endpoints []Endpoint
	mix       map[string]WaveFormat
	exclusive []WaveFormat
	clients   []*fakeClient
	capture   []float32
	openErr   error
}

func newFakeSDK() *fakeSDK {
	return &fakeSDK{
		endpoints: []Endpoint{
			{ID: speakersID, Name: "Speakers (USB Audio)", Flow: Render, State: StateActive, IsDefault: true},
			{ID: microphoneID, Name: "Microphone (USB Audio)", Flow: Capture, State: StateActive, IsDefault: true},
		},
		mix: map[string]WaveFormat{
			speakersID:   {Format: sampleconv.F32LE, Channels: 2, Rate: 48000},
			microphoneID: {Format: sampleconv.S16LE, Channels: 2, Rate: 48000},
		},
		exclusive: []WaveFormat{
			{Format: sampleconv.S16LE, Channels: 2, Rate: 44100},
			{Format: sampleconv.S16LE, Channels: 2, Rate: 48000},
		},
		capture: []float32{0, 0.25},
	}
}

func (f *fakeSDK) Init() error { return f.initErr }

func (f *fakeSDK) Version() string { return "fake" }

func (f *fakeSDK) Endpoints(flow DataFlow) ([]Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Endpoint
	for _, ep := range f.endpoints {
		if ep.Flow == flow {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (f *fakeSDK) MixFormat(id string, flow DataFlow) (WaveFormat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf, ok := f.mix[id]
	if !ok {
		return WaveFormat{}, errors.New("no such endpoint")
	}
	return wf, nil
}

func (f *fakeSDK) IsFormatSupported(id string, flow DataFlow, mode ShareMode, wf WaveFormat) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mode == Shared {
		return f.mix[id] == wf
	}
	return slices.Contains(f.exclusive, wf)
}

func (f *fakeSDK) Open(cfg ClientConfig) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	c := &fakeClient{sdk: f, cfg: cfg}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeSDK) setState(id string, st DeviceState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.endpoints {
		if f.endpoints[i].ID == id {
			f.endpoints[i].State = st
		}
	}
}

func (f *fakeSDK) active(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ep := range f.endpoints {
		if ep.ID == id {
			return ep.State == StateActive
		}
	}
	return false
}

func (f *fakeSDK) last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}

func (f *fakeSDK) clientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// fakeClient hands out 96 frame periods every 200µs.
type fakeClient struct {
	sdk *fakeSDK
	cfg ClientConfig

	mu       sync.Mutex
	started  bool
	closed   bool
	failNext error
	out      []byte
	played   []byte
}

const fakePeriod = 96

func (c *fakeClient) BufferFrames() uint32 { return fakePeriod }

func (c *fakeClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *fakeClient) Wait(timeout time.Duration) (Exchange, error) {
	time.Sleep(200 * time.Microsecond)
	for _, id := range []string{c.cfg.CaptureID, c.cfg.RenderID} {
		if id != "" && !c.sdk.active(id) {
			return Exchange{}, ErrDeviceInvalidated
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failNext; err != nil {
		c.failNext = nil
		return Exchange{}, err
	}
	ex := Exchange{Frames: fakePeriod}
	if c.cfg.CaptureID != "" {
		c.sdk.mu.Lock()
		values := slices.Clone(c.sdk.capture)
		c.sdk.mu.Unlock()
		ch := c.cfg.Capture.Channels
		samples := make([]float32, fakePeriod*ch)
		for i := range samples {
			samples[i] = values[i%ch]
		}
		ex.In = make([]byte, len(samples)*c.cfg.Capture.Format.Bytes())
		sampleconv.FromFloat32(c.cfg.Capture.Format, samples, ex.In)
	}
	if c.cfg.RenderID != "" {
		c.out = make([]byte, fakePeriod*c.cfg.Render.Channels*c.cfg.Render.Format.Bytes())
		ex.Out = c.out
	}
	return ex, nil
}

func (c *fakeClient) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out != nil {
		c.played = c.out
	}
	return nil
}

func (c *fakeClient) Stop() error { return nil }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) fail(err error) {
	c.mu.Lock()
	c.failNext = err
	c.mu.Unlock()
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// playedSamples decodes the last rendered period.
func (c *fakeClient) playedSamples() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.cfg.Render.Format
	out := make([]float32, len(c.played)/f.Bytes())
	sampleconv.ToFloat32(f, c.played, out)
	return out
}

// recorder writes out[i] to output i and keeps the last input block.
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
