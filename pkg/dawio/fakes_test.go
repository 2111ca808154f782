package dawio

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"
)

var errUnplugged = errors.New("device unplugged")

func fakeCard() AudioDeviceInfo {
	return AudioDeviceInfo{
		ID:                  DeviceID{Name: "Card", Identifier: "hw:0"},
		InPorts:             []string{"in_a", "in_b"},
		OutPorts:            []string{"out_a", "out_b", "out_c"},
		SampleRates:         []uint32{44100, 48000},
		DefaultSampleRate:   48000,
		FixedBufferSize:     &FixedBufferSizeRange{Min: 64, Max: 1024, Default: 128},
		DefaultInputLayout:  MonoLayout(0),
		DefaultOutputLayout: StereoLayout(0, 1),
	}
}

type fakeAudioDriver struct {
	backend  Backend
	status   BackendStatus
	devices  []AudioDeviceInfo
	panics   bool
	native   bool
	startErr error

	mu      sync.Mutex
	streams []*fakeStream
	reqs    []StartRequest
}

func newFakeAudio(b Backend) *fakeAudioDriver {
	return &fakeAudioDriver{backend: b, status: StatusRunning, devices: []AudioDeviceInfo{fakeCard()}}
}

func (d *fakeAudioDriver) Backend() Backend { return d.backend }

func (d *fakeAudioDriver) NativeMidi() bool { return d.native }

func (d *fakeAudioDriver) Enumerate(context.Context) AudioBackendInfo {
	if d.panics {
		panic("driver exploded")
	}
	return AudioBackendInfo{Status: d.status, Devices: slices.Clone(d.devices), Version: "1.0"}
}

func (d *fakeAudioDriver) Start(_ context.Context, req StartRequest) (PlatformStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
	if d.startErr != nil {
		return nil, d.startErr
	}
	e, err := req.NewEngine(Layout{Info: req.Plan.StreamInfo(), MaxFrames: int(req.Plan.MaxBlockSize)})
	if err != nil {
		return nil, err
	}
	s := &fakeStream{engine: e, fatal: req.Fatal, caps: Capabilities{AudioPorts: true}}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeAudioDriver) lastStream() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

type fakeStream struct {
	engine *Engine
	fatal  func(StreamError)
	caps   Capabilities

	mu      sync.Mutex
	changes int
	stopped bool
}

func (s *fakeStream) Engine() *Engine { return s.engine }

func (s *fakeStream) Capabilities() Capabilities { return s.caps }

func (s *fakeStream) ChangeAudioPorts(in, out *[]int) error {
	s.mu.Lock()
	s.changes++
	s.mu.Unlock()
	l := s.engine.Layout()
	rebind := func(ports []AudioPortStreamInfo, want *[]int, prefix string) []AudioPortStreamInfo {
		if want == nil {
			return ports
		}
		planned := make([]PlannedPort, len(*want))
		for i, idx := range *want {
			planned[i] = PlannedPort{DeviceIndex: idx, SystemName: "port", Found: true}
		}
		return PortInfos(prefix, planned)
	}
	l.Info.InPorts = rebind(l.Info.InPorts, in, "in")
	l.Info.OutPorts = rebind(l.Info.OutPorts, out, "out")
	_, err := s.engine.Reconfigure(l)
	return err
}

func (s *fakeStream) ChangeJackPorts(in, out *[]string) error {
	return NewChangeAudioPortsError(NotSupportedByBackend, "", nil)
}

func (s *fakeStream) ChangeBlockSize(n uint32) error {
	return NewChangeBlockSizeError(NotSupportedByBackend, "", nil)
}

func (s *fakeStream) ChangeMidiPorts(in, out *[]MidiPortConfig) error {
	return NewChangeMidiPortsError(NotSupportedByBackend, "", nil)
}

func (s *fakeStream) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeStream) changeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changes
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// cycle plays the audio thread for one block.
func (s *fakeStream) cycle(n int) {
	s.engine.BeginCycle(n)
	s.engine.Process()
}

type fakeMidiDriver struct {
	backend Backend

	mu      sync.Mutex
	running bool
	ins     []MidiDeviceInfo
	outs    []MidiDeviceInfo
	recv    map[string]func(time.Time, []byte)
	fail    map[string]func(error)
	closed  map[string]int
	senders map[string]*fakeSender
}

func newFakeMidi(b Backend) *fakeMidiDriver {
	return &fakeMidiDriver{
		backend: b,
		running: true,
		ins:     []MidiDeviceInfo{{ID: DeviceID{Name: "keys"}}},
		outs:    []MidiDeviceInfo{{ID: DeviceID{Name: "synth"}}},
		recv:    make(map[string]func(time.Time, []byte)),
		fail:    make(map[string]func(error)),
		closed:  make(map[string]int),
		senders: make(map[string]*fakeSender),
	}
}

func (d *fakeMidiDriver) Backend() Backend { return d.backend }

func (d *fakeMidiDriver) Enumerate(context.Context) MidiBackendInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return MidiBackendInfo{Status: StatusNotRunning}
	}
	return MidiBackendInfo{Status: StatusRunning, InDevices: slices.Clone(d.ins), OutDevices: slices.Clone(d.outs), DefaultIn: intPtr(0)}
}

func (d *fakeMidiDriver) OpenInput(_ context.Context, id DeviceID, _ int, recv func(time.Time, []byte), fail func(error)) (io.Closer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := findMidiDevice(d.ins, id); !ok {
		return nil, errUnplugged
	}
	d.recv[id.Name] = recv
	d.fail[id.Name] = fail
	return closerFunc(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.closed[id.Name]++
		delete(d.recv, id.Name)
		return nil
	}), nil
}

func (d *fakeMidiDriver) OpenOutput(_ context.Context, id DeviceID, _ int) (MidiSender, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := findMidiDevice(d.outs, id); !ok {
		return nil, errUnplugged
	}
	s := &fakeSender{}
	d.senders[id.Name] = s
	return s, nil
}

// send delivers data as if it arrived from device name.
func (d *fakeMidiDriver) send(name string, data []byte) bool {
	d.mu.Lock()
	recv := d.recv[name]
	d.mu.Unlock()
	if recv == nil {
		return false
	}
	recv(time.Now(), data)
	return true
}

// unplug removes an input device and reports the failure to the opener.
func (d *fakeMidiDriver) unplug(name string) {
	d.mu.Lock()
	d.ins = slices.DeleteFunc(d.ins, func(m MidiDeviceInfo) bool { return m.ID.Name == name })
	fail := d.fail[name]
	d.mu.Unlock()
	if fail != nil {
		fail(errUnplugged)
	}
}

func (d *fakeMidiDriver) plug(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ins = append(d.ins, MidiDeviceInfo{ID: DeviceID{Name: name}})
}

func (d *fakeMidiDriver) closeCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed[name]
}

func (d *fakeMidiDriver) sender(name string) *fakeSender {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.senders[name]
}

type fakeSender struct {
	mu     sync.Mutex
	sent   [][]byte
	broken bool
	closed bool
}

func (s *fakeSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return errUnplugged
	}
	s.sent = append(s.sent, slices.Clone(data))
	return nil
}

func (s *fakeSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSender) messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

func (s *fakeSender) breakDevice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = true
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// drainMsgs pops everything currently queued.
func drainMsgs(c *MsgConsumer) []StreamMsg {
	var out []StreamMsg
	c.PopEach(func(m StreamMsg) bool {
		out = append(out, m)
		return true
	}, 0)
	return out
}

func msgKinds(msgs []StreamMsg) []StreamMsgKind {
	out := make([]StreamMsgKind, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind
	}
	return out
}

// eventually polls cond for up to a second.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
