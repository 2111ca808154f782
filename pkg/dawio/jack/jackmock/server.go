// Package jackmock is an in-memory Jack server for tests and demos. Cycles
// are driven explicitly with Server.Cycle.
package jackmock

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/smazurov/dawio/pkg/dawio/jack"
)

// Event is a MIDI event seen at a port.
type Event struct {
	Time uint32
	Data []byte
}

type port struct {
	name  string
	typ   string
	flags jack.PortFlags
	owner *Client

	audio []float32
	midi  []Event
}

func (p *port) isOutput() bool { return p.flags&jack.PortIsOutput != 0 }

// Server holds the port graph.
type Server struct {
	mu         sync.Mutex
	cycleMu    sync.Mutex
	sampleRate uint32
	bufferSize uint32
	down       bool
	openErr    error

	ports   map[string]*port
	order   []string
	conns   map[[2]string]bool
	clients []*Client

	capture  map[string][]float32
	playback map[string][]float32
	midiIn   map[string][]Event
	midiOut  map[string][]Event
	cycles   int
}

// NewServer creates a server without ports.
func NewServer(sampleRate, bufferSize uint32) *Server {
	return &Server{
		sampleRate: sampleRate,
		bufferSize: bufferSize,
		ports:      make(map[string]*port),
		conns:      make(map[[2]string]bool),
		capture:    make(map[string][]float32),
		playback:   make(map[string][]float32),
		midiIn:     make(map[string][]Event),
		midiOut:    make(map[string][]Event),
	}
}

// AddSystemPorts registers the usual system:capture_N, system:playback_N,
// system:midi_capture_N and system:midi_playback_N ports.
func (s *Server) AddSystemPorts(capture, playback, midiCapture, midiPlayback int) {
	for i := range capture {
		s.RegisterSystemPort(fmt.Sprintf("capture_%d", i+1), jack.AudioType, true)
	}
	for i := range playback {
		s.RegisterSystemPort(fmt.Sprintf("playback_%d", i+1), jack.AudioType, false)
	}
	for i := range midiCapture {
		s.RegisterSystemPort(fmt.Sprintf("midi_capture_%d", i+1), jack.MidiType, true)
	}
	for i := range midiPlayback {
		s.RegisterSystemPort(fmt.Sprintf("midi_playback_%d", i+1), jack.MidiType, false)
	}
}

// RegisterSystemPort adds a physical port named system:<short>. Capture
// ports are outputs of the server.
func (s *Server) RegisterSystemPort(short, typ string, capture bool) {
	flags := jack.PortIsPhysical | jack.PortIsInput
	if capture {
		flags = jack.PortIsPhysical | jack.PortIsOutput
	}
	s.mu.Lock()
	name := "system:" + short
	s.addPortLocked(&port{name: name, typ: typ, flags: flags, audio: make([]float32, s.bufferSize)})
	cbs := s.registrationCallbacksLocked()
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(name, true)
	}
}

// UnregisterSystemPort removes a system port and its connections, as when a
// device is unplugged.
func (s *Server) UnregisterSystemPort(name string) {
	s.mu.Lock()
	if _, ok := s.ports[name]; !ok {
		s.mu.Unlock()
		return
	}
	s.removePortLocked(name)
	cbs := s.registrationCallbacksLocked()
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(name, false)
	}
}

func (s *Server) addPortLocked(p *port) {
	s.ports[p.name] = p
	s.order = append(s.order, p.name)
}

func (s *Server) removePortLocked(name string) {
	delete(s.ports, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	for c := range s.conns {
		if c[0] == name || c[1] == name {
			delete(s.conns, c)
		}
	}
}

func (s *Server) registrationCallbacksLocked() []func(string, bool) {
	var out []func(string, bool)
	for _, c := range s.clients {
		if c.onRegistration != nil && !c.closed {
			out = append(out, c.onRegistration)
		}
	}
	return out
}

// SetOpenError makes the next Open calls fail with err. Nil clears it.
func (s *Server) SetOpenError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

// SDK returns a jack.SDK whose clients live on s.
func (s *Server) SDK() jack.SDK { return sdk{s} }

type sdk struct{ s *Server }

func (d sdk) Version() string { return "mock" }

func (d sdk) Open(name string) (jack.Client, error) {
	s := d.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	if s.down {
		return nil, errors.New("jack server is not running")
	}
	for _, c := range s.clients {
		if c.name == name && !c.closed {
			return nil, fmt.Errorf("client name %q in use", name)
		}
	}
	c := &Client{server: s, name: name}
	s.clients = append(s.clients, c)
	return c, nil
}

// Cycle runs one process cycle on every active client: system capture data
// and injected MIDI are delivered, client outputs are mixed into the system
// playback ports.
func (s *Server) Cycle() {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.Lock()
	nframes := s.bufferSize
	for name, p := range s.ports {
		if p.owner != nil {
			continue
		}
		if p.isOutput() {
			fill(p, nframes, s.capture[name])
			p.midi = append(p.midi[:0], s.midiIn[name]...)
			delete(s.midiIn, name)
		}
	}
	var active []*Client
	for _, c := range s.clients {
		if c.active && !c.closed && c.process != nil {
			active = append(active, c)
		}
	}
	for _, c := range active {
		for _, p := range s.ports {
			if p.owner != c || p.isOutput() {
				continue
			}
			s.gatherLocked(p, nframes)
		}
	}
	s.mu.Unlock()

	for _, c := range active {
		c.process(nframes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, p := range s.ports {
		if p.owner != nil || p.isOutput() {
			continue
		}
		s.gatherLocked(p, nframes)
		if p.typ == jack.AudioType {
			s.playback[name] = slices.Clone(p.audio[:nframes])
		} else {
			s.midiOut[name] = append(s.midiOut[name], cloneEvents(p.midi)...)
		}
	}
	s.cycles++
}

func fill(p *port, nframes uint32, data []float32) {
	if uint32(len(p.audio)) < nframes {
		p.audio = make([]float32, nframes)
	}
	n := copy(p.audio[:nframes], data)
	clear(p.audio[n:nframes])
}

// gatherLocked sums every source connected to input port dst.
func (s *Server) gatherLocked(dst *port, nframes uint32) {
	fill(dst, nframes, nil)
	dst.midi = dst.midi[:0]
	for c := range s.conns {
		if c[1] != dst.name {
			continue
		}
		src, ok := s.ports[c[0]]
		if !ok {
			continue
		}
		if dst.typ == jack.AudioType {
			for i := range nframes {
				if int(i) < len(src.audio) {
					dst.audio[i] += src.audio[i]
				}
			}
			continue
		}
		dst.midi = append(dst.midi, src.midi...)
	}
	slices.SortStableFunc(dst.midi, func(a, b Event) int { return int(a.Time) - int(b.Time) })
}

func cloneEvents(evs []Event) []Event {
	out := make([]Event, len(evs))
	for i, ev := range evs {
		out[i] = Event{Time: ev.Time, Data: slices.Clone(ev.Data)}
	}
	return out
}

// Cycles returns the number of completed cycles.
func (s *Server) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// SetCaptureData sets the samples system capture port name delivers every
// cycle. Short data is padded with silence.
func (s *Server) SetCaptureData(name string, data []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capture[name] = slices.Clone(data)
}

// PlaybackData returns what system playback port name received in the last
// cycle.
func (s *Server) PlaybackData(name string) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.playback[name])
}

// InjectMidi queues an event on a system MIDI capture port for the next
// cycle.
func (s *Server) InjectMidi(name string, time uint32, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.midiIn[name] = append(s.midiIn[name], Event{Time: time, Data: slices.Clone(data)})
}

// CapturedMidi returns every event received by a system MIDI playback port.
func (s *Server) CapturedMidi(name string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEvents(s.midiOut[name])
}

// Connected reports whether src feeds dst.
func (s *Server) Connected(src, dst string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[[2]string{src, dst}]
}

// Connections lists the ports connected to name, sorted.
func (s *Server) Connections(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for c := range s.conns {
		switch name {
		case c[0]:
			out = append(out, c[1])
		case c[1]:
			out = append(out, c[0])
		}
	}
	slices.Sort(out)
	return out
}

// HasPort reports whether a port with the full name exists.
func (s *Server) HasPort(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ports[name]
	return ok
}

// SetSampleRate changes the server rate and notifies every client.
func (s *Server) SetSampleRate(sr uint32) {
	s.mu.Lock()
	s.sampleRate = sr
	var cbs []func(uint32) int
	for _, c := range s.clients {
		if c.onSampleRate != nil && !c.closed {
			cbs = append(cbs, c.onSampleRate)
		}
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(sr)
	}
}

// Xrun reports an xrun to every client.
func (s *Server) Xrun() {
	s.mu.Lock()
	var cbs []func() int
	for _, c := range s.clients {
		if c.onXrun != nil && !c.closed {
			cbs = append(cbs, c.onXrun)
		}
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// Shutdown stops the server. Clients are told through their shutdown
// callback and stop being processed.
func (s *Server) Shutdown(reason string) {
	s.mu.Lock()
	s.down = true
	var cbs []func(string)
	for _, c := range s.clients {
		c.active = false
		if c.onShutdown != nil && !c.closed {
			cbs = append(cbs, c.onShutdown)
		}
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(reason)
	}
}

// Client is a client of the mock server.
type Client struct {
	server *Server
	name   string
	active bool
	closed bool

	process        func(uint32) int
	onSampleRate   func(uint32) int
	onXrun         func() int
	onShutdown     func(string)
	onRegistration func(string, bool)
}

var _ jack.Client = (*Client)(nil)

func (c *Client) Name() string { return c.name }

func (c *Client) SampleRate() uint32 {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.server.sampleRate
}

func (c *Client) BufferSize() uint32 {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.server.bufferSize
}

func (c *Client) set(fn func()) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if c.active {
		return errors.New("callbacks must be set before activation")
	}
	fn()
	return nil
}

func (c *Client) SetProcessCallback(fn func(uint32) int) error {
	return c.set(func() { c.process = fn })
}

func (c *Client) SetSampleRateCallback(fn func(uint32) int) error {
	return c.set(func() { c.onSampleRate = fn })
}

func (c *Client) SetXRunCallback(fn func() int) error {
	return c.set(func() { c.onXrun = fn })
}

func (c *Client) SetShutdownCallback(fn func(string)) {
	_ = c.set(func() { c.onShutdown = fn })
}

func (c *Client) SetPortRegistrationCallback(fn func(string, bool)) error {
	return c.set(func() { c.onRegistration = fn })
}

func (c *Client) RegisterPort(short, typ string, flags jack.PortFlags) (jack.Port, error) {
	s := c.server
	s.mu.Lock()
	if c.closed || s.down {
		s.mu.Unlock()
		return nil, errors.New("client is closed")
	}
	name := c.name + ":" + short
	if _, dup := s.ports[name]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("port %s already exists", name)
	}
	p := &port{name: name, typ: typ, flags: flags, owner: c, audio: make([]float32, s.bufferSize)}
	s.addPortLocked(p)
	cbs := s.registrationCallbacksLocked()
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(name, true)
	}
	return &clientPort{p: p}, nil
}

func (c *Client) UnregisterPort(jp jack.Port) error {
	s := c.server
	s.mu.Lock()
	cp, ok := jp.(*clientPort)
	if !ok || cp.p.owner != c {
		s.mu.Unlock()
		return errors.New("port does not belong to this client")
	}
	if _, ok := s.ports[cp.p.name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("port %s is not registered", cp.p.name)
	}
	s.removePortLocked(cp.p.name)
	cbs := s.registrationCallbacksLocked()
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(cp.p.name, false)
	}
	return nil
}

func (c *Client) Connect(src, dst string) error {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errors.New("jack server is not running")
	}
	sp, ok := s.ports[src]
	if !ok {
		return fmt.Errorf("no such port %s", src)
	}
	dp, ok := s.ports[dst]
	if !ok {
		return fmt.Errorf("no such port %s", dst)
	}
	if !sp.isOutput() || dp.isOutput() {
		return fmt.Errorf("cannot connect %s to %s: wrong direction", src, dst)
	}
	if sp.typ != dp.typ {
		return fmt.Errorf("cannot connect %s to %s: type mismatch", src, dst)
	}
	key := [2]string{src, dst}
	if s.conns[key] {
		return fmt.Errorf("%s is already connected to %s", src, dst)
	}
	s.conns[key] = true
	return nil
}

func (c *Client) Disconnect(src, dst string) error {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{src, dst}
	if !s.conns[key] {
		return fmt.Errorf("%s is not connected to %s", src, dst)
	}
	delete(s.conns, key)
	return nil
}

func (c *Client) Ports(typ string, flags jack.PortFlags) []string {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, name := range s.order {
		p := s.ports[name]
		if typ != "" && p.typ != typ {
			continue
		}
		if p.flags&flags != flags {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (c *Client) Activate() error {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed || s.down {
		return errors.New("client is closed")
	}
	c.active = true
	return nil
}

// Deactivate waits for a running cycle to finish.
func (c *Client) Deactivate() error {
	c.server.cycleMu.Lock()
	defer c.server.cycleMu.Unlock()
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	c.active = false
	return nil
}

// Close unregisters the client's ports.
func (c *Client) Close() error {
	s := c.server
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return errors.New("client already closed")
	}
	c.active = false
	c.closed = true
	for _, name := range slices.Clone(s.order) {
		if p := s.ports[name]; p.owner == c {
			s.removePortLocked(name)
		}
	}
	return nil
}

type clientPort struct {
	p *port
}

func (cp *clientPort) Name() string { return cp.p.name }

func (cp *clientPort) AudioBuffer(nframes uint32) []float32 {
	if uint32(len(cp.p.audio)) < nframes {
		cp.p.audio = make([]float32, nframes)
	}
	return cp.p.audio[:nframes]
}

func (cp *clientPort) ReadMidi(nframes uint32, sink jack.MidiSink) {
	for _, ev := range cp.p.midi {
		if ev.Time < nframes {
			sink.PushMidi(ev.Time, ev.Data)
		}
	}
}

func (cp *clientPort) ClearMidi(uint32) { cp.p.midi = cp.p.midi[:0] }

func (cp *clientPort) WriteMidi(nframes, time uint32, data []byte) error {
	if time >= nframes {
		return fmt.Errorf("event time %d outside block of %d", time, nframes)
	}
	if n := len(cp.p.midi); n > 0 && cp.p.midi[n-1].Time > time {
		return errors.New("midi events must be written in time order")
	}
	cp.p.midi = append(cp.p.midi, Event{Time: time, Data: slices.Clone(data)})
	return nil
}

