package jack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
)

type portKind int

const (
	kindAudioIn portKind = iota
	kindAudioOut
	kindMidiIn
	kindMidiOut
	numKinds
)

func (k portKind) input() bool { return k == kindAudioIn || k == kindMidiIn }
func (k portKind) midi() bool  { return k == kindMidiIn || k == kindMidiOut }

func (k portKind) portName(i int) string {
	prefix := [...]string{"in", "out", "midi_in", "midi_out"}[k]
	return fmt.Sprintf("%s_%d", prefix, i+1)
}

func (k portKind) portType() string {
	if k.midi() {
		return MidiType
	}
	return AudioType
}

func (k portKind) flags() PortFlags {
	if k.input() {
		return PortIsInput
	}
	return PortIsOutput
}

// systemPorts lists the ports a client port of kind k can connect to.
func (k portKind) systemPorts(c Client) []string {
	if k.input() {
		return c.Ports(k.portType(), PortIsOutput)
	}
	return c.Ports(k.portType(), PortIsInput)
}

// physicalPorts is the device port list indices refer to.
func (k portKind) physicalPorts(c Client) []string {
	switch k {
	case kindAudioIn:
		return systemCapture(c)
	case kindAudioOut:
		return systemPlayback(c)
	case kindMidiIn:
		return systemMidiCapture(c)
	default:
		return systemMidiPlayback(c)
	}
}

func (k portKind) notFound(name string) dawio.StreamMsg {
	switch k {
	case kindAudioIn:
		return dawio.AudioInPortNotFound(name)
	case kindAudioOut:
		return dawio.AudioOutPortNotFound(name)
	case kindMidiIn:
		return dawio.MidiInDeviceNotFound(name)
	default:
		return dawio.MidiOutDeviceNotFound(name)
	}
}

func (k portKind) disconnected(name string) dawio.StreamMsg {
	if k.midi() {
		return dawio.MidiDeviceDisconnected(dawio.DeviceID{Name: name})
	}
	return dawio.AudioDeviceDisconnected(dawio.DeviceID{Name: name})
}

func (k portKind) reconnected(name string) dawio.StreamMsg {
	if k.midi() {
		return dawio.MidiDeviceReconnected(dawio.DeviceID{Name: name})
	}
	return dawio.AudioDeviceReconnected(dawio.DeviceID{Name: name})
}

// binding is one client port and the system port it should be connected to.
type binding struct {
	port   Port
	system string // empty when unbound

	// lost is set while the system port is unregistered.
	lost bool

	// pendingGen is the layout generation the port waits for before it is
	// connected. Zero once connected.
	pendingGen uint64
}

// portSet is the audio thread's view of the client ports, swapped with the
// engine layout.
type portSet struct {
	ports [numKinds][]Port
}

// retiredPort is a dropped client port waiting for the audio thread to
// leave the layout generation that still used it.
type retiredPort struct {
	gen       uint64
	port      Port
	kind      portKind
	index     int
	system    string
	connected bool
}

type midiSink struct {
	engine *dawio.Engine
	port   int
}

func (m *midiSink) PushMidi(time uint32, data []byte) {
	m.engine.PushMidiIn(m.port, time, data)
}

type stream struct {
	client     Client
	engine     *dawio.Engine
	msgs       dawio.MsgProducer
	fatal      func(dawio.StreamError)
	logger     *slog.Logger
	sampleRate uint32
	nativeMidi bool
	sink       midiSink

	serverGone atomic.Bool
	wake       chan struct{}
	quit       chan struct{}
	loopDone   chan struct{}
	stopOnce   sync.Once
	stopErr    error

	mu      sync.Mutex
	links   [numKinds][]binding
	retired []retiredPort
}

// Start opens a client, registers the stream ports, activates, and
// connects to the planned system ports.
func (d *Driver) Start(ctx context.Context, req dawio.StartRequest) (dawio.PlatformStream, error) {
	name := req.Options.ApplicationName
	if name == "" {
		name = DefaultClientName
	}
	c, _, err := d.open(name)
	if err != nil {
		return nil, &dawio.RunConfigError{Kind: dawio.KindAudioBackendNotRunning, Backend: dawio.BackendJack, Err: err}
	}
	s, err := newStream(c, req)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return s, nil
}

func newStream(c Client, req dawio.StartRequest) (*stream, error) {
	plan := req.Plan
	sr, bs := c.SampleRate(), c.BufferSize()
	if sr != plan.SampleRate {
		return nil, &dawio.RunConfigError{Kind: dawio.KindCouldNotUseSampleRate, Backend: dawio.BackendJack, SampleRate: plan.SampleRate}
	}

	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &stream{
		client:     c,
		msgs:       req.Messages,
		fatal:      req.Fatal,
		logger:     logger.With("client", c.Name()),
		sampleRate: sr,
		nativeMidi: req.Midi == nil,
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}

	info := plan.StreamInfo()
	info.BufferSize = dawio.Fixed(bs)
	lat := bs
	info.EstimatedLatency = &lat

	var targets [numKinds][]string
	var found [numKinds][]bool
	for _, p := range plan.Inputs {
		targets[kindAudioIn] = append(targets[kindAudioIn], p.SystemName)
		found[kindAudioIn] = append(found[kindAudioIn], p.Found)
	}
	for _, p := range plan.Outputs {
		targets[kindAudioOut] = append(targets[kindAudioOut], p.SystemName)
		found[kindAudioOut] = append(found[kindAudioOut], p.Found)
	}
	if s.nativeMidi && plan.Midi != nil {
		for _, p := range plan.Midi.In {
			targets[kindMidiIn] = append(targets[kindMidiIn], p.Config.DeviceID.Name)
			found[kindMidiIn] = append(found[kindMidiIn], p.Found)
		}
		for _, p := range plan.Midi.Out {
			targets[kindMidiOut] = append(targets[kindMidiOut], p.Config.DeviceID.Name)
			found[kindMidiOut] = append(found[kindMidiOut], p.Found)
		}
	}

	permissive := req.Options.PermissivePorts()
	for k := range numKinds {
		available := k.systemPorts(c)
		for i, name := range targets[k] {
			p, err := c.RegisterPort(k.portName(i), k.portType(), k.flags())
			if err != nil {
				return nil, dawio.PlatformError(fmt.Errorf("register port %s: %w", k.portName(i), err))
			}
			b := binding{port: p}
			if found[k][i] && slices.Contains(available, name) {
				b.system = name
			} else {
				// Missing MIDI devices were already accepted by the resolver.
				if !k.midi() && !permissive {
					return nil, &dawio.RunConfigError{Kind: dawio.KindAudioPortNotFound, Backend: dawio.BackendJack, Port: name}
				}
				setConnected(&info, k, i, false)
				s.msgs.TryPush(k.notFound(name))
				s.logger.Warn("System port not found, using a silent buffer", "port", name)
			}
			s.links[k] = append(s.links[k], b)
		}
	}

	engine, err := req.NewEngine(dawio.Layout{
		Info:      info,
		MaxFrames: int(bs),
		Backend:   s.portSetLocked(),
	})
	if err != nil {
		return nil, dawio.PlatformError(err)
	}
	s.engine = engine
	s.sink.engine = engine

	if err := c.SetProcessCallback(s.process); err != nil {
		return nil, dawio.PlatformError(fmt.Errorf("set process callback: %w", err))
	}
	if err := c.SetSampleRateCallback(s.sampleRateChanged); err != nil {
		return nil, dawio.PlatformError(fmt.Errorf("set sample rate callback: %w", err))
	}
	if err := c.SetXRunCallback(s.xrun); err != nil {
		return nil, dawio.PlatformError(fmt.Errorf("set xrun callback: %w", err))
	}
	if err := c.SetPortRegistrationCallback(s.portRegistration); err != nil {
		return nil, dawio.PlatformError(fmt.Errorf("set port registration callback: %w", err))
	}
	c.SetShutdownCallback(s.shutdown)

	if err := c.Activate(); err != nil {
		return nil, dawio.PlatformError(fmt.Errorf("activate: %w", err))
	}

	// Ports can only be connected once the client is active.
	changed := false
	for k := range numKinds {
		for i := range s.links[k] {
			b := &s.links[k][i]
			if b.system == "" {
				continue
			}
			err := s.connect(k, *b)
			if err == nil {
				continue
			}
			if !k.midi() && !permissive {
				_ = c.Deactivate()
				return nil, &dawio.RunConfigError{Kind: dawio.KindAudioPortNotFound, Backend: dawio.BackendJack, Port: b.system, Err: err}
			}
			s.logger.Warn("Could not connect port, using a silent buffer", "port", b.system, "error", err)
			s.msgs.TryPush(k.notFound(b.system))
			setConnected(&info, k, i, false)
			b.system = ""
			changed = true
		}
	}
	if changed {
		l := engine.Layout()
		l.Info = info
		if req.Midi != nil {
			l.Info.Midi = engine.Info().Midi
		}
		if _, err := engine.Reconfigure(l); err != nil {
			_ = c.Deactivate()
			return nil, dawio.PlatformError(err)
		}
	}

	go s.maintain()
	return s, nil
}

func setConnected(info *dawio.StreamInfo, k portKind, i int, ok bool) {
	switch k {
	case kindAudioIn:
		info.InPorts[i].ConnectedToSystem = ok
	case kindAudioOut:
		info.OutPorts[i].ConnectedToSystem = ok
	case kindMidiIn:
		info.Midi.InPorts[i].ConnectedToSystem = ok
	case kindMidiOut:
		info.Midi.OutPorts[i].ConnectedToSystem = ok
	}
}

func (s *stream) connect(k portKind, b binding) error {
	if k.input() {
		return s.client.Connect(b.system, b.port.Name())
	}
	return s.client.Connect(b.port.Name(), b.system)
}

func (s *stream) disconnect(k portKind, b binding) error {
	if k.input() {
		return s.client.Disconnect(b.system, b.port.Name())
	}
	return s.client.Disconnect(b.port.Name(), b.system)
}

func (s *stream) portSetLocked() *portSet {
	ps := &portSet{}
	for k := range numKinds {
		ps.ports[k] = make([]Port, len(s.links[k]))
		for i, b := range s.links[k] {
			ps.ports[k][i] = b.port
		}
	}
	return ps
}

// --- Jack threads ---

func (s *stream) process(nframes uint32) int {
	if nframes == 0 {
		return 0
	}
	e := s.engine
	n := e.BeginCycle(int(nframes))
	ps := e.Backend().(*portSet)

	for i, p := range ps.ports[kindAudioIn] {
		e.CopyInput(i, p.AudioBuffer(nframes))
	}
	for i, p := range ps.ports[kindMidiIn] {
		if i >= e.NumMidiIn() {
			break
		}
		s.sink.port = i
		p.ReadMidi(nframes, &s.sink)
	}

	e.Process()

	for i, p := range ps.ports[kindAudioOut] {
		buf := p.AudioBuffer(nframes)
		clear(buf)
		e.CopyOutput(i, buf[:n])
	}
	for i, p := range ps.ports[kindMidiOut] {
		p.ClearMidi(nframes)
		if i >= e.NumMidiOut() {
			continue
		}
		evs := e.MidiOut(i).Events()
		for j := range evs {
			t := min(evs[j].DeltaFrames, nframes-1)
			_ = p.WriteMidi(nframes, t, evs[j].Bytes())
		}
	}
	return 0
}

func (s *stream) sampleRateChanged(rate uint32) int {
	if rate != s.sampleRate {
		s.fatal(dawio.StreamError{Kind: dawio.AudioServerChangedSamplerate, NewSampleRate: rate})
	}
	return 0
}

func (s *stream) xrun() int {
	s.engine.CountXrun()
	return 0
}

func (s *stream) shutdown(reason string) {
	s.serverGone.Store(true)
	s.fatal(dawio.StreamError{Kind: dawio.AudioServerShutdown, Message: reason})
}

// portRegistration runs on the notification thread, which must not call
// back into Jack. The maintenance goroutine does the work.
func (s *stream) portRegistration(string, bool) {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// --- maintenance ---

func (s *stream) maintain() {
	defer close(s.loopDone)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
			s.mu.Lock()
			s.resyncLocked()
			s.mu.Unlock()
		case <-ticker.C:
			s.mu.Lock()
			s.settleLocked()
			s.mu.Unlock()
		}
	}
}

// resyncLocked compares the bound system ports with the server graph,
// reporting ports that went away and reconnecting ports that came back.
func (s *stream) resyncLocked() {
	if s.serverGone.Load() {
		return
	}
	present := make(map[string]bool)
	for _, name := range s.client.Ports("", 0) {
		present[name] = true
	}
	reported := make(map[string]bool)
	for k := range numKinds {
		for i := range s.links[k] {
			b := &s.links[k][i]
			if b.system == "" || b.pendingGen != 0 {
				continue
			}
			switch {
			case !present[b.system] && !b.lost:
				b.lost = true
				if !reported[b.system] {
					reported[b.system] = true
					s.msgs.TryPush(k.disconnected(b.system))
					s.logger.Warn("System port disconnected", "port", b.system)
				}
			case present[b.system] && b.lost:
				if err := s.connect(k, *b); err != nil {
					s.logger.Warn("Could not reconnect port", "port", b.system, "error", err)
					continue
				}
				b.lost = false
				if !reported[b.system] {
					reported[b.system] = true
					s.msgs.TryPush(k.reconnected(b.system))
					s.logger.Info("System port reconnected", "port", b.system)
				}
			}
		}
	}
}

// settleLocked connects fresh ports and unregisters retired ones once the
// audio thread has moved to the layout that made the change.
func (s *stream) settleLocked() {
	if s.serverGone.Load() {
		return
	}
	for k := range numKinds {
		for i := range s.links[k] {
			b := &s.links[k][i]
			if b.pendingGen == 0 || !s.engine.Applied(b.pendingGen) {
				continue
			}
			b.pendingGen = 0
			if b.system == "" {
				continue
			}
			if err := s.connect(k, *b); err != nil {
				s.logger.Warn("Could not connect port", "port", b.system, "error", err)
				b.lost = true
			}
		}
	}
	kept := s.retired[:0]
	for _, r := range s.retired {
		if !s.engine.Applied(r.gen) {
			kept = append(kept, r)
			continue
		}
		if err := s.client.UnregisterPort(r.port); err != nil {
			s.logger.Debug("Could not unregister port", "port", r.port.Name(), "error", err)
		}
	}
	s.retired = kept
}

// --- control plane ---

func (s *stream) Engine() *dawio.Engine { return s.engine }

func (s *stream) Capabilities() dawio.Capabilities {
	return dawio.Capabilities{
		AudioPorts:  true,
		JackPorts:   true,
		NativeMidi:  s.nativeMidi,
		MidiDevices: s.nativeMidi,
	}
}

func (s *stream) ChangeBlockSize(uint32) error {
	return dawio.NewChangeBlockSizeError(dawio.NotSupportedByBackend, "jack block size is set by the server", nil)
}

func (s *stream) ChangeAudioPorts(in, out *[]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var targets [numKinds]*[]string
	for _, sel := range []struct {
		k       portKind
		indices *[]int
	}{{kindAudioIn, in}, {kindAudioOut, out}} {
		if sel.indices == nil {
			continue
		}
		ports := sel.k.physicalPorts(s.client)
		names := make([]string, len(*sel.indices))
		for i, idx := range *sel.indices {
			if idx < 0 || idx >= len(ports) {
				return dawio.NewChangeAudioPortsError(dawio.InvalidPort, fmt.Sprintf("port index %d out of range", idx), nil)
			}
			names[i] = ports[idx]
		}
		targets[sel.k] = &names
	}
	if err := s.applyLocked(targets); err != nil {
		return dawio.NewChangeAudioPortsError(dawio.ChangePlatformSpecific, "", err)
	}
	return nil
}

func (s *stream) ChangeJackPorts(in, out *[]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var targets [numKinds]*[]string
	for _, sel := range []struct {
		k     portKind
		names *[]string
	}{{kindAudioIn, in}, {kindAudioOut, out}} {
		if sel.names == nil {
			continue
		}
		available := sel.k.systemPorts(s.client)
		for _, name := range *sel.names {
			if !slices.Contains(available, name) {
				return dawio.NewChangeAudioPortsError(dawio.InvalidPort, fmt.Sprintf("port %q not found", name), nil)
			}
		}
		names := slices.Clone(*sel.names)
		targets[sel.k] = &names
	}
	if err := s.applyLocked(targets); err != nil {
		return dawio.NewChangeAudioPortsError(dawio.ChangePlatformSpecific, "", err)
	}
	return nil
}

func (s *stream) ChangeMidiPorts(in, out *[]dawio.MidiPortConfig) error {
	if !s.nativeMidi {
		return dawio.NewChangeMidiPortsError(dawio.NotSupportedByBackend, "", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var targets [numKinds]*[]string
	for _, sel := range []struct {
		k   portKind
		cfg *[]dawio.MidiPortConfig
	}{{kindMidiIn, in}, {kindMidiOut, out}} {
		if sel.cfg == nil {
			continue
		}
		available := sel.k.systemPorts(s.client)
		names := make([]string, len(*sel.cfg))
		for i, pc := range *sel.cfg {
			if !slices.Contains(available, pc.DeviceID.Name) {
				return dawio.NewChangeMidiPortsError(dawio.InvalidMidiDevice, fmt.Sprintf("midi port %s not found", pc.DeviceID), nil)
			}
			names[i] = pc.DeviceID.Name
		}
		targets[sel.k] = &names
	}
	if err := s.applyLocked(targets); err != nil {
		return dawio.NewChangeMidiPortsError(dawio.ChangePlatformSpecific, "", err)
	}
	return nil
}

// applyLocked rebinds every kind with a non-nil target list. New positions
// get fresh ports that are connected once the audio thread uses them;
// dropped positions are unregistered once it stops using them.
func (s *stream) applyLocked(targets [numKinds]*[]string) error {
	s.settleLocked()

	next := s.links
	var registered []Port
	var reclaimed []retiredPort
	var unlink []struct {
		kind portKind
		b    binding
	}
	rollback := func() {
		for _, p := range registered {
			_ = s.client.UnregisterPort(p)
		}
		s.retired = append(s.retired, reclaimed...)
	}
	var fresh [numKinds][]int
	for k, t := range targets {
		if t == nil {
			continue
		}
		cur := s.links[k]
		nb := make([]binding, len(*t))
		for i, name := range *t {
			if i < len(cur) {
				nb[i] = binding{port: cur[i].port, system: name, pendingGen: cur[i].pendingGen}
				continue
			}
			kind := portKind(k)
			// A port dropped by an earlier change that the audio thread has
			// not released yet still holds its name; take it back.
			if r, ok := s.reclaimLocked(kind, i); ok {
				reclaimed = append(reclaimed, r)
				if r.connected && r.system == name {
					nb[i] = binding{port: r.port, system: name}
					continue
				}
				if r.connected {
					unlink = append(unlink, struct {
						kind portKind
						b    binding
					}{kind, binding{port: r.port, system: r.system}})
				}
				nb[i] = binding{port: r.port, system: name}
				fresh[k] = append(fresh[k], i)
				continue
			}
			p, err := s.client.RegisterPort(kind.portName(i), kind.portType(), kind.flags())
			if err != nil {
				rollback()
				return fmt.Errorf("register port %s: %w", kind.portName(i), err)
			}
			registered = append(registered, p)
			nb[i] = binding{port: p, system: name}
			fresh[k] = append(fresh[k], i)
		}
		next[k] = nb
	}

	l := s.engine.Layout()
	for k, t := range targets {
		if t != nil {
			s.describe(&l.Info, portKind(k), *t)
		}
	}
	prev := s.links
	s.links = next
	l.Backend = s.portSetLocked()
	gen, err := s.engine.Reconfigure(l)
	if err != nil {
		s.links = prev
		rollback()
		return err
	}

	for _, u := range unlink {
		_ = s.disconnect(u.kind, u.b)
	}
	for k, t := range targets {
		if t == nil {
			continue
		}
		kind := portKind(k)
		old := prev[k]
		for i := range min(len(old), len(next[k])) {
			o, b := old[i], &next[k][i]
			if o.system == b.system && !o.lost {
				continue
			}
			if o.system != "" && !o.lost && o.pendingGen == 0 {
				_ = s.disconnect(kind, o)
			}
			if b.pendingGen != 0 {
				continue
			}
			if err := s.connect(kind, *b); err != nil {
				s.logger.Warn("Could not connect port", "port", b.system, "error", err)
				b.lost = true
			}
		}
		for _, i := range fresh[k] {
			next[k][i].pendingGen = gen
		}
		for i := len(next[k]); i < len(old); i++ {
			o := old[i]
			s.retired = append(s.retired, retiredPort{
				gen:       gen,
				port:      o.port,
				kind:      kind,
				index:     i,
				system:    o.system,
				connected: o.system != "" && !o.lost && o.pendingGen == 0,
			})
		}
	}
	s.logger.Info("Ports reconfigured", "generation", gen)
	return nil
}

// reclaimLocked removes and returns the retired port that held position i
// of kind k.
func (s *stream) reclaimLocked(k portKind, i int) (retiredPort, bool) {
	for j, r := range s.retired {
		if r.kind == k && r.index == i {
			s.retired = slices.Delete(s.retired, j, j+1)
			return r, true
		}
	}
	return retiredPort{}, false
}

// describe rewrites the stream info of kind k for the given system ports.
func (s *stream) describe(info *dawio.StreamInfo, k portKind, names []string) {
	if k.midi() {
		if info.Midi == nil {
			info.Midi = &dawio.MidiStreamInfo{Backend: dawio.BackendJack, BufferSize: s.engine.Options().MidiBufferSize}
		}
		ports := make([]dawio.MidiPortStreamInfo, len(names))
		for i, name := range names {
			ports[i] = dawio.MidiPortStreamInfo{
				ID:                dawio.DeviceID{Name: name},
				Name:              k.portName(i),
				ConnectedToSystem: true,
			}
		}
		if k == kindMidiIn {
			info.Midi.InPorts = ports
		} else {
			info.Midi.OutPorts = ports
		}
		return
	}
	physical := k.physicalPorts(s.client)
	ports := make([]dawio.AudioPortStreamInfo, len(names))
	for i, name := range names {
		ports[i] = dawio.AudioPortStreamInfo{
			Name:              k.portName(i),
			ConnectedToIndex:  slices.Index(physical, name),
			ConnectedToName:   name,
			ConnectedToSystem: true,
		}
	}
	if k == kindAudioIn {
		info.InPorts = ports
	} else {
		info.OutPorts = ports
	}
}

// Stop deactivates the client, which returns once the process callback has
// finished its last cycle, then closes it.
func (s *stream) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.quit)
		<-s.loopDone

		done := make(chan error, 1)
		go func() {
			var errs []error
			gone := s.serverGone.Load()
			if !gone {
				if err := s.client.Deactivate(); err != nil {
					errs = append(errs, fmt.Errorf("deactivate: %w", err))
				}
			}
			if err := s.client.Close(); err != nil && !gone {
				errs = append(errs, fmt.Errorf("close client: %w", err))
			}
			done <- errors.Join(errs...)
		}()
		select {
		case s.stopErr = <-done:
		case <-ctx.Done():
			s.stopErr = ctx.Err()
		}
	})
	return s.stopErr
}
