package dawio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// MidiSession services the MIDI ports of a stream whose audio backend does
// not handle MIDI itself. It opens devices through a MidiPortOpener, feeds
// bridges the engine drains, sends outgoing events from a goroutine, and
// reopens devices that went away.
type MidiSession struct {
	driver MidiPortOpener
	msgs   MsgProducer
	logger *slog.Logger

	bridgeCap     int
	sendInterval  time.Duration
	retryInterval time.Duration

	mu     sync.Mutex
	ins    []*midiInPort
	outs   []*midiOutPort
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type midiInPort struct {
	cfg    MidiPortConfig
	bridge *MidiInputBridge
	closer io.Closer
	lost   bool // connected once, then failed
}

type midiOutPort struct {
	cfg    MidiPortConfig
	bridge *MidiOutputBridge
	sender MidiSender
	lost   bool
}

// NewMidiSession opens every port of plan. Ports whose device is missing
// stay in the layout with silent bridges and a *DeviceNotFound message.
func NewMidiSession(ctx context.Context, driver MidiPortOpener, plan *MidiPlan, msgs MsgProducer, logger *slog.Logger) (*MidiSession, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MidiSession{
		driver:        driver,
		msgs:          msgs,
		logger:        logger.With("midi_backend", string(driver.Backend())),
		bridgeCap:     int(max(plan.BufferSize, 64)),
		sendInterval:  time.Millisecond,
		retryInterval: time.Second,
	}
	for _, p := range plan.In {
		s.ins = append(s.ins, s.openIn(ctx, p.Config, p.Found))
	}
	for _, p := range plan.Out {
		s.outs = append(s.outs, s.openOut(ctx, p.Config, p.Found))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.wg.Add(2)
	go s.sendLoop(runCtx)
	go s.superviseLoop(runCtx)
	return s, nil
}

func (s *MidiSession) openIn(ctx context.Context, cfg MidiPortConfig, found bool) *midiInPort {
	p := &midiInPort{cfg: cfg, bridge: NewMidiInputBridge(cfg.DeviceID, s.bridgeCap)}
	if !found {
		p.bridge.SetConnected(false)
		s.msgs.TryPush(MidiInDeviceNotFound(cfg.DeviceID.Name))
		return p
	}
	if err := s.connectIn(ctx, p); err != nil {
		s.logger.Warn("Failed to open MIDI input", "device", cfg.DeviceID.String(), "error", err)
		s.msgs.TryPush(MidiInDeviceNotFound(cfg.DeviceID.Name))
	}
	return p
}

func (s *MidiSession) connectIn(ctx context.Context, p *midiInPort) error {
	bridge := p.bridge
	closer, err := s.driver.OpenInput(ctx, p.cfg.DeviceID, p.cfg.PortIndex,
		func(at time.Time, data []byte) { bridge.DeliverAt(at, data) },
		func(err error) { s.inputFailed(p, err) },
	)
	if err != nil {
		bridge.SetConnected(false)
		return err
	}
	p.closer = closer
	bridge.SetConnected(true)
	return nil
}

func (s *MidiSession) openOut(ctx context.Context, cfg MidiPortConfig, found bool) *midiOutPort {
	p := &midiOutPort{cfg: cfg, bridge: NewMidiOutputBridge(cfg.DeviceID, s.bridgeCap)}
	if !found {
		p.bridge.SetConnected(false)
		s.msgs.TryPush(MidiOutDeviceNotFound(cfg.DeviceID.Name))
		return p
	}
	sender, err := s.driver.OpenOutput(ctx, cfg.DeviceID, cfg.PortIndex)
	if err != nil {
		s.logger.Warn("Failed to open MIDI output", "device", cfg.DeviceID.String(), "error", err)
		p.bridge.SetConnected(false)
		s.msgs.TryPush(MidiOutDeviceNotFound(cfg.DeviceID.Name))
		return p
	}
	p.sender = sender
	return p
}

func (s *MidiSession) inputFailed(p *midiInPort, err error) {
	s.mu.Lock()
	if s.closed || p.lost || !p.bridge.Connected() {
		s.mu.Unlock()
		return
	}
	p.lost = true
	p.bridge.SetConnected(false)
	closer := p.closer
	p.closer = nil
	s.mu.Unlock()

	if closer != nil {
		_ = closer.Close()
	}
	s.logger.Warn("MIDI input lost", "device", p.cfg.DeviceID.String(), "error", err)
	s.msgs.TryPush(MidiDeviceDisconnected(p.cfg.DeviceID))
}

// applyTo fills the MIDI half of layout from the open ports.
func (s *MidiSession) applyTo(l *Layout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.MidiIn, l.MidiOut, l.Info.Midi = s.layoutLocked(l.Info.Midi)
}

func (s *MidiSession) layoutLocked(prev *MidiStreamInfo) ([]*MidiInputBridge, []*MidiOutputBridge, *MidiStreamInfo) {
	info := &MidiStreamInfo{Backend: s.driver.Backend(), BufferSize: uint32(s.bridgeCap)}
	if prev != nil {
		info.BufferSize = prev.BufferSize
	}
	in := make([]*MidiInputBridge, len(s.ins))
	out := make([]*MidiOutputBridge, len(s.outs))
	info.InPorts = make([]MidiPortStreamInfo, len(s.ins))
	info.OutPorts = make([]MidiPortStreamInfo, len(s.outs))
	for i, p := range s.ins {
		in[i] = p.bridge
		info.InPorts[i] = MidiPortStreamInfo{ID: p.cfg.DeviceID, Name: midiPortName("midi_in", i), ConnectedToSystem: p.bridge.Connected()}
	}
	for i, p := range s.outs {
		out[i] = p.bridge
		info.OutPorts[i] = MidiPortStreamInfo{ID: p.cfg.DeviceID, Name: midiPortName("midi_out", i), ConnectedToSystem: p.bridge.Connected()}
	}
	return in, out, info
}

// Change swaps the open ports for in and out, reusing ports whose config is
// unchanged. A nil list keeps the current ports of that direction. It
// returns the bridges and info to publish.
func (s *MidiSession) Change(ctx context.Context, in, out *[]MidiPortConfig, bufferSize uint32) ([]*MidiInputBridge, []*MidiOutputBridge, *MidiStreamInfo, error) {
	known := s.driver.Enumerate(ctx)
	if !known.Running() {
		return nil, nil, nil, NewChangeMidiPortsError(ChangePlatformSpecific, "midi backend is not running", nil)
	}
	if in != nil {
		for _, pc := range *in {
			if _, ok := findMidiDevice(known.InDevices, pc.DeviceID); !ok {
				return nil, nil, nil, NewChangeMidiPortsError(InvalidMidiDevice, pc.DeviceID.String(), nil)
			}
		}
	}
	if out != nil {
		for _, pc := range *out {
			if _, ok := findMidiDevice(known.OutDevices, pc.DeviceID); !ok {
				return nil, nil, nil, NewChangeMidiPortsError(InvalidMidiDevice, pc.DeviceID.String(), nil)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, nil, NewChangeMidiPortsError(StreamClosed, "", nil)
	}

	nextIn, nextOut := s.ins, s.outs
	var opened []io.Closer
	fail := func(err error, id DeviceID) error {
		for _, c := range opened {
			_ = c.Close()
		}
		return NewChangeMidiPortsError(ChangePlatformSpecific, id.String(), err)
	}
	if in != nil {
		nextIn = make([]*midiInPort, 0, len(*in))
		reuse := make(map[MidiPortConfig]*midiInPort, len(s.ins))
		for _, p := range s.ins {
			reuse[p.cfg] = p
		}
		for _, pc := range *in {
			if p, ok := reuse[pc]; ok {
				nextIn = append(nextIn, p)
				delete(reuse, pc)
				continue
			}
			p := &midiInPort{cfg: pc, bridge: NewMidiInputBridge(pc.DeviceID, s.bridgeCap)}
			if err := s.connectIn(ctx, p); err != nil {
				return nil, nil, nil, fail(err, pc.DeviceID)
			}
			opened = append(opened, p.closer)
			nextIn = append(nextIn, p)
		}
	}
	if out != nil {
		nextOut = make([]*midiOutPort, 0, len(*out))
		reuse := make(map[MidiPortConfig]*midiOutPort, len(s.outs))
		for _, p := range s.outs {
			reuse[p.cfg] = p
		}
		for _, pc := range *out {
			if p, ok := reuse[pc]; ok {
				nextOut = append(nextOut, p)
				delete(reuse, pc)
				continue
			}
			sender, err := s.driver.OpenOutput(ctx, pc.DeviceID, pc.PortIndex)
			if err != nil {
				return nil, nil, nil, fail(err, pc.DeviceID)
			}
			opened = append(opened, sender)
			nextOut = append(nextOut, &midiOutPort{cfg: pc, bridge: NewMidiOutputBridge(pc.DeviceID, s.bridgeCap), sender: sender})
		}
	}

	var dropIn []*midiInPort
	var dropOut []*midiOutPort
	for _, p := range s.ins {
		if !containsPort(nextIn, p) {
			dropIn = append(dropIn, p)
		}
	}
	for _, p := range s.outs {
		if !containsPort(nextOut, p) {
			dropOut = append(dropOut, p)
		}
	}
	s.ins, s.outs = nextIn, nextOut

	for _, p := range dropIn {
		if p.closer != nil {
			_ = p.closer.Close()
			p.closer = nil
		}
		p.bridge.SetConnected(false)
	}
	for _, p := range dropOut {
		if p.sender != nil {
			_ = p.sender.Close()
			p.sender = nil
		}
	}
	bi, bo, info := s.layoutLocked(nil)
	info.BufferSize = bufferSize
	return bi, bo, info, nil
}

func containsPort[T comparable](list []T, p T) bool {
	for _, q := range list {
		if q == p {
			return true
		}
	}
	return false
}

func (s *MidiSession) sendLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *MidiSession) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.outs {
		if p.sender == nil {
			p.bridge.Drain(func(RawMidi) {})
			continue
		}
		var sendErr error
		p.bridge.Drain(func(ev RawMidi) {
			if sendErr == nil {
				sendErr = p.sender.Send(ev.Bytes())
			}
		})
		if sendErr != nil {
			s.logger.Warn("MIDI output lost", "device", p.cfg.DeviceID.String(), "error", sendErr)
			_ = p.sender.Close()
			p.sender = nil
			p.lost = true
			p.bridge.SetConnected(false)
			s.msgs.TryPush(MidiDeviceDisconnected(p.cfg.DeviceID))
		}
	}
}

func (s *MidiSession) superviseLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.reconnect(ctx)
	}
}

// reconnect reopens lost ports whose device is enumerated again.
func (s *MidiSession) reconnect(ctx context.Context) {
	s.mu.Lock()
	var lostIn []*midiInPort
	var lostOut []*midiOutPort
	for _, p := range s.ins {
		if p.lost {
			lostIn = append(lostIn, p)
		}
	}
	for _, p := range s.outs {
		if p.lost {
			lostOut = append(lostOut, p)
		}
	}
	s.mu.Unlock()
	if len(lostIn)+len(lostOut) == 0 {
		return
	}

	known := s.driver.Enumerate(ctx)
	if !known.Running() {
		return
	}
	for _, p := range lostIn {
		if _, ok := findMidiDevice(known.InDevices, p.cfg.DeviceID); !ok {
			continue
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		err := s.connectIn(ctx, p)
		if err == nil {
			p.lost = false
		}
		s.mu.Unlock()
		if err == nil {
			s.logger.Info("MIDI input reconnected", "device", p.cfg.DeviceID.String())
			s.msgs.TryPush(MidiDeviceReconnected(p.cfg.DeviceID))
		}
	}
	for _, p := range lostOut {
		if _, ok := findMidiDevice(known.OutDevices, p.cfg.DeviceID); !ok {
			continue
		}
		sender, err := s.driver.OpenOutput(ctx, p.cfg.DeviceID, p.cfg.PortIndex)
		if err != nil {
			continue
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = sender.Close()
			return
		}
		p.sender = sender
		p.lost = false
		p.bridge.SetConnected(true)
		s.mu.Unlock()
		s.logger.Info("MIDI output reconnected", "device", p.cfg.DeviceID.String())
		s.msgs.TryPush(MidiDeviceReconnected(p.cfg.DeviceID))
	}
}

// Close stops the goroutines and closes every device.
func (s *MidiSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	var errs []error
	for _, p := range s.ins {
		if p.closer != nil {
			errs = append(errs, p.closer.Close())
			p.closer = nil
		}
	}
	for _, p := range s.outs {
		if p.sender != nil {
			errs = append(errs, p.sender.Close())
			p.sender = nil
		}
	}
	return errors.Join(errs...)
}

func midiPortName(prefix string, i int) string {
	return prefix + "_" + strconv.Itoa(i+1)
}
