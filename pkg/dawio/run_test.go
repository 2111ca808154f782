package dawio

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func runOn(t *testing.T, h *Host, cfg Config, opts RunOptions, handler ProcessHandler) *StreamHandle {
	t.Helper()
	sh, err := h.Run(context.Background(), cfg, opts, handler)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	t.Cleanup(func() { _ = sh.Close() })
	return sh
}

func audioOnlyConfig() Config {
	cfg := DefaultConfig()
	cfg.Midi = nil
	return cfg
}

func TestRunLifecycle(t *testing.T) {
	h := NewHost("linux")
	d := newFakeAudio(BackendAlsa)
	h.RegisterAudio(d)

	rec := &testHandler{}
	sh := runOn(t, h, audioOnlyConfig(), DefaultRunOptions(), rec)
	if sh.State() != StateRunning {
		t.Fatalf("state = %s", sh.State())
	}
	info := sh.StreamInfo()
	if info.Backend != BackendAlsa || info.SampleRate != 48000 || info.NumOutputs() != 2 {
		t.Errorf("info = %+v", info)
	}

	s := d.lastStream()
	s.cycle(128)
	s.cycle(128)
	if !slices.Equal(rec.calls, []string{"init", "process", "process"}) {
		t.Errorf("calls = %v", rec.calls)
	}
	if got := sh.Stats().Cycles; got != 2 {
		t.Errorf("cycles = %d", got)
	}

	if err := sh.Close(); err != nil {
		t.Fatal(err)
	}
	if !s.isStopped() || sh.State() != StateStopped {
		t.Errorf("stopped = %v, state = %s", s.isStopped(), sh.State())
	}
	select {
	case <-sh.Done():
	default:
		t.Error("Done not closed")
	}
	msgs := drainMsgs(sh.Messages())
	if len(msgs) == 0 || msgs[len(msgs)-1].Kind != MsgClosed {
		t.Errorf("messages = %v, want trailing closed", msgKinds(msgs))
	}
	if err := sh.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestRunSetupErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Host)
		handler ProcessHandler
		wantErr error
	}{
		{
			name:    "nil handler",
			setup:   func(h *Host) { h.RegisterAudio(newFakeAudio(BackendAlsa)) },
			wantErr: ErrMalformedConfig,
		},
		{
			name:    "no backends",
			setup:   func(*Host) {},
			handler: &testHandler{},
			wantErr: ErrAudioBackendNotFound,
		},
		{
			name: "driver start failure",
			setup: func(h *Host) {
				d := newFakeAudio(BackendAlsa)
				d.startErr = errors.New("device busy")
				h.RegisterAudio(d)
			},
			handler: &testHandler{},
			wantErr: ErrPlatformSpecific,
		},
		{
			name: "driver config failure passes through",
			setup: func(h *Host) {
				d := newFakeAudio(BackendAlsa)
				d.startErr = &RunConfigError{Kind: KindCouldNotUseSampleRate, SampleRate: 48000}
				h.RegisterAudio(d)
			},
			handler: &testHandler{},
			wantErr: ErrCouldNotUseSampleRate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHost("linux")
			tt.setup(h)
			sh, err := h.Run(context.Background(), audioOnlyConfig(), DefaultRunOptions(), tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if sh != nil {
				t.Error("handle returned with error")
			}
		})
	}
}

func TestStartUnregisteredBackend(t *testing.T) {
	h := NewHost("linux")
	_, err := h.Start(context.Background(), Plan{Backend: BackendJack}, DefaultRunOptions(), &testHandler{})
	if !errors.Is(err, ErrAudioBackendNotInstalled) {
		t.Fatalf("err = %v", err)
	}
}

func TestFatalStopsStream(t *testing.T) {
	h := NewHost("linux")
	d := newFakeAudio(BackendAlsa)
	h.RegisterAudio(d)
	sh := runOn(t, h, audioOnlyConfig(), DefaultRunOptions(), &testHandler{})
	s := d.lastStream()

	s.fatal(StreamError{Kind: AudioServerShutdown, Message: "gone"})
	s.fatal(StreamError{Kind: AudioServerShutdown, Message: "twice"})

	select {
	case <-sh.Done():
	case <-time.After(time.Second):
		t.Fatal("stream did not stop")
	}
	msgs := drainMsgs(sh.Messages())
	if got := msgKinds(msgs); !slices.Equal(got, []StreamMsgKind{MsgError, MsgClosed}) {
		t.Fatalf("messages = %v", got)
	}
	if msgs[0].Err.Kind != AudioServerShutdown || msgs[0].Err.Message != "gone" {
		t.Errorf("error = %+v", msgs[0].Err)
	}
	if !s.isStopped() {
		t.Error("platform stream not stopped")
	}
}

func TestChangeAudioPortConfig(t *testing.T) {
	h := NewHost("linux")
	d := newFakeAudio(BackendAlsa)
	h.RegisterAudio(d)
	rec := &testHandler{}
	sh := runOn(t, h, audioOnlyConfig(), DefaultRunOptions(), rec)
	s := d.lastStream()
	s.cycle(64)

	same := []int{0, 1}
	if err := sh.ChangeAudioPortConfig(nil, &same); err != nil {
		t.Fatal(err)
	}
	if s.changeCount() != 0 {
		t.Error("no-op change reached the backend")
	}

	neg := []int{-1}
	if kind, _ := ChangeKind(sh.ChangeAudioPortConfig(nil, &neg)); kind != InvalidPort {
		t.Errorf("negative index kind = %v", kind)
	}

	swapped := []int{1, 0}
	if err := sh.ChangeAudioPortConfig(nil, &swapped); err != nil {
		t.Fatal(err)
	}
	if sh.State() != StateRunning {
		t.Errorf("state after change = %s", sh.State())
	}
	s.cycle(64)
	want := []string{"init", "process", "changed", "process"}
	if !slices.Equal(rec.calls, want) {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
	if got := rec.infos[len(rec.infos)-1].OutPorts[0].ConnectedToIndex; got != 1 {
		t.Errorf("out_1 connected to %d, want 1", got)
	}

	if kind, _ := ChangeKind(sh.ChangeBlockSizeConfig(256)); kind != NotSupportedByBackend {
		t.Errorf("block size kind = %v", kind)
	}
	if kind, _ := ChangeKind(sh.ChangeJackAudioPortConfig(nil, nil)); kind != NotSupportedByBackend {
		t.Errorf("jack ports kind = %v", kind)
	}

	_ = sh.Close()
	back := []int{0, 1}
	if kind, _ := ChangeKind(sh.ChangeAudioPortConfig(nil, &back)); kind != StreamClosed {
		t.Errorf("change after close kind = %v", kind)
	}
}

func TestRunWithBridgedMidi(t *testing.T) {
	h := NewHost("linux")
	d := newFakeAudio(BackendAlsa)
	m := newFakeMidi(BackendAlsa)
	h.RegisterAudio(d)
	h.RegisterMidi(m)

	var inEvents []RawMidi
	rec := &testHandler{process: func(p ProcessInfo) {
		for _, buf := range p.MidiInputs {
			inEvents = append(inEvents, buf.Events()...)
		}
		for _, buf := range p.MidiOutputs {
			_ = buf.PushRaw(0, []byte{0x90, 64, 90})
		}
	}}
	sh := runOn(t, h, DefaultConfig(), DefaultRunOptions(), rec)
	s := d.lastStream()

	info := sh.StreamInfo()
	if info.Midi == nil || len(info.Midi.InPorts) != 1 || info.Midi.InPorts[0].ID.Name != "keys" {
		t.Fatalf("midi info = %+v", info.Midi)
	}
	if !sh.CanChangeMidiDeviceConfig() {
		t.Error("bridged midi should be changeable")
	}

	if !m.send("keys", []byte{0x90, 60, 100}) {
		t.Fatal("input not opened")
	}
	s.cycle(128)
	if len(inEvents) != 1 || inEvents[0].Data[1] != 60 {
		t.Errorf("input events = %v", inEvents)
	}

	out := []MidiPortConfig{{DeviceID: DeviceID{Name: "synth"}}}
	if err := sh.ChangeMidiDeviceConfig(nil, &out); err != nil {
		t.Fatal(err)
	}
	s.cycle(128)
	if got := sh.StreamInfo().Midi; len(got.OutPorts) != 1 || len(got.InPorts) != 1 {
		t.Errorf("midi info after change = %+v", got)
	}
	synth := m.sender("synth")
	if synth == nil {
		t.Fatal("output not opened")
	}
	if !eventually(func() bool { return len(synth.messages()) > 0 }) {
		t.Fatal("output event never sent")
	}

	ghost := []MidiPortConfig{{DeviceID: DeviceID{Name: "ghost"}}}
	if kind, _ := ChangeKind(sh.ChangeMidiDeviceConfig(&ghost, nil)); kind != InvalidMidiDevice {
		t.Errorf("unknown device kind = %v", kind)
	}

	if err := sh.Close(); err != nil {
		t.Fatal(err)
	}
	if m.closeCount("keys") != 1 {
		t.Errorf("keys closed %d times", m.closeCount("keys"))
	}
}

func TestRunMidiStartFailureClosesSession(t *testing.T) {
	h := NewHost("linux")
	d := newFakeAudio(BackendAlsa)
	d.startErr = errors.New("device busy")
	m := newFakeMidi(BackendAlsa)
	h.RegisterAudio(d)
	h.RegisterMidi(m)

	if _, err := h.Run(context.Background(), DefaultConfig(), DefaultRunOptions(), &testHandler{}); err == nil {
		t.Fatal("expected error")
	}
	if m.closeCount("keys") != 1 {
		t.Errorf("keys closed %d times, want 1", m.closeCount("keys"))
	}
}

func TestRunNativeMidiSkipsSession(t *testing.T) {
	h := NewHost("linux")
	d := newFakeAudio(BackendJack)
	d.native = true
	h.RegisterAudio(d)
	h.RegisterMidi(&nativeMidiDriver{})

	runOn(t, h, DefaultConfig(), DefaultRunOptions(), &testHandler{})
	d.mu.Lock()
	req := d.reqs[0]
	d.mu.Unlock()
	if req.Midi != nil {
		t.Error("native midi backend got a bridged session")
	}
	if req.Plan.Midi == nil || req.Plan.Midi.Backend != BackendJack {
		t.Errorf("plan midi = %+v", req.Plan.Midi)
	}
}

// nativeMidiDriver enumerates ports but cannot open them outside its audio
// backend.
type nativeMidiDriver struct{}

func (nativeMidiDriver) Backend() Backend { return BackendJack }

func (nativeMidiDriver) Enumerate(context.Context) MidiBackendInfo {
	return MidiBackendInfo{Status: StatusRunning, InDevices: []MidiDeviceInfo{{ID: DeviceID{Name: "system:midi_capture_1"}}}}
}
