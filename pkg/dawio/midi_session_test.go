package dawio

import (
	"context"
	"slices"
	"testing"
)

func newTestSession(t *testing.T, m *fakeMidiDriver, plan *MidiPlan) (*MidiSession, *MsgConsumer) {
	t.Helper()
	p, c := NewMsgChannel(32)
	s, err := NewMidiSession(context.Background(), m, plan, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, c
}

func planned(found bool, names ...string) []MidiPlannedPort {
	out := make([]MidiPlannedPort, len(names))
	for i, n := range names {
		out[i] = MidiPlannedPort{Config: MidiPortConfig{DeviceID: DeviceID{Name: n}}, Found: found}
	}
	return out
}

func TestMidiSessionMissingDevices(t *testing.T) {
	m := newFakeMidi(BackendAlsa)
	plan := &MidiPlan{Backend: BackendAlsa, In: planned(false, "ghost"), Out: planned(true, "gone")}
	s, c := newTestSession(t, m, plan)

	msgs := drainMsgs(c)
	want := []StreamMsgKind{MsgMidiInDeviceNotFound, MsgMidiOutDeviceNotFound}
	if got := msgKinds(msgs); !slices.Equal(got, want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
	if msgs[0].Name != "ghost" || msgs[1].Name != "gone" {
		t.Errorf("names = %q, %q", msgs[0].Name, msgs[1].Name)
	}

	var l Layout
	s.applyTo(&l)
	if len(l.MidiIn) != 1 || len(l.MidiOut) != 1 {
		t.Fatalf("layout has %d/%d bridges", len(l.MidiIn), len(l.MidiOut))
	}
	if l.Info.Midi.InPorts[0].ConnectedToSystem || l.Info.Midi.OutPorts[0].ConnectedToSystem {
		t.Error("missing devices reported as connected")
	}
	if l.Info.Midi.InPorts[0].Name != "midi_in_1" {
		t.Errorf("name = %q", l.Info.Midi.InPorts[0].Name)
	}
}

func TestMidiSessionInputLostAndReconnected(t *testing.T) {
	m := newFakeMidi(BackendAlsa)
	s, c := newTestSession(t, m, &MidiPlan{Backend: BackendAlsa, In: planned(true, "keys")})

	m.unplug("keys")
	m.unplug("keys")
	msgs := drainMsgs(c)
	if got := msgKinds(msgs); !slices.Equal(got, []StreamMsgKind{MsgMidiDeviceDisconnected}) {
		t.Fatalf("messages = %v", got)
	}
	if msgs[0].Device.Name != "keys" {
		t.Errorf("device = %v", msgs[0].Device)
	}
	if m.closeCount("keys") != 1 {
		t.Errorf("lost input closed %d times", m.closeCount("keys"))
	}

	s.reconnect(context.Background())
	if len(drainMsgs(c)) != 0 {
		t.Error("reconnected while the device is still missing")
	}

	m.plug("keys")
	s.reconnect(context.Background())
	if got := msgKinds(drainMsgs(c)); !slices.Equal(got, []StreamMsgKind{MsgMidiDeviceReconnected}) {
		t.Fatalf("messages = %v", got)
	}
	if !m.send("keys", []byte{0xF8}) {
		t.Error("input not reopened")
	}
}

func TestMidiSessionOutputSendFailure(t *testing.T) {
	m := newFakeMidi(BackendAlsa)
	s, c := newTestSession(t, m, &MidiPlan{Backend: BackendAlsa, Out: planned(true, "synth")})

	var l Layout
	s.applyTo(&l)
	synth := m.sender("synth")
	synth.breakDevice()

	buf := NewMidiBuffer(4)
	_ = buf.PushRaw(0, []byte{0x80, 60, 0})
	l.MidiOut[0].enqueue(buf)
	s.flush()

	if got := msgKinds(drainMsgs(c)); !slices.Equal(got, []StreamMsgKind{MsgMidiDeviceDisconnected}) {
		t.Fatalf("messages = %v", got)
	}
	if l.MidiOut[0].Connected() {
		t.Error("bridge still connected")
	}

	s.reconnect(context.Background())
	if got := msgKinds(drainMsgs(c)); !slices.Equal(got, []StreamMsgKind{MsgMidiDeviceReconnected}) {
		t.Fatalf("messages after reconnect = %v", got)
	}
	l.MidiOut[0].enqueue(buf)
	s.flush()
	if got := m.sender("synth").messages(); len(got) != 1 || got[0][1] != 60 {
		t.Errorf("sent = %v", got)
	}
}

func TestMidiSessionChange(t *testing.T) {
	m := newFakeMidi(BackendAlsa)
	m.plug("pads")
	s, _ := newTestSession(t, m, &MidiPlan{Backend: BackendAlsa, In: planned(true, "keys")})

	var before Layout
	s.applyTo(&before)

	in := []MidiPortConfig{{DeviceID: DeviceID{Name: "pads"}}, {DeviceID: DeviceID{Name: "keys"}}}
	bi, bo, info, err := s.Change(context.Background(), &in, nil, 256)
	if err != nil {
		t.Fatal(err)
	}
	if len(bi) != 2 || len(bo) != 0 || info.BufferSize != 256 {
		t.Fatalf("bridges %d/%d size %d", len(bi), len(bo), info.BufferSize)
	}
	if bi[1] != before.MidiIn[0] {
		t.Error("unchanged port was reopened")
	}
	if info.InPorts[0].ID.Name != "pads" || info.InPorts[1].Name != "midi_in_2" {
		t.Errorf("ports = %+v", info.InPorts)
	}

	only := []MidiPortConfig{{DeviceID: DeviceID{Name: "pads"}}}
	if _, _, _, err := s.Change(context.Background(), &only, nil, 256); err != nil {
		t.Fatal(err)
	}
	if m.closeCount("keys") != 1 {
		t.Errorf("dropped port closed %d times", m.closeCount("keys"))
	}

	bad := []MidiPortConfig{{DeviceID: DeviceID{Name: "ghost"}}}
	if _, _, _, err := s.Change(context.Background(), nil, &bad, 256); err == nil {
		t.Error("unknown output accepted")
	} else if kind, _ := ChangeKind(err); kind != InvalidMidiDevice {
		t.Errorf("kind = %v", kind)
	}
}

func TestMidiSessionCloseIdempotent(t *testing.T) {
	m := newFakeMidi(BackendAlsa)
	s, _ := newTestSession(t, m, &MidiPlan{Backend: BackendAlsa, In: planned(true, "keys"), Out: planned(true, "synth")})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if m.closeCount("keys") != 1 {
		t.Errorf("keys closed %d times", m.closeCount("keys"))
	}
	in := []MidiPortConfig{{DeviceID: DeviceID{Name: "keys"}}}
	if _, _, _, err := s.Change(context.Background(), &in, nil, 64); err == nil {
		t.Error("change after close succeeded")
	}
}
