package alsa

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
)

// MidiDriver serves raw MIDI devices (/dev/snd/midiC*D*) through the
// generic MIDI bridge.
type MidiDriver struct {
	sdk SDK
}

// NewMidiDriver creates a raw MIDI driver on top of sdk.
func NewMidiDriver(sdk SDK) *MidiDriver {
	return &MidiDriver{sdk: sdk}
}

func (m *MidiDriver) Backend() dawio.Backend { return dawio.BackendAlsa }

// Enumerate lists raw MIDI devices, one dawio device per direction.
func (m *MidiDriver) Enumerate(ctx context.Context) dawio.MidiBackendInfo {
	info := dawio.MidiBackendInfo{
		Backend:    dawio.BackendAlsa,
		Version:    m.sdk.Version(),
		InDevices:  []dawio.MidiDeviceInfo{},
		OutDevices: []dawio.MidiDeviceInfo{},
	}
	ports, err := m.sdk.MidiPorts()
	if err != nil {
		info.Status = dawio.StatusError
		info.ErrorMessage = err.Error()
		return info
	}
	info.Status = dawio.StatusRunning
	for _, p := range ports {
		dev := dawio.MidiDeviceInfo{ID: midiID(p)}
		if p.Input {
			info.InDevices = append(info.InDevices, dev)
		}
		if p.Output {
			info.OutDevices = append(info.OutDevices, dev)
		}
	}
	if len(info.InDevices) > 0 {
		def := 0
		info.DefaultIn = &def
	}
	if len(info.OutDevices) > 0 {
		def := 0
		info.DefaultOut = &def
	}
	return info
}

func midiID(p MidiPortInfo) dawio.DeviceID {
	return dawio.DeviceID{
		Name:       fmt.Sprintf("%s: %s", p.CardName, p.Name),
		Identifier: hwID(p.Card, p.Device),
	}
}

func (m *MidiDriver) find(id dawio.DeviceID, input bool) (MidiPortInfo, error) {
	ports, err := m.sdk.MidiPorts()
	if err != nil {
		return MidiPortInfo{}, err
	}
	for _, p := range ports {
		if (input && !p.Input) || (!input && !p.Output) {
			continue
		}
		if id.Matches(midiID(p)) {
			return p, nil
		}
	}
	return MidiPortInfo{}, fmt.Errorf("raw midi device %s not found", id)
}

// OpenInput reads the device on its own goroutine and hands every complete
// message to recv. Raw MIDI devices have one port, so portIndex is unused.
func (m *MidiDriver) OpenInput(ctx context.Context, id dawio.DeviceID, portIndex int, recv func(time.Time, []byte), fail func(error)) (io.Closer, error) {
	p, err := m.find(id, true)
	if err != nil {
		return nil, err
	}
	rw, err := m.sdk.OpenMidi(p.Card, p.Device, true)
	if err != nil {
		return nil, err
	}
	in := &midiInput{rw: rw, done: make(chan struct{})}
	go in.read(recv, fail)
	return in, nil
}

type midiInput struct {
	rw     io.ReadWriteCloser
	closed atomic.Bool
	done   chan struct{}
}

func (in *midiInput) read(recv func(time.Time, []byte), fail func(error)) {
	defer close(in.done)
	var parser midiParser
	buf := make([]byte, 256)
	for {
		n, err := in.rw.Read(buf)
		if n > 0 {
			now := time.Now()
			parser.feed(buf[:n], func(msg []byte) { recv(now, msg) })
		}
		if err != nil {
			if !in.closed.Load() {
				fail(err)
			}
			return
		}
	}
}

// Close stops the reader and waits for it to exit.
func (in *midiInput) Close() error {
	if in.closed.Swap(true) {
		return nil
	}
	err := in.rw.Close()
	<-in.done
	return err
}

// OpenOutput opens the device for writing.
func (m *MidiDriver) OpenOutput(ctx context.Context, id dawio.DeviceID, portIndex int) (dawio.MidiSender, error) {
	p, err := m.find(id, false)
	if err != nil {
		return nil, err
	}
	rw, err := m.sdk.OpenMidi(p.Card, p.Device, false)
	if err != nil {
		return nil, err
	}
	return &midiOutput{w: rw}, nil
}

type midiOutput struct {
	mu sync.Mutex
	w  io.WriteCloser
}

func (o *midiOutput) Send(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.w.Write(data)
	return err
}

func (o *midiOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Close()
}
