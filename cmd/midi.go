package cmd

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/smazurov/dawio/internal/logging"
	"github.com/smazurov/dawio/internal/session"
	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
)

type midiEvent struct {
	port  int
	frame uint64
	raw   dawio.RawMidi
}

// midiMonitor copies incoming MIDI out of the process callback. Events
// that do not fit the queue are counted, never waited for.
type midiMonitor struct {
	events  chan midiEvent
	frames  uint64
	dropped atomic.Uint64
}

func newMidiMonitor(size int) *midiMonitor {
	return &midiMonitor{events: make(chan midiEvent, size)}
}

func (m *midiMonitor) Init(*dawio.StreamInfo)          {}
func (m *midiMonitor) StreamChanged(*dawio.StreamInfo) {}

func (m *midiMonitor) Process(p dawio.ProcessInfo) {
	for i, buf := range p.MidiInputs {
		for _, ev := range buf.Events() {
			select {
			case m.events <- midiEvent{port: i, frame: m.frames + uint64(ev.DeltaFrames), raw: ev}:
			default:
				m.dropped.Add(1)
			}
		}
	}
	m.frames += uint64(p.Frames)
}

// print writes one line per event until ctx is done.
func (m *midiMonitor) print(ctx context.Context, w io.Writer, names []string, sampleRate uint32) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			name := fmt.Sprintf("in %d", ev.port+1)
			if ev.port < len(names) {
				name = names[ev.port]
			}
			at := time.Duration(0)
			if sampleRate > 0 {
				at = time.Duration(ev.frame) * time.Second / time.Duration(sampleRate)
			}
			fmt.Fprintf(w, "%10.3fs  %-24s % X  %s\n", at.Seconds(), name, ev.raw.Bytes(), midi.Message(ev.raw.Bytes()).String())
		}
	}
}

func midiConfig(backend string, devices []string) (dawio.Config, error) {
	cfg := dawio.DefaultConfig()
	cfg.OutputChannels = dawio.Use([]int{})
	midiCfg := dawio.DefaultMidiConfig()
	midiCfg.Out = dawio.Use([]dawio.MidiPortConfig{})
	if backend != "" {
		b, err := dawio.ParseBackend(backend)
		if err != nil {
			return cfg, err
		}
		midiCfg.Backend = dawio.Use(b)
	}
	if len(devices) > 0 {
		ports := make([]dawio.MidiPortConfig, 0, len(devices))
		for _, d := range devices {
			ports = append(ports, dawio.MidiPortConfig{DeviceID: dawio.DeviceID{Name: d}, ControlScheme: dawio.Midi1})
		}
		midiCfg.In = dawio.Use(ports)
	}
	cfg.Midi = midiCfg
	return cfg, nil
}

func monitorMidi(ctx context.Context, w io.Writer, host session.Runner, backend string, devices []string) error {
	cfg, err := midiConfig(backend, devices)
	if err != nil {
		return err
	}
	opts := dawio.DefaultRunOptions()
	opts.ApplicationName = "dawio-midi"
	opts.Logger = logging.GetLogger("midi")
	opts.ErrorBehavior.MidiDeviceNotFound = dawio.MidiDeviceReturnWithError

	mon := newMidiMonitor(1024)
	h, err := host.Run(ctx, cfg, opts, mon)
	if err != nil {
		return err
	}
	defer h.Close()

	info := h.StreamInfo()
	var names []string
	if info.Midi == nil || len(info.Midi.InPorts) == 0 {
		return fmt.Errorf("no MIDI input opened on %s", info.Backend)
	}
	for _, p := range info.Midi.InPorts {
		names = append(names, p.ID.Name)
		fmt.Fprintf(w, "listening on %s (%s)\n", p.ID, info.Midi.Backend)
	}

	go func() {
		for msg := range h.Messages().Wait(ctx) {
			opts.Logger.Warn("Stream message", "kind", msg.Kind.String(), "device", msg.Device.String())
		}
	}()
	mon.print(ctx, w, names, info.SampleRate)
	if n := mon.dropped.Load(); n > 0 {
		fmt.Fprintf(w, "%d events dropped\n", n)
	}
	return nil
}

// CreateMidiCmd creates the midi monitor command.
func CreateMidiCmd(host session.Runner) *cobra.Command {
	var (
		backend  string
		devices  []string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "midi",
		Short: "Print incoming MIDI messages",
		Long: `Opens the default MIDI input, or every --device given, and prints each message with its ` +
			`time since start. Audio runs with no ports so the MIDI clock follows the audio backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := runContext(duration)
			defer cancel()
			return monitorMidi(ctx, cmd.OutOrStdout(), host, backend, devices)
		},
	}
	cmd.Flags().StringVarP(&backend, "backend", "b", "", "MIDI backend (default: the platform's preferred one)")
	cmd.Flags().StringSliceVar(&devices, "device", nil, "MIDI input device name, repeatable")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}
