package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/internal/logging"
	"github.com/smazurov/dawio/internal/session"
	"github.com/smazurov/dawio/internal/tone"
	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/spf13/cobra"
)

type runFlags struct {
	profile     string
	tone        float64
	gain        float32
	followMidi  bool
	passthrough bool
	midiThru    bool
	duration    time.Duration
}

// handler builds the process chain the flags ask for.
func (f runFlags) handler() dawio.ProcessHandler {
	var chain tone.Chain
	if f.passthrough {
		chain = append(chain, tone.Passthrough{Gain: 1})
	}
	if f.tone > 0 {
		s := tone.NewSine(f.tone, f.gain)
		s.FollowMidi = f.followMidi
		chain = append(chain, s)
	}
	if f.midiThru {
		chain = append(chain, tone.MidiThru{})
	}
	return chain
}

func printInfo(w io.Writer, info dawio.StreamInfo) {
	fmt.Fprintf(w, "backend:     %s %s\n", info.Backend, info.BackendVersion)
	fmt.Fprintf(w, "sample rate: %d Hz\n", info.SampleRate)
	fmt.Fprintf(w, "block size:  %s\n", info.BufferSize)
	if info.EstimatedLatency != nil {
		fmt.Fprintf(w, "latency:     %d frames\n", *info.EstimatedLatency)
	}
	for _, p := range info.InPorts {
		fmt.Fprintf(w, "in  %-8s <- %s%s\n", p.Name, p.ConnectedToName, unbound(p))
	}
	for _, p := range info.OutPorts {
		fmt.Fprintf(w, "out %-8s -> %s%s\n", p.Name, p.ConnectedToName, unbound(p))
	}
	if info.Midi != nil {
		for _, p := range info.Midi.InPorts {
			fmt.Fprintf(w, "midi in  %s <- %s\n", p.Name, p.ID)
		}
		for _, p := range info.Midi.OutPorts {
			fmt.Fprintf(w, "midi out %s -> %s\n", p.Name, p.ID)
		}
	}
}

func unbound(p dawio.AudioPortStreamInfo) string {
	if p.ConnectedToSystem {
		return ""
	}
	return " (silent)"
}

func runStream(ctx context.Context, w io.Writer, host session.Runner, f runFlags) error {
	p, err := loadProfile(f.profile)
	if err != nil {
		return err
	}
	logger := logging.GetLogger("run")
	bus := events.New()
	defer events.Subscribe(bus, func(e events.StreamMsgEvent) {
		logger.Warn("Stream message", "kind", e.Msg.Kind.String(), "name", e.Msg.Name, "device", e.Msg.Device.String())
	})()
	defer events.Subscribe(bus, func(e events.ProfileReloadedEvent) {
		logger.Info("Profile reloaded", "applied", e.Applied, "restart", e.Restart, "error", e.Error)
	})()

	stopped := make(chan struct{}, 1)
	defer events.Subscribe(bus, func(e events.StreamStateEvent) {
		if e.State == dawio.StateStopped.String() {
			select {
			case stopped <- struct{}{}:
			default:
			}
		}
	})()

	s := session.New(session.Options{
		ID:          "run",
		Host:        host,
		Handler:     f.handler(),
		Bus:         bus,
		Profile:     p,
		BaseOptions: dawio.DefaultRunOptions(),
		ProfilePath: f.profile,
	})
	if err := s.Start(ctx); err != nil {
		return err
	}
	if st := s.Status(); st.Info != nil {
		printInfo(w, *st.Info)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-stopped:
		runErr = errors.New("stream stopped")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	st := s.Status().Stats
	fmt.Fprintf(w, "cycles %d, frames %d, xruns %d, dropped messages %d\n", st.Cycles, st.Frames, st.Xruns, st.DroppedMessages)
	return runErr
}

// CreateRunCmd creates the run command.
func CreateRunCmd(host session.Runner) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a stream from a profile",
		Long: `Opens the stream described by --profile (everything automatic when omitted) and feeds it ` +
			`a test tone, the inputs, or both until interrupted or --duration elapses. Profile edits are applied live.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := runContext(f.duration)
			defer cancel()
			return runStream(ctx, cmd.OutOrStdout(), host, f)
		},
	}
	cmd.Flags().StringVarP(&f.profile, "profile", "p", "", "Stream profile (TOML)")
	cmd.Flags().Float64Var(&f.tone, "tone", 0, "Play a sine at this frequency in Hz")
	cmd.Flags().Float32Var(&f.gain, "gain", 0.1, "Tone amplitude")
	cmd.Flags().BoolVar(&f.followMidi, "follow-midi", false, "Retune and gate the tone from the first MIDI input")
	cmd.Flags().BoolVar(&f.passthrough, "passthrough", false, "Copy inputs to outputs")
	cmd.Flags().BoolVar(&f.midiThru, "midi-thru", false, "Copy MIDI inputs to the first MIDI output")
	cmd.Flags().DurationVarP(&f.duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}
