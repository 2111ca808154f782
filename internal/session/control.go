package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/dawio/internal/config"
	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/pkg/dawio"
)

// Change names, as used by StreamChangedEvent, the API and NATS subjects.
const (
	ChangePorts     = "ports"
	ChangeJackPorts = "jack-ports"
	ChangeBlockSize = "block-size"
	ChangeMidi      = "midi"
)

func (s *Session) change(kind string, apply func(h *dawio.StreamHandle) error) error {
	h := s.Handle()
	if h == nil {
		return ErrNotRunning
	}
	if err := apply(h); err != nil {
		s.logger.Warn("Stream change refused", "change", kind, "error", err)
		return err
	}
	info := h.StreamInfo()
	s.opts.Bus.Publish(events.StreamChangedEvent{
		StreamID:  s.opts.ID,
		Change:    kind,
		Info:      info,
		Timestamp: time.Now(),
	})
	s.logger.Info("Stream changed", "change", kind, "buffer", info.BufferSize.String(),
		"inputs", len(info.InPorts), "outputs", len(info.OutPorts))
	return nil
}

// ChangePorts selects device channels. A nil side is left as is.
func (s *Session) ChangePorts(in, out *[]int) error {
	return s.change(ChangePorts, func(h *dawio.StreamHandle) error {
		return h.ChangeAudioPortConfig(in, out)
	})
}

// ChangeJackPorts selects Jack system ports by name.
func (s *Session) ChangeJackPorts(in, out *[]string) error {
	return s.change(ChangeJackPorts, func(h *dawio.StreamHandle) error {
		return h.ChangeJackAudioPortConfig(in, out)
	})
}

// ChangeBlockSize sets the largest block handed to the handler.
func (s *Session) ChangeBlockSize(frames uint32) error {
	return s.change(ChangeBlockSize, func(h *dawio.StreamHandle) error {
		return h.ChangeBlockSizeConfig(frames)
	})
}

// ChangeMidi selects MIDI devices.
func (s *Session) ChangeMidi(in, out *[]dawio.MidiPortConfig) error {
	return s.change(ChangeMidi, func(h *dawio.StreamHandle) error {
		return h.ChangeMidiDeviceConfig(in, out)
	})
}

// ApplyProfile applies the live-changeable differences between the running
// profile and p, and reports keys that need a restart. The result is also
// published on the bus.
func (s *Session) ApplyProfile(p config.Profile) events.ProfileReloadedEvent {
	s.mu.Lock()
	old := s.profile
	s.mu.Unlock()

	diff := config.Diff(old, p)
	ev := events.ProfileReloadedEvent{Restart: diff.Restart}
	var errs []string
	apply := func(name string, err error) {
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			return
		}
		ev.Applied = append(ev.Applied, name)
	}

	if diff.Inputs != nil || diff.Outputs != nil {
		apply(ChangePorts, s.ChangePorts(diff.Inputs, diff.Outputs))
	}
	if diff.JackIn != nil || diff.JackOut != nil {
		apply(ChangeJackPorts, s.ChangeJackPorts(diff.JackIn, diff.JackOut))
	}
	if diff.BlockSize != 0 {
		apply(ChangeBlockSize, s.ChangeBlockSize(diff.BlockSize))
	}
	if diff.MidiIn != nil || diff.MidiOut != nil {
		apply(ChangeMidi, s.ChangeMidi(diff.MidiIn, diff.MidiOut))
	}

	// The stored profile becomes the new one even when some changes failed,
	// so that a Restart picks up everything that was asked for.
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()

	if len(errs) > 0 {
		ev.Error = strings.Join(errs, "; ")
	}
	if len(diff.Restart) > 0 {
		s.logger.Warn("Profile changes need a restart", "keys", diff.Restart)
	}
	s.logger.Info("Profile reloaded", "applied", ev.Applied, "restart", len(diff.Restart))
	s.publishReload(ev)
	return ev
}

// Profile returns the profile the session currently holds.
func (s *Session) Profile() config.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Validate resolves a profile against the host without starting anything.
func Validate(ctx context.Context, host interface {
	Inventory(context.Context) (dawio.Inventory, error)
}, p config.Profile, base dawio.RunOptions) (dawio.Plan, error) {
	cfg, err := p.ToConfig()
	if err != nil {
		return dawio.Plan{}, err
	}
	opts, err := p.ToRunOptions(base)
	if err != nil {
		return dawio.Plan{}, err
	}
	inv, err := host.Inventory(ctx)
	if err != nil {
		return dawio.Plan{}, err
	}
	return dawio.Resolve(cfg, opts, inv)
}
