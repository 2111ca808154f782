package asio

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/smazurov/dawio/pkg/dawio"
)

type stream struct {
	st       Stream
	engine   *dawio.Engine
	logger   *slog.Logger
	inCh     int
	outCh    int
	inNames  []string
	outNames []string
	stopOnce sync.Once
}

// Start opens one duplex stream on the planned driver. ASIO drivers own both
// directions, so linked devices must be the same driver.
func (d *Driver) Start(ctx context.Context, req dawio.StartRequest) (dawio.PlatformStream, error) {
	plan := req.Plan
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := d.init(); err != nil {
		return nil, &dawio.RunConfigError{Kind: dawio.KindAudioBackendNotInstalled, Backend: dawio.BackendAsio, Err: err}
	}

	dev := plan.OutputDevice
	if dev == nil || len(plan.Outputs) == 0 {
		dev = plan.InputDevice
	}
	if dev == nil {
		return nil, &dawio.RunConfigError{Kind: dawio.KindAudioDeviceNotFound, Backend: dawio.BackendAsio}
	}
	if plan.InputDevice != nil && plan.OutputDevice != nil && len(plan.Inputs) > 0 && len(plan.Outputs) > 0 &&
		!plan.InputDevice.ID.Matches(plan.OutputDevice.ID) {
		return nil, dawio.PlatformError(fmt.Errorf("asio cannot link %s with %s", plan.InputDevice.ID, plan.OutputDevice.ID))
	}
	index, err := strconv.Atoi(dev.ID.Identifier)
	if err != nil {
		return nil, dawio.PlatformError(fmt.Errorf("bad asio device id %q: %w", dev.ID.Identifier, err))
	}

	s := &stream{
		logger: logger.With("backend", string(dawio.BackendAsio)),
	}
	if len(plan.Inputs) > 0 {
		s.inCh, s.inNames = len(dev.InPorts), dev.InPorts
	}
	if len(plan.Outputs) > 0 {
		s.outCh, s.outNames = len(dev.OutPorts), dev.OutPorts
	}

	frames := plan.MaxBlockSize
	if plan.BufferSize.Kind == dawio.BufferFixed && plan.BufferSize.Frames > 0 {
		frames = plan.BufferSize.Frames
	} else if dev.FixedBufferSize != nil {
		frames = dev.FixedBufferSize.Default
	}
	if frames == 0 {
		frames = req.Options.MaxBufferSize
	}

	info := plan.StreamInfo()
	info.BufferSize = dawio.Fixed(frames)
	latency := frames
	info.EstimatedLatency = &latency
	engine, err := req.NewEngine(dawio.Layout{
		Info:        info,
		MaxFrames:   int(frames),
		InChannels:  dawio.ChannelMap(plan.Inputs),
		OutChannels: dawio.ChannelMap(plan.Outputs),
	})
	if err != nil {
		return nil, dawio.PlatformError(err)
	}
	s.engine = engine

	st, err := d.sdk.Open(StreamConfig{
		Device:      index,
		InChannels:  s.inCh,
		OutChannels: s.outCh,
		SampleRate:  plan.SampleRate,
		Frames:      frames,
	}, s.process)
	if err != nil {
		return nil, dawio.PlatformError(fmt.Errorf("open asio stream: %w", err))
	}
	if err := st.Start(); err != nil {
		_ = st.Close()
		return nil, dawio.PlatformError(fmt.Errorf("start asio stream: %w", err))
	}
	s.st = st

	s.logger.Info("ASIO stream started", "device", plan.Device,
		"sample_rate", plan.SampleRate, "frames", frames)
	return s, nil
}

// process runs on the ASIO driver thread.
func (s *stream) process(in, out []float32) {
	var frames int
	switch {
	case s.outCh > 0:
		frames = len(out) / s.outCh
	case s.inCh > 0:
		frames = len(in) / s.inCh
	}
	if s.inCh == 0 {
		in = nil
	}
	s.engine.ProcessInterleaved(in, s.inCh, out, s.outCh, frames)
}

func (s *stream) Engine() *dawio.Engine { return s.engine }

func (s *stream) Capabilities() dawio.Capabilities {
	return dawio.Capabilities{AudioPorts: true}
}

func (s *stream) ChangeAudioPorts(in, out *[]int) error {
	gen, err := dawio.ChangeInterleavedPorts(s.engine, in, out, s.inNames, s.outNames)
	if err != nil {
		return err
	}
	s.logger.Info("Ports reconfigured", "generation", gen)
	return nil
}

func (s *stream) ChangeJackPorts(in, out *[]string) error {
	return dawio.NewChangeAudioPortsError(dawio.NotSupportedByBackend, "asio has no jack ports", nil)
}

// ChangeBlockSize is refused: the buffer size belongs to the driver's
// control panel.
func (s *stream) ChangeBlockSize(n uint32) error {
	return dawio.NewChangeBlockSizeError(dawio.NotSupportedByBackend, "asio buffer size is set by the driver", nil)
}

func (s *stream) ChangeMidiPorts(in, out *[]dawio.MidiPortConfig) error {
	return dawio.NewChangeMidiPortsError(dawio.NotSupportedByBackend, "", nil)
}

// Stop stops the driver and releases it. Stop returns once the last
// callback has finished.
func (s *stream) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			stopErr := s.st.Stop()
			if closeErr := s.st.Close(); stopErr == nil {
				stopErr = closeErr
			}
			done <- stopErr
		}()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}
