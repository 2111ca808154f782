package alsa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/smazurov/dawio/pkg/dawio/sampleconv"
)

const retryInterval = time.Second

// side is one open PCM direction. Only the loop goroutine touches pcm after
// Start returns.
type side struct {
	id      dawio.DeviceID
	dir     Direction
	card    int
	device  int
	pcm     PCM
	params  HwParams
	raw     []byte
	samples []float32
}

func (sd *side) close() {
	if sd.pcm == nil {
		return
	}
	_ = sd.pcm.Drop()
	_ = sd.pcm.Close()
	sd.pcm = nil
}

type stream struct {
	sdk    SDK
	engine *dawio.Engine
	msgs   dawio.MsgProducer
	fatal  func(dawio.StreamError)
	logger *slog.Logger

	in, out   *side
	period    int
	periodDur time.Duration

	stopping    atomic.Bool
	lost        atomic.Bool
	nextRetry   time.Time
	retry       chan struct{}
	done        chan struct{}
	cancelWatch context.CancelFunc
	stopOnce    sync.Once
	stopErr     error

	mu sync.Mutex
}

// Start opens the planned PCMs, negotiates a sample format, and runs the
// duplex loop on a dedicated OS thread.
func (d *Driver) Start(ctx context.Context, req dawio.StartRequest) (dawio.PlatformStream, error) {
	plan := req.Plan
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &stream{
		sdk:    d.sdk,
		msgs:   req.Messages,
		fatal:  req.Fatal,
		logger: logger.With("backend", string(dawio.BackendAlsa)),
		retry:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	period := defaultPeriod
	switch {
	case plan.BufferSize.Kind == dawio.BufferFixed && plan.BufferSize.Frames > 0:
		period = int(plan.BufferSize.Frames)
	case plan.MaxBlockSize > 0:
		period = int(plan.MaxBlockSize)
	}

	var err error
	if len(plan.Inputs) > 0 && plan.InputDevice != nil {
		if s.in, err = s.open(*plan.InputDevice, Capture, plan.SampleRate, period); err != nil {
			return nil, err
		}
		period = s.in.params.PeriodSize
	}
	if len(plan.Outputs) > 0 && plan.OutputDevice != nil {
		if s.out, err = s.open(*plan.OutputDevice, Playback, plan.SampleRate, period); err != nil {
			s.closeAll()
			return nil, err
		}
		if s.in != nil && s.out.params.PeriodSize != period {
			s.logger.Warn("Capture and playback periods differ", "capture", period, "playback", s.out.params.PeriodSize)
		}
	}
	s.period = period
	s.periodDur = time.Duration(period) * time.Second / time.Duration(max(plan.SampleRate, 1))
	for _, sd := range s.sides() {
		sd.raw = make([]byte, period*sd.params.FrameBytes())
		sd.samples = make([]float32, period*sd.params.Channels)
	}

	info := plan.StreamInfo()
	info.BufferSize = dawio.Fixed(uint32(period))
	lat := uint32(period)
	info.EstimatedLatency = &lat
	engine, err := req.NewEngine(dawio.Layout{
		Info:        info,
		MaxFrames:   period,
		InChannels:  dawio.ChannelMap(plan.Inputs),
		OutChannels: dawio.ChannelMap(plan.Outputs),
	})
	if err != nil {
		s.closeAll()
		return nil, dawio.PlatformError(err)
	}
	s.engine = engine

	if err := s.restart(); err != nil {
		s.closeAll()
		return nil, dawio.PlatformError(fmt.Errorf("prepare: %w", err))
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.cancelWatch = cancel
	go s.watch(watchCtx)
	go s.run()

	s.logger.Info("ALSA stream started",
		"device", plan.Device, "sample_rate", plan.SampleRate, "period", period)
	return s, nil
}

func (s *stream) sides() []*side {
	var out []*side
	if s.in != nil {
		out = append(out, s.in)
	}
	if s.out != nil {
		out = append(out, s.out)
	}
	return out
}

func (s *stream) closeAll() {
	for _, sd := range s.sides() {
		sd.close()
	}
}

func (s *stream) open(dev dawio.AudioDeviceInfo, dir Direction, rate uint32, period int) (*side, error) {
	card, device, ok := parseHwID(dev.ID.Identifier)
	if !ok {
		return nil, &dawio.RunConfigError{Kind: dawio.KindAudioDeviceNotFound, Backend: dawio.BackendAlsa, Device: dev.ID}
	}
	channels := len(dev.InPorts)
	if dir == Playback {
		channels = len(dev.OutPorts)
	}
	pcm, err := s.sdk.OpenPCM(card, device, dir)
	if err != nil {
		return nil, dawio.PlatformError(fmt.Errorf("open %s %s: %w", hwID(card, device), dir, err))
	}
	params, err := negotiate(pcm, HwParams{Channels: channels, Rate: rate, PeriodSize: period, Periods: defaultPeriods})
	if err != nil {
		_ = pcm.Close()
		var rce *dawio.RunConfigError
		if errors.As(err, &rce) {
			return nil, rce
		}
		return nil, dawio.PlatformError(fmt.Errorf("configure %s %s: %w", hwID(card, device), dir, err))
	}
	s.logger.Debug("PCM configured", "device", hwID(card, device), "direction", dir.String(),
		"format", params.Format.String(), "channels", params.Channels, "period", params.PeriodSize, "periods", params.Periods)
	return &side{id: dev.ID, dir: dir, card: card, device: device, pcm: pcm, params: params}, nil
}

// negotiate tries the sample formats in preference order.
func negotiate(pcm PCM, want HwParams) (HwParams, error) {
	var errs []error
	for _, f := range sampleconv.Preferred {
		want.Format = f
		got, err := pcm.Configure(want)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
			continue
		}
		if got.Rate != want.Rate {
			return HwParams{}, &dawio.RunConfigError{Kind: dawio.KindCouldNotUseSampleRate, Backend: dawio.BackendAlsa, SampleRate: want.Rate}
		}
		return got, nil
	}
	return HwParams{}, errors.Join(errs...)
}

// restart prepares both directions and fills the playback buffer with
// silence, which starts playback.
func (s *stream) restart() error {
	for _, sd := range s.sides() {
		if err := sd.pcm.Prepare(); err != nil {
			return err
		}
	}
	if s.out == nil {
		return nil
	}
	clear(s.out.raw)
	for range max(s.out.params.Periods, 1) {
		if _, err := s.out.pcm.WriteInterleaved(s.out.raw, s.period); err != nil {
			return err
		}
	}
	return nil
}

// --- audio thread ---

func (s *stream) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)
	defer s.closeAll()

	ticker := time.NewTicker(s.periodDur)
	defer ticker.Stop()

	for !s.stopping.Load() {
		if s.lost.Load() || (s.in == nil && s.out == nil) {
			s.engine.ProcessInterleaved(nil, 0, nil, 0, s.period)
			select {
			case <-ticker.C:
			case <-s.retry:
				s.reopen()
			}
			if s.lost.Load() && time.Now().After(s.nextRetry) {
				s.reopen()
			}
			continue
		}
		if err := s.cycle(); err != nil && !s.handleError(err) {
			return
		}
	}
}

func (s *stream) cycle() error {
	var in []float32
	inCh := 0
	if s.in != nil {
		n, err := s.in.pcm.ReadInterleaved(s.in.raw, s.period)
		if err != nil {
			return err
		}
		got := sampleconv.ToFloat32(s.in.params.Format, s.in.raw[:n*s.in.params.FrameBytes()], s.in.samples)
		clear(s.in.samples[got:])
		in, inCh = s.in.samples, s.in.params.Channels
	}

	var out []float32
	outCh := 0
	if s.out != nil {
		out, outCh = s.out.samples, s.out.params.Channels
	}
	s.engine.ProcessInterleaved(in, inCh, out, outCh, s.period)

	if s.out != nil {
		sampleconv.FromFloat32(s.out.params.Format, s.out.samples, s.out.raw)
		if _, err := s.out.pcm.WriteInterleaved(s.out.raw, s.period); err != nil {
			return err
		}
	}
	return nil
}

// handleError handles a transfer error and reports whether the loop goes on.
func (s *stream) handleError(err error) bool {
	switch {
	case errors.Is(err, ErrXrun):
		s.engine.CountXrun()
		err = s.restart()
		if err == nil {
			return true
		}
		if errors.Is(err, ErrDisconnected) {
			s.disconnect()
			return true
		}
	case errors.Is(err, ErrDisconnected):
		s.disconnect()
		return true
	}
	s.logger.Error("ALSA stream failed", "error", err)
	s.fatal(dawio.StreamError{Kind: dawio.StreamPlatformSpecific, Err: err})
	return false
}

func (s *stream) disconnect() {
	s.closeAll()
	s.lost.Store(true)
	s.nextRetry = time.Now().Add(retryInterval)
	for _, id := range s.deviceIDs() {
		s.msgs.TryPush(dawio.AudioDeviceDisconnected(id))
		s.logger.Warn("Audio device disconnected", "device", id.String())
	}
}

func (s *stream) deviceIDs() []dawio.DeviceID {
	var ids []dawio.DeviceID
	for _, sd := range s.sides() {
		if !slices.Contains(ids, sd.id) {
			ids = append(ids, sd.id)
		}
	}
	return ids
}

// reopen brings a lost device back with the parameters it had.
func (s *stream) reopen() {
	if !s.lost.Load() {
		return
	}
	s.nextRetry = time.Now().Add(retryInterval)
	for _, sd := range s.sides() {
		if err := s.reopenSide(sd); err != nil {
			s.logger.Debug("Device not back yet", "device", sd.id.String(), "error", err)
			s.closeAll()
			return
		}
	}
	if err := s.restart(); err != nil {
		s.logger.Debug("Could not restart reopened device", "error", err)
		s.closeAll()
		return
	}
	s.lost.Store(false)
	for _, id := range s.deviceIDs() {
		s.msgs.TryPush(dawio.AudioDeviceReconnected(id))
		s.logger.Info("Audio device reconnected", "device", id.String())
	}
}

func (s *stream) reopenSide(sd *side) error {
	if sd.pcm != nil {
		return nil
	}
	// The card number can change when a device is plugged back in.
	if pcms, err := s.sdk.Devices(); err == nil {
		for _, p := range pcms {
			if deviceID(p).Name == sd.id.Name {
				sd.card, sd.device = p.Card, p.Device
				break
			}
		}
	}
	pcm, err := s.sdk.OpenPCM(sd.card, sd.device, sd.dir)
	if err != nil {
		return err
	}
	got, err := pcm.Configure(sd.params)
	if err != nil {
		_ = pcm.Close()
		return err
	}
	if got != sd.params {
		_ = pcm.Close()
		return fmt.Errorf("device came back with %+v, stream uses %+v", got, sd.params)
	}
	sd.pcm = pcm
	return nil
}

func (s *stream) watch(ctx context.Context) {
	err := s.sdk.WatchCards(ctx, func(card int, added bool) {
		if !added || !s.lost.Load() {
			return
		}
		select {
		case s.retry <- struct{}{}:
		default:
		}
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Debug("Hotplug monitoring unavailable, polling instead", "error", err)
	}
}

// --- control plane ---

func (s *stream) Engine() *dawio.Engine { return s.engine }

func (s *stream) Capabilities() dawio.Capabilities {
	return dawio.Capabilities{AudioPorts: true}
}

func (s *stream) ChangeAudioPorts(in, out *[]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.engine.Layout()
	if in != nil {
		ports, err := remap(*in, s.in, "capture")
		if err != nil {
			return err
		}
		l.Info.InPorts = dawio.PortInfos("in", ports)
		l.InChannels = slices.Clone(*in)
	}
	if out != nil {
		ports, err := remap(*out, s.out, "playback")
		if err != nil {
			return err
		}
		l.Info.OutPorts = dawio.PortInfos("out", ports)
		l.OutChannels = slices.Clone(*out)
	}
	gen, err := s.engine.Reconfigure(l)
	if err != nil {
		return dawio.NewChangeAudioPortsError(dawio.ChangePlatformSpecific, "", err)
	}
	s.logger.Info("Ports reconfigured", "generation", gen)
	return nil
}

func remap(indices []int, sd *side, prefix string) ([]dawio.PlannedPort, error) {
	if len(indices) == 0 {
		return []dawio.PlannedPort{}, nil
	}
	if sd == nil {
		return nil, dawio.NewChangeAudioPortsError(dawio.NotSupportedByBackend, prefix+" direction is not open", nil)
	}
	ports := make([]dawio.PlannedPort, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= sd.params.Channels {
			return nil, dawio.NewChangeAudioPortsError(dawio.InvalidPort, fmt.Sprintf("port index %d out of range", idx), nil)
		}
		ports[i] = dawio.PlannedPort{DeviceIndex: idx, SystemName: fmt.Sprintf("%s_%d", prefix, idx+1), Found: true}
	}
	return ports, nil
}

func (s *stream) ChangeJackPorts(in, out *[]string) error {
	return dawio.NewChangeAudioPortsError(dawio.NotSupportedByBackend, "alsa has no jack ports", nil)
}

func (s *stream) ChangeBlockSize(uint32) error {
	return dawio.NewChangeBlockSizeError(dawio.NotSupportedByBackend, "alsa period size is fixed while running", nil)
}

func (s *stream) ChangeMidiPorts(in, out *[]dawio.MidiPortConfig) error {
	return dawio.NewChangeMidiPortsError(dawio.NotSupportedByBackend, "", nil)
}

// Stop ends the loop, which closes the PCMs on its way out. A blocked
// transfer returns within one period.
func (s *stream) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		s.cancelWatch()
		select {
		case <-s.done:
		case <-ctx.Done():
			s.stopErr = ctx.Err()
		}
	})
	return s.stopErr
}
