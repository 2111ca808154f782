package coreaudio

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
)

const reconnectInterval = time.Second

type stream struct {
	sdk    SDK
	cfg    SessionConfig
	engine *dawio.Engine
	msgs   dawio.MsgProducer
	logger *slog.Logger
	limit  uint32

	inNames, outNames []string
	devices           []dawio.DeviceID

	mu       sync.Mutex
	session  Session
	stopping atomic.Bool
	lost     atomic.Bool
	wake     chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Start opens a render callback session for the planned devices. The
// callback converts nothing: CoreAudio hands out f32 already.
func (d *Driver) Start(ctx context.Context, req dawio.StartRequest) (dawio.PlatformStream, error) {
	plan := req.Plan
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &stream{
		sdk:    d.sdk,
		msgs:   req.Messages,
		logger: logger.With("backend", string(dawio.BackendCoreAudio)),
		limit:  req.Options.MaxBufferSize,
		wake:   make(chan struct{}, 1),
	}
	if len(plan.Inputs) > 0 && plan.InputDevice != nil {
		s.cfg.InputID = plan.InputDevice.ID.Identifier
		s.cfg.InChannels = len(plan.InputDevice.InPorts)
		s.inNames = plan.InputDevice.InPorts
		s.devices = append(s.devices, plan.InputDevice.ID)
	}
	if len(plan.Outputs) > 0 && plan.OutputDevice != nil {
		s.cfg.OutputID = plan.OutputDevice.ID.Identifier
		s.cfg.OutChannels = len(plan.OutputDevice.OutPorts)
		s.outNames = plan.OutputDevice.OutPorts
		if !slices.Contains(s.devices, plan.OutputDevice.ID) {
			s.devices = append(s.devices, plan.OutputDevice.ID)
		}
	}
	if s.cfg.InputID == "" && s.cfg.OutputID == "" {
		return nil, &dawio.RunConfigError{Kind: dawio.KindAudioDeviceNotFound, Backend: dawio.BackendCoreAudio}
	}
	maxFrames := plan.MaxBlockSize
	if maxFrames == 0 {
		maxFrames = s.limit
	}
	s.cfg.SampleRate = plan.SampleRate
	s.cfg.Frames = maxFrames

	info := plan.StreamInfo()
	info.BufferSize = dawio.UnfixedWithMaxSize(maxFrames)
	engine, err := req.NewEngine(dawio.Layout{
		Info:        info,
		MaxFrames:   int(maxFrames),
		InChannels:  dawio.ChannelMap(plan.Inputs),
		OutChannels: dawio.ChannelMap(plan.Outputs),
	})
	if err != nil {
		return nil, dawio.PlatformError(err)
	}
	s.engine = engine

	session, err := s.open()
	if err != nil {
		return nil, dawio.PlatformError(err)
	}
	s.session = session

	watchCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.reconnectLoop(watchCtx)

	s.logger.Info("CoreAudio stream started", "device", plan.Device,
		"sample_rate", plan.SampleRate, "max_block", maxFrames)
	return s, nil
}

func (s *stream) open() (Session, error) {
	session, err := s.sdk.Open(s.cfg, s.render, s.onLost)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if err := session.Start(); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}
	return session, nil
}

// render runs on the CoreAudio IO thread.
func (s *stream) render(in, out []float32, frames int) {
	s.engine.ProcessInterleaved(in, s.cfg.InChannels, out, s.cfg.OutChannels, frames)
}

func (s *stream) onLost(err error) {
	if s.stopping.Load() || !s.lost.CompareAndSwap(false, true) {
		return
	}
	for _, id := range s.devices {
		s.msgs.TryPush(dawio.AudioDeviceDisconnected(id))
	}
	s.logger.Warn("Audio device stopped", "error", err)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// reconnectLoop reopens the session once every device of the stream is
// listed again.
func (s *stream) reconnectLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
		if !s.lost.Load() || !s.present() {
			continue
		}
		s.mu.Lock()
		if s.session != nil {
			_ = s.session.Close()
			s.session = nil
		}
		session, err := s.open()
		if err != nil {
			s.mu.Unlock()
			s.logger.Debug("Device not usable yet", "error", err)
			continue
		}
		s.session = session
		s.mu.Unlock()
		s.lost.Store(false)
		for _, id := range s.devices {
			s.msgs.TryPush(dawio.AudioDeviceReconnected(id))
			s.logger.Info("Audio device reconnected", "device", id.String())
		}
	}
}

func (s *stream) present() bool {
	devs, err := s.sdk.Devices()
	if err != nil {
		return false
	}
	for _, want := range s.devices {
		if !slices.ContainsFunc(devs, func(d Device) bool { return d.ID == want.Identifier }) {
			return false
		}
	}
	return true
}

func (s *stream) Engine() *dawio.Engine { return s.engine }

func (s *stream) Capabilities() dawio.Capabilities {
	return dawio.Capabilities{AudioPorts: true, BlockSize: true}
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
	return dawio.NewChangeAudioPortsError(dawio.NotSupportedByBackend, "coreaudio has no jack ports", nil)
}

// ChangeBlockSize changes the largest chunk handed to the handler; the
// device keeps its IO buffer size.
func (s *stream) ChangeBlockSize(n uint32) error {
	gen, err := dawio.ChangeMaxChunk(s.engine, n, s.limit)
	if err != nil {
		return err
	}
	s.logger.Info("Max block size changed", "frames", n, "generation", gen)
	return nil
}

func (s *stream) ChangeMidiPorts(in, out *[]dawio.MidiPortConfig) error {
	return dawio.NewChangeMidiPortsError(dawio.NotSupportedByBackend, "", nil)
}

// Stop closes the session. CoreAudio returns from stop only after the last
// callback finished.
func (s *stream) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		s.cancel()
		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			s.mu.Lock()
			if s.session != nil {
				_ = s.session.Stop()
				_ = s.session.Close()
				s.session = nil
			}
			s.mu.Unlock()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}
