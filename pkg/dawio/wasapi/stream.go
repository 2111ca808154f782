package wasapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/smazurov/dawio/pkg/dawio/sampleconv"
)

const (
	setupTimeout = 10 * time.Second
	waitTimeout  = 200 * time.Millisecond
	pollInterval = 500 * time.Millisecond
)

type endpoint struct {
	id     dawio.DeviceID
	flow   DataFlow
	format WaveFormat
	names  []string
}

type stream struct {
	sdk    SDK
	cfg    ClientConfig
	engine *dawio.Engine
	msgs   dawio.MsgProducer
	fatal  func(dawio.StreamError)
	logger *slog.Logger
	limit  uint32

	capture, render *endpoint
	idle            time.Duration

	// client and the scratch buffers belong to the loop goroutine.
	client Client
	inBuf  []float32
	outBuf []float32

	stopping    atomic.Bool
	lost        atomic.Bool
	reopen      chan struct{}
	done        chan struct{}
	cancelWatch context.CancelFunc
	stopOnce    sync.Once
	stopErr     error
}

// Start negotiates formats, opens the audio client on a dedicated OS thread
// and waits for it to run.
func (d *Driver) Start(ctx context.Context, req dawio.StartRequest) (dawio.PlatformStream, error) {
	if err := d.init(); err != nil {
		return nil, &dawio.RunConfigError{Kind: dawio.KindAudioBackendNotInstalled, Backend: dawio.BackendWasapi, Err: err}
	}
	plan := req.Plan
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &stream{
		sdk:    d.sdk,
		msgs:   req.Messages,
		fatal:  req.Fatal,
		logger: logger.With("backend", string(dawio.BackendWasapi)),
		limit:  req.Options.MaxBufferSize,
		reopen: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	mode := Shared
	if plan.Exclusive {
		mode = Exclusive
	}
	s.cfg.Mode = mode

	var err error
	if len(plan.Inputs) > 0 && plan.InputDevice != nil {
		if s.capture, err = d.endpoint(*plan.InputDevice, Capture, mode, plan.SampleRate); err != nil {
			return nil, err
		}
		s.cfg.CaptureID, s.cfg.Capture = s.capture.id.Identifier, s.capture.format
	}
	if len(plan.Outputs) > 0 && plan.OutputDevice != nil {
		if s.render, err = d.endpoint(*plan.OutputDevice, Render, mode, plan.SampleRate); err != nil {
			return nil, err
		}
		s.cfg.RenderID, s.cfg.Render = s.render.id.Identifier, s.render.format
	}

	maxFrames := plan.MaxBlockSize
	if maxFrames == 0 {
		maxFrames = s.limit
	}
	s.cfg.PeriodFrames = maxFrames
	s.idle = time.Duration(maxFrames) * time.Second / time.Duration(max(plan.SampleRate, 1))

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

	setup := make(chan error, 1)
	go s.run(setup)
	select {
	case err := <-setup:
		if err != nil {
			<-s.done
			return nil, err
		}
	case <-time.After(setupTimeout):
		s.stopping.Store(true)
		return nil, dawio.PlatformError(errors.New("timed out waiting for the audio thread to start"))
	case <-ctx.Done():
		s.stopping.Store(true)
		return nil, dawio.PlatformError(ctx.Err())
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.cancelWatch = cancel
	go s.watch(watchCtx)

	s.logger.Info("WASAPI stream started", "device", plan.Device,
		"sample_rate", plan.SampleRate, "exclusive", plan.Exclusive, "max_block", maxFrames)
	return s, nil
}

func (d *Driver) endpoint(dev dawio.AudioDeviceInfo, flow DataFlow, mode ShareMode, rate uint32) (*endpoint, error) {
	names := dev.OutPorts
	if flow == Capture {
		names = dev.InPorts
	}
	if mode == Shared {
		mix, err := d.sdk.MixFormat(dev.ID.Identifier, flow)
		if err != nil {
			return nil, dawio.PlatformError(fmt.Errorf("%s mix format: %w", flow, err))
		}
		if mix.Rate != rate {
			return nil, &dawio.RunConfigError{Kind: dawio.KindCouldNotUseSampleRate, Backend: dawio.BackendWasapi, SampleRate: rate}
		}
	}
	wf, ok := d.pickFormat(dev.ID.Identifier, flow, mode, len(names), rate)
	if !ok {
		switch {
		case mode == Shared:
			return nil, dawio.PlatformError(fmt.Errorf("%s endpoint %q accepts no supported sample format", flow, dev.ID.Name))
		case dev.Exclusive != nil && !dev.SupportsSampleRate(rate, true):
			return nil, &dawio.RunConfigError{Kind: dawio.KindCouldNotUseSampleRate, Backend: dawio.BackendWasapi, SampleRate: rate}
		default:
			return nil, &dawio.RunConfigError{Kind: dawio.KindCouldNotUseExclusive, Backend: dawio.BackendWasapi, Device: dev.ID}
		}
	}
	return &endpoint{id: dev.ID, flow: flow, format: wf, names: names}, nil
}

func (s *stream) endpoints() []*endpoint {
	var out []*endpoint
	if s.capture != nil {
		out = append(out, s.capture)
	}
	if s.render != nil && (s.capture == nil || s.render.id != s.capture.id) {
		out = append(out, s.render)
	}
	return out
}

// --- audio thread ---

func (s *stream) openClient() error {
	if s.capture == nil && s.render == nil {
		return nil
	}
	client, err := s.sdk.Open(s.cfg)
	if err != nil {
		return dawio.PlatformError(fmt.Errorf("open audio client: %w", err))
	}
	if err := client.Start(); err != nil {
		_ = client.Close()
		return dawio.PlatformError(fmt.Errorf("start audio client: %w", err))
	}
	frames := int(client.BufferFrames())
	if s.capture != nil && len(s.inBuf) < frames*s.capture.format.Channels {
		s.inBuf = make([]float32, frames*s.capture.format.Channels)
	}
	if s.render != nil && len(s.outBuf) < frames*s.render.format.Channels {
		s.outBuf = make([]float32, frames*s.render.format.Channels)
	}
	s.client = client
	return nil
}

func (s *stream) closeClient() {
	if s.client == nil {
		return
	}
	_ = s.client.Stop()
	_ = s.client.Close()
	s.client = nil
}

func (s *stream) run(setup chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)

	if err := s.openClient(); err != nil {
		setup <- err
		return
	}
	setup <- nil
	defer s.closeClient()

	ticker := time.NewTicker(max(s.idle, time.Millisecond))
	defer ticker.Stop()

	for !s.stopping.Load() {
		if s.lost.Load() && s.client != nil {
			s.closeClient()
		}
		if s.client == nil {
			s.idleCycle(ticker.C)
			continue
		}
		ex, err := s.client.Wait(waitTimeout)
		if err == nil {
			s.exchange(ex)
			err = s.client.Release()
		}
		switch {
		case err == nil, errors.Is(err, ErrTimeout):
		case errors.Is(err, ErrDeviceInvalidated):
			s.markLost()
			s.closeClient()
		default:
			s.logger.Error("WASAPI stream failed", "error", err)
			s.fatal(dawio.StreamError{Kind: dawio.StreamPlatformSpecific, Err: err})
			return
		}
	}
}

// idleCycle keeps the handler running on silence while no client is open.
func (s *stream) idleCycle(tick <-chan time.Time) {
	s.engine.ProcessInterleaved(nil, 0, nil, 0, s.engine.MaxFrames())
	select {
	case <-tick:
	case <-s.reopen:
		if !s.lost.Load() {
			return
		}
		if err := s.openClient(); err != nil {
			s.logger.Debug("Endpoint not usable yet", "error", err)
			return
		}
		s.lost.Store(false)
		for _, ep := range s.endpoints() {
			s.msgs.TryPush(dawio.AudioDeviceReconnected(ep.id))
			s.logger.Info("Audio device reconnected", "device", ep.id.String())
		}
	}
}

func (s *stream) exchange(ex Exchange) {
	var in, out []float32
	var inCh, outCh int
	n := ex.Frames
	if s.capture != nil {
		inCh = s.capture.format.Channels
		n = min(n, len(s.inBuf)/inCh)
	}
	if s.render != nil {
		outCh = s.render.format.Channels
		n = min(n, len(s.outBuf)/outCh)
	}
	if s.capture != nil && ex.In != nil {
		in = s.inBuf[:n*inCh]
		got := sampleconv.ToFloat32(s.capture.format.Format, ex.In, in)
		clear(in[got:])
	}
	if s.render != nil {
		out = s.outBuf[:n*outCh]
	}
	s.engine.ProcessInterleaved(in, inCh, out, outCh, n)
	if out != nil && ex.Out != nil {
		written := sampleconv.FromFloat32(s.render.format.Format, out, ex.Out)
		clear(ex.Out[written*s.render.format.Format.Bytes():])
	}
}

// markLost reports the stream endpoints as disconnected, once per loss.
func (s *stream) markLost() {
	if !s.lost.CompareAndSwap(false, true) {
		return
	}
	for _, ep := range s.endpoints() {
		s.msgs.TryPush(dawio.AudioDeviceDisconnected(ep.id))
		s.logger.Warn("Audio device disconnected", "device", ep.id.String())
	}
}

// --- controller side ---

// watch polls endpoint states. A stream endpoint that leaves the active
// state marks the stream lost; once all are active again the loop reopens.
func (s *stream) watch(ctx context.Context) {
	eps := s.endpoints()
	if len(eps) == 0 {
		return
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		active := true
		for _, ep := range eps {
			if st := s.state(ep); st != StateActive {
				s.logger.Debug("Endpoint not active", "device", ep.id.String(), "state", st.String())
				active = false
			}
		}
		switch {
		case !active:
			s.markLost()
		case s.lost.Load():
			select {
			case s.reopen <- struct{}{}:
			default:
			}
		}
	}
}

func (s *stream) state(ep *endpoint) DeviceState {
	list, err := s.sdk.Endpoints(ep.flow)
	if err != nil {
		return StateNotPresent
	}
	for _, e := range list {
		if e.ID == ep.id.Identifier {
			return e.State
		}
	}
	return StateNotPresent
}

func (s *stream) Engine() *dawio.Engine { return s.engine }

func (s *stream) Capabilities() dawio.Capabilities {
	return dawio.Capabilities{AudioPorts: true, BlockSize: true}
}

func (s *stream) ChangeAudioPorts(in, out *[]int) error {
	var inNames, outNames []string
	if s.capture != nil {
		inNames = s.capture.names
	}
	if s.render != nil {
		outNames = s.render.names
	}
	gen, err := dawio.ChangeInterleavedPorts(s.engine, in, out, inNames, outNames)
	if err != nil {
		return err
	}
	s.logger.Info("Ports reconfigured", "generation", gen)
	return nil
}

func (s *stream) ChangeJackPorts(in, out *[]string) error {
	return dawio.NewChangeAudioPortsError(dawio.NotSupportedByBackend, "wasapi has no jack ports", nil)
}

// ChangeBlockSize changes the largest chunk handed to the handler. The
// device period is unaffected.
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
