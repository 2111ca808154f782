package dawio

import (
	"context"
	"errors"
	"fmt"
)

// Run resolves cfg on the default host, starts the stream, and hands
// handler to the audio thread.
func Run(ctx context.Context, cfg Config, opts RunOptions, handler ProcessHandler) (*StreamHandle, error) {
	return defaultHost.Run(ctx, cfg, opts, handler)
}

// Run resolves cfg against a fresh inventory of h and starts the stream.
// Setup failures are returned as *RunConfigError and leave nothing running.
func (h *Host) Run(ctx context.Context, cfg Config, opts RunOptions, handler ProcessHandler) (*StreamHandle, error) {
	if handler == nil {
		return nil, malformed("process handler is nil")
	}
	opts = opts.normalized()

	inv, err := h.Inventory(ctx)
	if err != nil {
		return nil, PlatformError(err)
	}
	plan, err := Resolve(cfg, opts, inv)
	if err != nil {
		return nil, err
	}
	return h.Start(ctx, plan, opts, handler)
}

// Start runs an already resolved plan.
func (h *Host) Start(ctx context.Context, plan Plan, opts RunOptions, handler ProcessHandler) (*StreamHandle, error) {
	opts = opts.normalized()
	logger := opts.logger().With("backend", string(plan.Backend))

	driver, ok := h.audioDriver(plan.Backend)
	if !ok {
		return nil, &RunConfigError{Kind: KindAudioBackendNotInstalled, Backend: plan.Backend}
	}

	producer, consumer := NewMsgChannel(opts.MsgBufferSize)
	sh := &StreamHandle{
		plan:     plan,
		opts:     opts,
		msgs:     producer,
		consumer: consumer,
		logger:   logger,
		started:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	defer close(sh.started)
	sh.state.Store(int32(StateResolved))

	var session *MidiSession
	if plan.Midi != nil && !drivesOwnMidi(driver, plan) {
		md, ok := h.midiDriver(plan.Midi.Backend)
		opener, canOpen := md.(MidiPortOpener)
		switch {
		case ok && canOpen:
			s, err := NewMidiSession(ctx, opener, plan.Midi, producer, logger)
			if err != nil {
				return nil, PlatformError(fmt.Errorf("open midi ports: %w", err))
			}
			session = s
		case opts.ErrorBehavior.MidiBackendNotFound == NotFoundReturnWithError:
			return nil, &RunConfigError{Kind: KindMidiBackendNotFound, Backend: plan.Midi.Backend}
		default:
			logger.Warn("MIDI backend cannot be used with this audio backend, continuing without MIDI",
				"midi_backend", string(plan.Midi.Backend))
			plan.Midi = nil
			sh.plan.Midi = nil
		}
	}
	sh.midi = session

	sh.state.Store(int32(StateRegistering))
	req := StartRequest{
		Plan:     plan,
		Options:  opts,
		Handler:  handler,
		Messages: producer,
		Midi:     session,
		Fatal:    sh.fatal,
		Logger:   logger,
	}
	stream, err := driver.Start(ctx, req)
	if err != nil {
		if session != nil {
			_ = session.Close()
		}
		var rce *RunConfigError
		if errors.As(err, &rce) {
			return nil, rce
		}
		return nil, PlatformError(err)
	}
	sh.stream = stream
	sh.engine = stream.Engine()
	sh.state.Store(int32(StateRunning))

	monitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sh.stopMonitor = cancel
	go sh.monitor(monitorCtx)

	logger.Info("Stream started",
		"sample_rate", plan.SampleRate,
		"buffer_size", plan.BufferSize.String(),
		"inputs", len(plan.Inputs),
		"outputs", len(plan.Outputs))
	return sh, nil
}

func drivesOwnMidi(d AudioDriver, plan Plan) bool {
	n, ok := d.(NativeMidiDriver)
	return ok && n.NativeMidi() && plan.Midi != nil && plan.Midi.Backend == plan.Backend
}
