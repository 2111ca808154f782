// Package session owns one running stream on behalf of the dawio service:
// it drains the stream's messages onto the event bus, mirrors its stats
// into metrics, serializes control plane changes and applies profile
// reloads.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/dawio/internal/config"
	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/internal/logging"
	"github.com/smazurov/dawio/internal/metrics"
	"github.com/smazurov/dawio/internal/metrics/collectors"
	"github.com/smazurov/dawio/pkg/dawio"
)

// ErrNotRunning is returned by control calls while no stream is open.
var ErrNotRunning = errors.New("stream is not running")

// Runner starts streams. *dawio.Host implements it.
type Runner interface {
	Run(ctx context.Context, cfg dawio.Config, opts dawio.RunOptions, handler dawio.ProcessHandler) (*dawio.StreamHandle, error)
}

// Options configure a Session.
type Options struct {
	ID      string
	Host    Runner
	Handler dawio.ProcessHandler
	Bus     *events.Bus

	Profile     config.Profile
	BaseOptions dawio.RunOptions

	// ProfilePath, when set, is watched and reloads are applied live.
	ProfilePath string
	Debounce    time.Duration

	StatsInterval time.Duration
}

// Session is safe for concurrent use.
type Session struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	handle  *dawio.StreamHandle
	profile config.Profile
	lastErr error

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	collector *collectors.StreamCollector
	watcher   *config.Watcher[config.Profile]
}

// New creates a stopped session.
func New(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = "main"
	}
	if opts.Host == nil {
		opts.Host = dawio.DefaultHost()
	}
	if opts.Bus == nil {
		opts.Bus = events.New()
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Second
	}
	return &Session{
		opts:    opts,
		logger:  logging.GetLogger("session").With("stream_id", opts.ID),
		profile: opts.Profile,
	}
}

// ID returns the stream identifier used on every surface.
func (s *Session) ID() string { return s.opts.ID }

// Bus returns the bus the session publishes on.
func (s *Session) Bus() *events.Bus { return s.opts.Bus }

// Start opens the stream described by the profile and, if a profile path
// was given, starts watching it.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		return errors.New("session already started")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	if err := s.openLocked(ctx, runCtx); err != nil {
		cancel()
		return err
	}
	s.cancel = cancel

	if s.opts.ProfilePath != "" {
		w := config.NewWatcher(s.opts.ProfilePath, config.LoadProfile, s.logger,
			config.WithDebounce[config.Profile](s.debounce()),
			config.WithErrorHandler[config.Profile](func(err error) {
				s.publishReload(events.ProfileReloadedEvent{Error: err.Error()})
			}))
		w.OnReload(func(p config.Profile) { s.ApplyProfile(p) })
		if err := w.Start(runCtx); err != nil {
			s.logger.Warn("Profile watch disabled", "path", s.opts.ProfilePath, "error", err)
		} else {
			s.watcher = w
		}
	}
	return nil
}

func (s *Session) debounce() time.Duration {
	if s.opts.Debounce > 0 {
		return s.opts.Debounce
	}
	return config.DefaultDebounce
}

// openLocked runs the stream for s.profile and starts its background
// loops under runCtx.
func (s *Session) openLocked(ctx, runCtx context.Context) error {
	cfg, err := s.profile.ToConfig()
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	ro, err := s.profile.ToRunOptions(s.opts.BaseOptions)
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if ro.Logger == nil {
		ro.Logger = logging.GetLogger("dawio")
	}

	h, err := s.opts.Host.Run(ctx, cfg, ro, s.opts.Handler)
	if err != nil {
		s.lastErr = err
		s.publishState("failed", nil, err)
		return err
	}
	s.handle = h
	s.lastErr = nil

	info := h.StreamInfo()
	metrics.SetStreamInfo(s.opts.ID, info, ro.MaxBufferSize)
	s.publishState(dawio.StateRunning.String(), &info, nil)
	s.logger.Info("Stream running", "backend", info.Backend, "sample_rate", info.SampleRate,
		"buffer", info.BufferSize.String(), "inputs", len(info.InPorts), "outputs", len(info.OutPorts))

	s.collector = collectors.NewStreamCollector(s.opts.ID, h, s.opts.StatsInterval, nil)
	s.collector.Start(runCtx)

	s.wg.Add(1)
	go s.drain(runCtx, h)
	return nil
}

// drain forwards every stream message to the bus until the stream closes.
func (s *Session) drain(ctx context.Context, h *dawio.StreamHandle) {
	defer s.wg.Done()
	for msg := range h.Messages().Wait(ctx) {
		metrics.CountStreamMsg(s.opts.ID, msg.Kind)
		s.opts.Bus.Publish(events.StreamMsgEvent{StreamID: s.opts.ID, Msg: msg, Timestamp: time.Now()})

		switch msg.Kind {
		case dawio.MsgError:
			s.logger.Error("Stream error", "error", msg.Err.Error())
		case dawio.MsgClosed:
			s.closed(h)
			return
		default:
			s.logger.Info("Stream message", "msg", msg.String())
		}
	}
}

// closed runs when a stream ended, whether through Stop or a fatal error.
func (s *Session) closed(h *dawio.StreamHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != h {
		return
	}
	s.handle = nil
	metrics.SetStreamDown(s.opts.ID)
	s.publishState(dawio.StateStopped.String(), nil, nil)
}

// Stop closes the stream and the profile watcher.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	h := s.handle
	cancel := s.cancel
	w := s.watcher
	c := s.collector
	s.watcher, s.collector, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if w != nil {
		_ = w.Stop()
	}
	var err error
	if h != nil {
		err = h.Close()
	}
	done := make(chan struct{})
	go func() {
		if c != nil {
			c.Stop()
		}
		if cancel != nil {
			cancel()
		}
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	if s.handle == h {
		s.handle = nil
	}
	s.mu.Unlock()
	metrics.SetStreamDown(s.opts.ID)
	return err
}

// Restart closes the stream and opens it again with the current profile.
func (s *Session) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		s.logger.Warn("Stream closed with error", "error", err)
	}
	return s.Start(ctx)
}

// Status is a point-in-time view for the API.
type Status struct {
	ID      string            `json:"id"`
	State   string            `json:"state"`
	Info    *dawio.StreamInfo `json:"info,omitempty"`
	Plan    *dawio.Plan       `json:"plan,omitempty"`
	Stats   dawio.Stats       `json:"stats"`
	Error   string            `json:"error,omitempty"`
	Profile config.Profile    `json:"-"`
}

// Status reports the current state of the stream.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{ID: s.opts.ID, State: dawio.StateStopped.String(), Profile: s.profile}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	if s.handle == nil {
		if stats, ok := metrics.GetStreamStats(s.opts.ID); ok {
			st.Stats = stats
		}
		return st
	}
	info := s.handle.StreamInfo()
	plan := s.handle.Plan()
	st.State = s.handle.State().String()
	st.Info = &info
	st.Plan = &plan
	st.Stats = s.handle.Stats()
	return st
}

// Handle returns the running stream, or nil.
func (s *Session) Handle() *dawio.StreamHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Session) publishState(state string, info *dawio.StreamInfo, err error) {
	ev := events.StreamStateEvent{StreamID: s.opts.ID, State: state, Timestamp: time.Now()}
	if info != nil {
		ev.Backend = info.Backend
		ev.SampleRate = info.SampleRate
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.opts.Bus.Publish(ev)
}

func (s *Session) publishReload(ev events.ProfileReloadedEvent) {
	ev.StreamID = s.opts.ID
	ev.Path = s.opts.ProfilePath
	ev.Timestamp = time.Now()
	s.opts.Bus.Publish(ev)
}
