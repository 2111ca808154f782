package dawio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// StreamState is the lifecycle state of a stream.
type StreamState int32

// Stream states. Process is only called in StateRunning and
// StateLiveReconfigure.
const (
	StateInit StreamState = iota
	StateResolved
	StateRegistering
	StateRunning
	StateLiveReconfigure
	StateStopping
	StateStopped
)

func (s StreamState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateResolved:
		return "resolved"
	case StateRegistering:
		return "registering"
	case StateRunning:
		return "running"
	case StateLiveReconfigure:
		return "live_reconfigure"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText encodes the state by name.
func (s StreamState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StreamHandle owns a running stream. Close it to stop the stream; it is
// also closed automatically after a fatal stream error.
type StreamHandle struct {
	plan     Plan
	opts     RunOptions
	stream   PlatformStream
	engine   *Engine
	midi     *MidiSession
	msgs     MsgProducer
	consumer *MsgConsumer
	logger   *slog.Logger

	state atomic.Int32

	// ctlMu serializes control plane calls against each other and teardown.
	ctlMu sync.Mutex

	stopOnce    sync.Once
	fatalOnce   sync.Once
	started     chan struct{}
	done        chan struct{}
	closeErr    error
	stopMonitor context.CancelFunc
}

// State returns the current lifecycle state.
func (h *StreamHandle) State() StreamState {
	return StreamState(h.state.Load())
}

// Plan returns the plan the stream was started with.
func (h *StreamHandle) Plan() Plan { return h.plan }

// StreamInfo returns the latest stream info snapshot.
func (h *StreamHandle) StreamInfo() StreamInfo {
	return h.engine.Info()
}

// Messages returns the consumer end of the stream's message channel.
func (h *StreamHandle) Messages() *MsgConsumer { return h.consumer }

// Stats returns the engine counters.
func (h *StreamHandle) Stats() Stats { return h.engine.Stats() }

// Done is closed once the stream has stopped, whether by Close or by a
// fatal error.
func (h *StreamHandle) Done() <-chan struct{} { return h.done }

// CanChangeAudioPortConfig reports whether ChangeAudioPortConfig can succeed
// on this backend.
func (h *StreamHandle) CanChangeAudioPortConfig() bool {
	return h.stream.Capabilities().AudioPorts
}

// CanChangeJackAudioPortConfig reports whether the stream accepts Jack port
// names.
func (h *StreamHandle) CanChangeJackAudioPortConfig() bool {
	return h.stream.Capabilities().JackPorts
}

// CanChangeBlockSize reports whether ChangeBlockSizeConfig can succeed.
func (h *StreamHandle) CanChangeBlockSize() bool {
	return h.stream.Capabilities().BlockSize
}

// CanChangeMidiDeviceConfig reports whether ChangeMidiDeviceConfig can
// succeed.
func (h *StreamHandle) CanChangeMidiDeviceConfig() bool {
	caps := h.stream.Capabilities()
	if caps.NativeMidi {
		return caps.MidiDevices
	}
	return h.midi != nil
}

func (h *StreamHandle) beginChange() bool {
	return h.state.CompareAndSwap(int32(StateRunning), int32(StateLiveReconfigure))
}

func (h *StreamHandle) endChange() {
	h.state.CompareAndSwap(int32(StateLiveReconfigure), int32(StateRunning))
}

// ChangeAudioPortConfig selects new device port indices. A nil slice keeps
// the current selection of that direction. Asking for the current selection
// is a no-op.
func (h *StreamHandle) ChangeAudioPortConfig(in, out *[]int) error {
	h.ctlMu.Lock()
	defer h.ctlMu.Unlock()
	if !h.stream.Capabilities().AudioPorts {
		return NewChangeAudioPortsError(NotSupportedByBackend, "", nil)
	}
	for _, list := range []*[]int{in, out} {
		if list == nil {
			continue
		}
		for _, idx := range *list {
			if idx < 0 {
				return NewChangeAudioPortsError(InvalidPort, fmt.Sprintf("negative port index %d", idx), nil)
			}
		}
	}
	info := h.engine.Info()
	if sameIndices(in, info.InPorts) && sameIndices(out, info.OutPorts) {
		return nil
	}
	if !h.beginChange() {
		return NewChangeAudioPortsError(StreamClosed, "", nil)
	}
	defer h.endChange()
	return h.stream.ChangeAudioPorts(in, out)
}

// ChangeJackAudioPortConfig selects Jack system ports by name.
func (h *StreamHandle) ChangeJackAudioPortConfig(in, out *[]string) error {
	h.ctlMu.Lock()
	defer h.ctlMu.Unlock()
	if !h.stream.Capabilities().JackPorts {
		return NewChangeAudioPortsError(NotSupportedByBackend, "", nil)
	}
	info := h.engine.Info()
	if sameNames(in, info.InPorts) && sameNames(out, info.OutPorts) {
		return nil
	}
	if !h.beginChange() {
		return NewChangeAudioPortsError(StreamClosed, "", nil)
	}
	defer h.endChange()
	return h.stream.ChangeJackPorts(in, out)
}

// ChangeBlockSizeConfig asks for blocks of at most n frames. On success the
// next StreamChanged carries a buffer size whose maximum is at least n.
func (h *StreamHandle) ChangeBlockSizeConfig(n uint32) error {
	h.ctlMu.Lock()
	defer h.ctlMu.Unlock()
	if !h.stream.Capabilities().BlockSize {
		return NewChangeBlockSizeError(NotSupportedByBackend, "", nil)
	}
	if n == 0 {
		return NewChangeBlockSizeError(InvalidBlockSize, "block size must be positive", nil)
	}
	if !h.beginChange() {
		return NewChangeBlockSizeError(StreamClosed, "", nil)
	}
	defer h.endChange()
	return h.stream.ChangeBlockSize(n)
}

// ChangeMidiDeviceConfig replaces the MIDI ports. A nil slice keeps the
// current ports of that direction.
func (h *StreamHandle) ChangeMidiDeviceConfig(in, out *[]MidiPortConfig) error {
	h.ctlMu.Lock()
	defer h.ctlMu.Unlock()
	if !h.CanChangeMidiDeviceConfig() {
		return NewChangeMidiPortsError(NotSupportedByBackend, "", nil)
	}
	if in == nil && out == nil {
		return nil
	}
	if !h.beginChange() {
		return NewChangeMidiPortsError(StreamClosed, "", nil)
	}
	defer h.endChange()

	if h.stream.Capabilities().NativeMidi {
		return h.stream.ChangeMidiPorts(in, out)
	}
	bi, bo, info, err := h.midi.Change(context.Background(), in, out, h.opts.MidiBufferSize)
	if err != nil {
		return err
	}
	if _, err := h.engine.ReconfigureMidi(info, bi, bo); err != nil {
		return NewChangeMidiPortsError(ChangePlatformSpecific, "", err)
	}
	return nil
}

func sameIndices(want *[]int, ports []AudioPortStreamInfo) bool {
	if want == nil {
		return true
	}
	cur := make([]int, len(ports))
	for i, p := range ports {
		cur[i] = p.ConnectedToIndex
	}
	return slices.Equal(*want, cur)
}

func sameNames(want *[]string, ports []AudioPortStreamInfo) bool {
	if want == nil {
		return true
	}
	cur := make([]string, len(ports))
	for i, p := range ports {
		cur[i] = p.ConnectedToName
	}
	return slices.Equal(*want, cur)
}

// fatal reports err and tears the stream down without blocking the caller,
// which may be an SDK notification thread.
func (h *StreamHandle) fatal(err StreamError) {
	h.fatalOnce.Do(func() {
		h.msgs.TryPush(ErrorMsg(err))
		h.logger.Error("Stream failed", "error", err.Error())
		go h.stop()
	})
}

// Close stops the stream, waits for the audio thread within
// RunOptions.CloseTimeout, and seals the message channel with Closed. It is
// safe to call more than once.
func (h *StreamHandle) Close() error {
	h.stop()
	<-h.done
	return h.closeErr
}

func (h *StreamHandle) stop() {
	<-h.started
	h.stopOnce.Do(func() {
		h.ctlMu.Lock()
		defer h.ctlMu.Unlock()
		h.state.Store(int32(StateStopping))

		ctx, cancel := context.WithTimeout(context.Background(), h.opts.CloseTimeout)
		defer cancel()

		var errs []error
		if h.stream != nil {
			if err := h.stream.Stop(ctx); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					err = fmt.Errorf("audio thread did not stop within %s: %w", h.opts.CloseTimeout, err)
				}
				errs = append(errs, err)
			}
		}
		if h.midi != nil {
			if err := h.midi.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close midi ports: %w", err))
			}
		}
		if h.stopMonitor != nil {
			h.stopMonitor()
		}
		h.msgs.pushClosed()
		h.closeErr = errors.Join(errs...)
		h.state.Store(int32(StateStopped))
		close(h.done)
		h.logger.Info("Stream stopped")
	})
}

// monitor logs counter deltas once per second. The audio thread only bumps
// counters.
func (h *StreamHandle) monitor(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var last Stats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := h.engine.Stats()
			h.logStats(cur, last)
			last = cur
		}
	}
}

func (h *StreamHandle) logStats(cur, last Stats) {
	if d := cur.DroppedMessages - last.DroppedMessages; d > 0 {
		h.logger.Warn("Stream messages dropped, channel full", "count", d)
	}
	if d := cur.TruncatedCycles - last.TruncatedCycles; d > 0 {
		h.logger.Warn("Blocks larger than the preallocated size were truncated", "count", d)
	}
	if d := cur.MidiEventsTooLong - last.MidiEventsTooLong; d > 0 {
		h.logger.Warn("Oversized MIDI events dropped", "count", d)
	}
	if d := cur.MidiBufferOverflows - last.MidiBufferOverflows; d > 0 {
		h.logger.Warn("MIDI events dropped, buffer full", "count", d)
	}
	if d := cur.Xruns - last.Xruns; d > 0 {
		h.logger.Debug("Xruns", "count", d)
	}
}
