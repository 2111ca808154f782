package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/pkg/dawio"
)

// Manager follows one stream on the bus and mirrors its state on a LED.
type Manager struct {
	controller Controller
	led        string
	streamID   string
	bus        *events.Bus
	logger     *slog.Logger

	mu          sync.Mutex
	running     bool
	unplugged   map[string]bool
	pattern     string
	unsubscribe []func()
}

// NewManager drives led on controller for streamID.
func NewManager(controller Controller, led, streamID string, bus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		led:        led,
		streamID:   streamID,
		bus:        bus,
		logger:     logger,
		unplugged:  map[string]bool{},
	}
}

// Start subscribes to the bus and switches the LED off until the stream
// reports running.
func (m *Manager) Start() {
	m.mu.Lock()
	m.apply(PatternOff)
	m.mu.Unlock()
	m.unsubscribe = []func(){
		events.Subscribe(m.bus, m.handleState),
		events.Subscribe(m.bus, m.handleMsg),
	}
	m.logger.Info("LED manager started", "led", m.led, "stream_id", m.streamID)
}

// Stop unsubscribes and switches the LED off.
func (m *Manager) Stop() {
	for _, unsub := range m.unsubscribe {
		unsub()
	}
	m.unsubscribe = nil
	m.mu.Lock()
	m.apply(PatternOff)
	m.mu.Unlock()
	m.logger.Info("LED manager stopped")
}

// Pattern returns the pattern last applied.
func (m *Manager) Pattern() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pattern
}

func (m *Manager) handleState(e events.StreamStateEvent) {
	if e.StreamID != m.streamID {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = e.State == dawio.StateRunning.String()
	clear(m.unplugged)
	m.update()
}

func (m *Manager) handleMsg(e events.StreamMsgEvent) {
	if e.StreamID != m.streamID {
		return
	}
	key := e.Msg.Device.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	switch e.Msg.Kind {
	case dawio.MsgAudioDeviceDisconnected, dawio.MsgMidiDeviceDisconnected:
		m.unplugged[key] = true
	case dawio.MsgAudioDeviceReconnected, dawio.MsgMidiDeviceReconnected:
		delete(m.unplugged, key)
	default:
		return
	}
	m.update()
}

func (m *Manager) update() {
	switch {
	case !m.running:
		m.apply(PatternOff)
	case len(m.unplugged) > 0:
		m.apply(PatternHeartbeat)
	default:
		m.apply(PatternSolid)
	}
}

func (m *Manager) apply(pattern string) {
	if pattern == m.pattern {
		return
	}
	if err := m.controller.Set(m.led, pattern); err != nil {
		m.logger.Warn("Failed to set LED", "led", m.led, "pattern", pattern, "error", err)
		return
	}
	m.pattern = pattern
	m.logger.Debug("LED updated", "led", m.led, "pattern", pattern)
}
