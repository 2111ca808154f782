package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/pkg/dawio"
)

// Stream is the session a Bridge publishes and controls.
type Stream interface {
	ID() string
	ChangePorts(in, out *[]int) error
	ChangeJackPorts(in, out *[]string) error
	ChangeBlockSize(frames uint32) error
	ChangeMidi(in, out *[]dawio.MidiPortConfig) error
	Restart(ctx context.Context) error
}

// Bridge forwards stream events from the bus to NATS and applies control
// commands received from NATS. Publishing degrades to a no-op while the
// connection is down.
type Bridge struct {
	url    string
	stream Stream
	bus    *events.Bus
	logger *slog.Logger

	// RestartTimeout bounds a restart command.
	RestartTimeout time.Duration

	mu     sync.Mutex
	conn   *nats.Conn
	sub    *nats.Subscription
	unsubs []func()
}

// NewBridge creates a bridge for stream. Nothing happens until Start.
func NewBridge(url string, stream Stream, bus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		url:            url,
		stream:         stream,
		bus:            bus,
		logger:         logger.With("component", "nats-bridge", "stream_id", stream.ID()),
		RestartTimeout: 10 * time.Second,
	}
}

// Start connects, subscribes to the control subjects and starts forwarding
// bus events.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return errors.New("nats bridge already started")
	}

	conn, err := nats.Connect(b.url,
		nats.Name("dawio-"+b.stream.ID()),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", b.url, err)
	}

	sub, err := conn.Subscribe(SubjectControl(b.stream.ID(), ">"), b.handleControl)
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribe control: %w", err)
	}
	b.conn = conn
	b.sub = sub

	id := b.stream.ID()
	b.unsubs = []func(){
		events.Subscribe(b.bus, func(e events.StreamMsgEvent) {
			if e.StreamID == id {
				b.publish(SubjectStreamMsgs(id), e)
			}
		}),
		events.Subscribe(b.bus, func(e events.StreamStateEvent) {
			if e.StreamID == id {
				b.publish(SubjectStreamState(id), e)
			}
		}),
		events.Subscribe(b.bus, func(e events.StreamStatsEvent) {
			if e.StreamID == id {
				b.publish(SubjectStreamStats(id), e)
			}
		}),
	}
	b.logger.Info("NATS bridge started", "url", conn.ConnectedUrl())
	return nil
}

func (b *Bridge) publish(subject string, v any) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Warn("Failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		b.logger.Warn("Failed to publish", "subject", subject, "error", err)
	}
}

func (b *Bridge) handleControl(msg *nats.Msg) {
	command := msg.Subject[strings.LastIndexByte(msg.Subject, '.')+1:]
	err := b.apply(command, msg.Data)
	if err != nil {
		b.logger.Warn("Control command failed", "command", command, "error", err)
	} else {
		b.logger.Info("Control command applied", "command", command)
	}
	if msg.Reply == "" {
		return
	}
	data, merr := replyFor(err).Marshal()
	if merr != nil {
		return
	}
	if rerr := msg.Respond(data); rerr != nil {
		b.logger.Warn("Failed to reply", "command", command, "error", rerr)
	}
}

func decode[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode command: %w", err)
	}
	return v, nil
}

func (b *Bridge) apply(command string, data []byte) error {
	switch command {
	case CommandPorts:
		c, err := decode[PortsCommand](data)
		if err != nil {
			return err
		}
		return b.stream.ChangePorts(c.Inputs, c.Outputs)
	case CommandJackPorts:
		c, err := decode[JackPortsCommand](data)
		if err != nil {
			return err
		}
		return b.stream.ChangeJackPorts(c.Inputs, c.Outputs)
	case CommandBlockSize:
		c, err := decode[BlockSizeCommand](data)
		if err != nil {
			return err
		}
		return b.stream.ChangeBlockSize(c.Frames)
	case CommandMidi:
		c, err := decode[MidiCommand](data)
		if err != nil {
			return err
		}
		return b.stream.ChangeMidi(midiConfigs(c.Inputs), midiConfigs(c.Outputs))
	case CommandRestart:
		ctx, cancel := context.WithTimeout(context.Background(), b.RestartTimeout)
		defer cancel()
		return b.stream.Restart(ctx)
	default:
		return fmt.Errorf("unknown control command %q", command)
	}
}

// Stop unsubscribes from the bus and closes the connection after pending
// publishes are flushed.
func (b *Bridge) Stop() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
		b.sub = nil
	}
	if b.conn != nil {
		_ = b.conn.Drain()
		b.conn = nil
	}
	b.logger.Info("NATS bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
