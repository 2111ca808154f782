package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/internal/metrics"
	"github.com/smazurov/dawio/pkg/dawio"
)

type recordingBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func (b *recordingBus) Publish(ev events.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
	select {
	case b.published <- struct{}{}:
	default:
	}
}

func (b *recordingBus) snapshot() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.events...)
}

func TestSSEExporterPublishesStats(t *testing.T) {
	const id = "sse-test-stream"
	metrics.SetStreamStats(id, dawio.Stats{Cycles: 7, TruncatedCycles: 2})
	defer metrics.DeleteStream(id)

	bus := &recordingBus{published: make(chan struct{}, 16)}
	exp := NewSSEExporter(bus)
	exp.interval = 20 * time.Millisecond
	exp.Start(context.Background())

	select {
	case <-bus.published:
	case <-time.After(time.Second):
		t.Fatal("nothing published")
	}
	exp.Stop()

	var found bool
	for _, ev := range bus.snapshot() {
		e, ok := ev.(events.StreamStatsEvent)
		if !ok || e.StreamID != id {
			continue
		}
		found = true
		if e.Stats.Cycles != 7 || e.Stats.TruncatedCycles != 2 {
			t.Errorf("stats = %+v", e.Stats)
		}
	}
	if !found {
		t.Error("no stats event for the stream")
	}
}

func TestSSEExporterStopWithoutStart(t *testing.T) {
	NewSSEExporter(&recordingBus{}).Stop()
}

func TestEventTypes(t *testing.T) {
	if _, ok := EventTypes()["stream-stats"].(events.StreamStatsEvent); !ok {
		t.Error("stream-stats is not registered")
	}
}
