package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/internal/metrics"
)

// EventPublisher is satisfied by *events.Bus.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter publishes the cached stats of every stream once per interval.
type SSEExporter struct {
	bus      EventPublisher
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates an exporter publishing to bus every second.
func NewSSEExporter(bus EventPublisher) *SSEExporter {
	return &SSEExporter{bus: bus, interval: time.Second}
}

// Start begins publishing.
func (s *SSEExporter) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops publishing and waits for the loop.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish()
		}
	}
}

func (s *SSEExporter) publish() {
	now := time.Now()
	for id, st := range metrics.GetAllStreamStats() {
		s.bus.Publish(events.StreamStatsEvent{StreamID: id, Stats: st, Timestamp: now})
	}
}

// EventTypes maps SSE event names to their payload types for huma's sse
// registration.
func EventTypes() map[string]any {
	return map[string]any{
		"stream-stats": events.StreamStatsEvent{},
	}
}
