// Package collectors feeds the metrics package from running streams and
// from backend enumeration.
package collectors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/dawio/internal/logging"
	"github.com/smazurov/dawio/internal/metrics"
	"github.com/smazurov/dawio/pkg/dawio"
)

// StatsSource is the part of a StreamHandle the collector reads.
type StatsSource interface {
	Stats() dawio.Stats
}

// StreamCollector mirrors a stream's engine counters into Prometheus.
type StreamCollector struct {
	id       string
	source   StatsSource
	interval time.Duration
	onSample func(dawio.Stats)
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStreamCollector samples source every interval. onSample, if not nil,
// receives every snapshot after it was recorded.
func NewStreamCollector(id string, source StatsSource, interval time.Duration, onSample func(dawio.Stats)) *StreamCollector {
	if interval <= 0 {
		interval = time.Second
	}
	return &StreamCollector{
		id:       id,
		source:   source,
		interval: interval,
		onSample: onSample,
		logger:   logging.GetLogger("metrics"),
	}
}

// Start begins sampling.
func (c *StreamCollector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop takes a final sample and stops.
func (c *StreamCollector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
}

func (c *StreamCollector) run(ctx context.Context) {
	defer c.wg.Done()
	c.logger.Debug("Collecting stream stats", "stream_id", c.id, "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample()
	for {
		select {
		case <-ctx.Done():
			c.sample()
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *StreamCollector) sample() {
	s := c.source.Stats()
	metrics.SetStreamStats(c.id, s)
	if c.onSample != nil {
		c.onSample(s)
	}
}
