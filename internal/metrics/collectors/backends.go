package collectors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smazurov/dawio/internal/logging"
	"github.com/smazurov/dawio/pkg/dawio"
)

// Inventorier enumerates the host's backends.
type Inventorier interface {
	Inventory(ctx context.Context) (dawio.Inventory, error)
}

var (
	backendStatusDesc = prometheus.NewDesc(
		"dawio_backend_status",
		"Backend status at the last enumeration; 1 for the current status",
		[]string{"backend", "kind", "status"}, nil,
	)
	backendDevicesDesc = prometheus.NewDesc(
		"dawio_backend_devices",
		"Devices reported by the backend at the last enumeration",
		[]string{"backend", "kind"}, nil,
	)
)

// BackendCollector is a prometheus.Collector reporting backend health.
// Enumeration can take seconds on some backends, so results are cached for
// ttl between scrapes.
type BackendCollector struct {
	host    Inventorier
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	last    dawio.Inventory
	fetched time.Time
}

// NewBackendCollector creates a collector over host.
func NewBackendCollector(host Inventorier, ttl time.Duration) *BackendCollector {
	return &BackendCollector{
		host:    host,
		ttl:     ttl,
		timeout: 5 * time.Second,
		logger:  logging.GetLogger("metrics"),
	}
}

func (c *BackendCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- backendStatusDesc
	ch <- backendDevicesDesc
}

func (c *BackendCollector) Collect(ch chan<- prometheus.Metric) {
	inv := c.inventory()
	for _, a := range inv.Audio {
		ch <- prometheus.MustNewConstMetric(backendStatusDesc, prometheus.GaugeValue, 1,
			string(a.Backend), "audio", a.Status.String())
		ch <- prometheus.MustNewConstMetric(backendDevicesDesc, prometheus.GaugeValue, float64(len(a.Devices)),
			string(a.Backend), "audio")
	}
	for _, m := range inv.Midi {
		ch <- prometheus.MustNewConstMetric(backendStatusDesc, prometheus.GaugeValue, 1,
			string(m.Backend), "midi", m.Status.String())
		ch <- prometheus.MustNewConstMetric(backendDevicesDesc, prometheus.GaugeValue,
			float64(len(m.InDevices)+len(m.OutDevices)), string(m.Backend), "midi")
	}
}

func (c *BackendCollector) inventory() dawio.Inventory {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetched.IsZero() && time.Since(c.fetched) < c.ttl {
		return c.last
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	inv, err := c.host.Inventory(ctx)
	if err != nil {
		c.logger.Warn("Backend enumeration failed", "error", err)
		return c.last
	}
	c.last = inv
	c.fetched = time.Now()
	return inv
}
