// Package exporters serves metrics over HTTP and republishes stream stats
// as bus events for SSE clients.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler serves the default registry plus any extra collectors, such
// as a collectors.BackendCollector.
func HTTPHandler(extra ...prometheus.Collector) http.Handler {
	if len(extra) == 0 {
		return promhttp.Handler()
	}
	reg := prometheus.NewRegistry()
	for _, c := range extra {
		reg.MustRegister(c)
	}
	gather := prometheus.Gatherers{prometheus.DefaultGatherer, reg}
	return promhttp.HandlerFor(gather, promhttp.HandlerOpts{})
}
