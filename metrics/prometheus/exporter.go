// Package prometheus provides Prometheus metrics for the voice session server.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter owns the metrics registry and produces the handler the main
// HTTP server mounts at /metrics.
type Exporter struct {
	registry *prometheus.Registry
}

// NewExporter creates an exporter with all server metrics plus the Go
// runtime and process collectors registered.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()

	for _, collector := range allMetrics {
		reg.MustRegister(collector)
	}

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Exporter{registry: reg}
}

// NewExporterWithRegistry creates an exporter backed by a custom registry.
// Useful for tests that need isolated metric state.
func NewExporterWithRegistry(registry *prometheus.Registry) *Exporter {
	return &Exporter{registry: registry}
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns the http.Handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// MustRegister registers additional collectors with the exporter's registry.
// Panics if registration fails.
func (e *Exporter) MustRegister(cs ...prometheus.Collector) {
	e.registry.MustRegister(cs...)
}
