package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the engine's instrumentation on a private registry, so
// several pipelines can coexist in one process without collisions on the
// global default registry.
type Metrics struct {
	registry *prometheus.Registry

	PacketsTotal   *prometheus.CounterVec
	DroppedTotal   *prometheus.CounterVec
	NullifiedTotal *prometheus.CounterVec
	RestartsTotal  *prometheus.CounterVec
	Bitrate        prometheus.Gauge
}

// NewMetrics creates the engine metrics on a fresh registry, including Go
// runtime collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		PacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsflow_packets_total",
			Help: "Packets submitted to each plugin.",
		}, []string{"plugin", "kind"}),
		DroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsflow_dropped_packets_total",
			Help: "Packets dropped by each processor plugin.",
		}, []string{"plugin"}),
		NullifiedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsflow_nullified_packets_total",
			Help: "Packets turned into null packets by each processor plugin.",
		}, []string{"plugin"}),
		RestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsflow_plugin_restarts_total",
			Help: "Live restarts applied per plugin.",
		}, []string{"plugin"}),
		Bitrate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsflow_input_bitrate_bits_per_second",
			Help: "Current effective input bitrate.",
		}),
	}
	reg.MustRegister(
		m.PacketsTotal,
		m.DroppedTotal,
		m.NullifiedTotal,
		m.RestartsTotal,
		m.Bitrate,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for the control server's
// metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
