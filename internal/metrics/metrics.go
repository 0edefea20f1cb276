// Package metrics counts relayed frames and finished calls for prometheus
// and for the daemon's periodic stats log.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Avicted/callrelay/internal/media"
)

// Metrics implements call.Recorder. A nil *Metrics records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	frames    *prometheus.CounterVec
	calls     *prometheus.CounterVec
	connected prometheus.Gauge
	cpu       prometheus.Gauge
	stats     *Stats
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_frames_total",
			Help: "Media frames handled by the relay",
		}, []string{"direction", "kind", "result"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_calls_total",
			Help: "Finished calls by outcome",
		}, []string{"outcome"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "callrelay_signaling_connected",
			Help: "1 while the signaling socket is connected",
		}),
		cpu: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "callrelay_daemon_cpu_percent",
			Help: "CPU share of the daemon process over the last sample interval",
		}),
		stats: NewStats(),
	}
	m.registry.MustRegister(
		m.frames,
		m.calls,
		m.connected,
		m.cpu,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) FrameRelayed(direction string, kind media.Kind, result string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = media.KindUnknown
	}
	m.frames.WithLabelValues(direction, string(kind), result).Inc()
	m.stats.recordFrame(direction, result)
}

func (m *Metrics) CallFinished(outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

func (m *Metrics) SetCPUPercent(percent float64) {
	if m == nil {
		return
	}
	m.cpu.Set(percent)
}

func (m *Metrics) Stats() *Stats {
	if m == nil {
		return nil
	}
	return m.stats
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
