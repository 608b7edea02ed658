// Package metrics exposes server ingest and alerting counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry.
type Metrics struct {
	reg *prometheus.Registry

	messages    *prometheus.CounterVec
	rejected    prometheus.Counter
	alerts      *prometheus.CounterVec
	archiveDrop prometheus.Counter
}

// New registers the server collectors plus the Go runtime collectors.
// stations and clients are sampled on every scrape.
func New(stations, clients func() int) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydrostack_server_messages_total",
			Help: "Telemetry messages accepted, by kind.",
		}, []string{"kind"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydrostack_server_messages_rejected_total",
			Help: "Telemetry messages that failed to decode or route.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydrostack_server_alerts_total",
			Help: "Alert transitions by rule and state.",
		}, []string{"rule", "state"}),
		archiveDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydrostack_server_archive_dropped_total",
			Help: "Rows discarded because the archive queue overflowed.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messages, m.rejected, m.alerts, m.archiveDrop,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hydrostack_server_stations",
			Help: "Stations held in the status store.",
		}, func() float64 { return float64(stations()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hydrostack_server_ws_clients",
			Help: "Connected WebSocket clients.",
		}, func() float64 { return float64(clients()) }),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveMessage counts one message; err marks it rejected.
func (m *Metrics) ObserveMessage(kind string, err error) {
	if err != nil {
		m.rejected.Inc()
		return
	}
	m.messages.WithLabelValues(kind).Inc()
}

// ObserveAlert counts an alert transition.
func (m *Metrics) ObserveAlert(rule, state string) {
	m.alerts.WithLabelValues(rule, state).Inc()
}

// ArchiveDropped counts n discarded archive rows.
func (m *Metrics) ArchiveDropped(n int) {
	m.archiveDrop.Add(float64(n))
}
