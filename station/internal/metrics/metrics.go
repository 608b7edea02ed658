// Package metrics exposes station state to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hydrostack/hydrostack/station/internal/pacing"
)

// Metrics owns a private registry so tests and multiple stations in one
// process do not collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	reading       *prometheus.GaugeVec
	readingErrors *prometheus.CounterVec

	pacingOn     prometheus.Gauge
	pacingTotal  prometheus.Gauge
	pacingTarget prometheus.Gauge
	bottle       prometheus.Gauge
	aliquots     prometheus.Gauge

	triggers      prometheus.Counter
	triggerFails  prometheus.Counter
	deviceRetries *prometheus.CounterVec
	pictures      *prometheus.CounterVec
	uplinkDropped prometheus.Counter
}

// New registers all station collectors plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hydrostack_reading",
			Help: "Latest value of each logged measurement.",
		}, []string{"label"}),
		readingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydrostack_reading_errors_total",
			Help: "Measurements logged with bad quality.",
		}, []string{"label"}),
		pacingOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hydrostack_pacing_on",
			Help: "1 while sampling is enabled.",
		}),
		pacingTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hydrostack_pacing_total",
			Help: "Running volume or countdown toward the next sample.",
		}),
		pacingTarget: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hydrostack_pacing_threshold",
			Help: "Current pacing threshold.",
		}),
		bottle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hydrostack_sampler_bottle",
			Help: "Current sampler bottle number.",
		}),
		aliquots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hydrostack_sampler_aliquots_total",
			Help: "Aliquots taken since sampling was enabled.",
		}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydrostack_sampler_triggers_total",
			Help: "Successful sampler triggers.",
		}),
		triggerFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydrostack_sampler_trigger_failures_total",
			Help: "Sampler triggers that returned an error.",
		}),
		deviceRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydrostack_device_retries_total",
			Help: "Repeated device commands by device.",
		}, []string{"device"}),
		pictures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydrostack_camera_pictures_total",
			Help: "Camera captures by outcome.",
		}, []string{"outcome"}),
		uplinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydrostack_uplink_dropped_total",
			Help: "Uplink messages evicted from a full buffer.",
		}),
	}
	m.reg.MustRegister(
		m.reading, m.readingErrors,
		m.pacingOn, m.pacingTotal, m.pacingTarget, m.bottle, m.aliquots,
		m.triggers, m.triggerFails, m.deviceRetries, m.pictures, m.uplinkDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveReading records one logged measurement. Bad readings only bump the
// error counter so the gauge keeps the last good value.
func (m *Metrics) ObserveReading(label string, value float64, good bool) {
	if !good {
		m.readingErrors.WithLabelValues(label).Inc()
		return
	}
	m.reading.WithLabelValues(label).Set(value)
}

// ObservePacing copies the engine state into the pacing gauges.
func (m *Metrics) ObservePacing(s pacing.State) {
	on := 0.0
	if s.On {
		on = 1
	}
	m.pacingOn.Set(on)
	m.pacingTotal.Set(s.Total)
	m.pacingTarget.Set(s.Pacing)
	m.bottle.Set(float64(s.Bottle))
	m.aliquots.Set(float64(s.TotalAliquots))
}

// ObserveTrigger counts one sampler trigger attempt.
func (m *Metrics) ObserveTrigger(err error) {
	if err != nil {
		m.triggerFails.Inc()
		return
	}
	m.triggers.Inc()
}

// IncRetry counts one repeated command to device.
func (m *Metrics) IncRetry(device string) { m.deviceRetries.WithLabelValues(device).Inc() }

// ObservePicture counts one camera capture.
func (m *Metrics) ObservePicture(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	m.pictures.WithLabelValues(outcome).Inc()
}

// IncUplinkDropped counts one evicted uplink message.
func (m *Metrics) IncUplinkDropped() { m.uplinkDropped.Inc() }
