// Package metrics exposes bridge counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"gortlbridge/shared"
)

// Line outcomes counted by LineOutcome.
const (
	OutcomeEvent    = "event"
	OutcomeNoise    = "noise"
	OutcomeFiltered = "filtered"
)

// Metrics holds the bridge collectors. A nil *Metrics is valid and records
// nothing, so components can run without a registry.
type Metrics struct {
	registry *prometheus.Registry

	radioState  *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	lines       *prometheus.CounterVec
	published   *prometheus.CounterVec
	batteryLow  *prometheus.GaugeVec
	windows     prometheus.Gauge
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		radioState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gortlbridge",
			Subsystem: "radio",
			Name:      "state",
			Help:      "Current radio lifecycle state (1 for the active state).",
		}, []string{"radio", "state"}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gortlbridge",
			Subsystem: "radio",
			Name:      "transitions_total",
			Help:      "Radio state transitions by target state.",
		}, []string{"radio", "state"}),

		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gortlbridge",
			Subsystem: "pipeline",
			Name:      "lines_total",
			Help:      "Decoder output lines by outcome (event, noise, filtered).",
		}, []string{"radio", "outcome"}),

		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gortlbridge",
			Subsystem: "publisher",
			Name:      "events_total",
			Help:      "Events handed to the publishers by kind.",
		}, []string{"kind"}),

		batteryLow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gortlbridge",
			Subsystem: "battery",
			Name:      "low",
			Help:      "Debounced low battery alert per device (1 = low).",
		}, []string{"model", "device"}),

		windows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gortlbridge",
			Subsystem: "aggregate",
			Name:      "windows",
			Help:      "Live aggregation windows.",
		}),
	}

	m.registry.MustRegister(
		m.radioState, m.transitions, m.lines, m.published, m.batteryLow, m.windows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// LineOutcome counts one decoder line.
func (m *Metrics) LineOutcome(radioID, outcome string) {
	if m == nil {
		return
	}
	m.lines.WithLabelValues(radioID, outcome).Inc()
}

// SetWindows records the number of live aggregation windows.
func (m *Metrics) SetWindows(n int) {
	if m == nil {
		return
	}
	m.windows.Set(float64(n))
}

func (m *Metrics) observeStatus(ev shared.StatusEvent) {
	for _, s := range []shared.RadioState{
		shared.StateStarting, shared.StateScanning, shared.StateOnline,
		shared.StateError, shared.StateRebooting, shared.StateStopped,
	} {
		v := 0.0
		if s == ev.State {
			v = 1
		}
		m.radioState.WithLabelValues(ev.RadioID, s.String()).Set(v)
	}
	m.transitions.WithLabelValues(ev.RadioID, ev.State.String()).Inc()
	m.published.WithLabelValues("status").Inc()
}

// Instrument wraps a publisher so every event it receives is also counted.
func (m *Metrics) Instrument(next shared.Publisher) shared.Publisher {
	if m == nil {
		return next
	}
	return &instrumented{m: m, next: next}
}

type instrumented struct {
	m    *Metrics
	next shared.Publisher
}

func (p *instrumented) PublishStatus(ev shared.StatusEvent) {
	p.m.observeStatus(ev)
	p.next.PublishStatus(ev)
}

func (p *instrumented) PublishSensor(ev shared.SensorEvent) {
	p.m.published.WithLabelValues("sensor").Inc()
	p.next.PublishSensor(ev)
}

func (p *instrumented) PublishBattery(ev shared.BatteryEvent) {
	v := 0.0
	if ev.IsLow {
		v = 1
	}
	p.m.batteryLow.WithLabelValues(ev.DeviceModel, ev.DeviceID).Set(v)
	p.m.published.WithLabelValues("battery").Inc()
	p.next.PublishBattery(ev)
}
