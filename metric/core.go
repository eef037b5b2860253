package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the monitor.
const Namespace = "robotmon"

// Metrics contains the cross-component metrics. Components register their
// own domain metrics through MetricsRegistrar.
type Metrics struct {
	ComponentStatus *prometheus.GaugeVec
	HealthStatus    *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec

	TelemetryPublished *prometheus.CounterVec

	ControlCommands *prometheus.CounterVec
	ControlDuration *prometheus.HistogramVec
}

// NewMetrics creates the core metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"component"},
		),
		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by class",
			},
			[]string{"component", "class"},
		),
		TelemetryPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "telemetry",
				Name:      "published_total",
				Help:      "Telemetry records published to the output queues",
			},
			[]string{"kind"},
		),
		ControlCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "control",
				Name:      "commands_total",
				Help:      "Control socket commands by outcome",
			},
			[]string{"command", "result"},
		),
		ControlDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "control",
				Name:      "command_duration_seconds",
				Help:      "Round-trip time of control socket commands",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, .75, 1, 2},
			},
			[]string{"command"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ComponentStatus,
		m.HealthStatus,
		m.ErrorsTotal,
		m.TelemetryPublished,
		m.ControlCommands,
		m.ControlDuration,
	}
}

// RecordComponentStatus updates the lifecycle status of a component
func (m *Metrics) RecordComponentStatus(component string, status int) {
	m.ComponentStatus.WithLabelValues(component).Set(float64(status))
}

// RecordHealthStatus updates health check status
func (m *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.HealthStatus.WithLabelValues(component).Set(value)
}

// RecordError increments the error counter for the given class
func (m *Metrics) RecordError(component, class string) {
	m.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// RecordTelemetry counts a record handed to an output queue
func (m *Metrics) RecordTelemetry(kind string) {
	m.TelemetryPublished.WithLabelValues(kind).Inc()
}

// RecordControlCommand records the outcome and latency of a control command
func (m *Metrics) RecordControlCommand(command, result string, duration time.Duration) {
	m.ControlCommands.WithLabelValues(command, result).Inc()
	m.ControlDuration.WithLabelValues(command).Observe(duration.Seconds())
}
