package console

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/benkokes/elite-EI65-robot-controller/metric"
)

// Metrics holds Prometheus metrics for the console input
type Metrics struct {
	bytesReceived  prometheus.Counter
	chunksReceived prometheus.Counter
	extractions    *prometheus.CounterVec
	parseErrors    prometheus.Counter
	reconnects     prometheus.Counter
	connected      prometheus.Gauge
	lastActivity   prometheus.Gauge
}

// newMetrics creates and registers console metrics. A nil registry disables them.
func newMetrics(registry *metric.MetricsRegistry, name string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"input": name}
	m := &Metrics{
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "console", Name: "bytes_received_total",
			ConstLabels: labels, Help: "Bytes read from the console stream",
		}),
		chunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "console", Name: "chunks_received_total",
			ConstLabels: labels, Help: "Reads returned by the console stream",
		}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "console", Name: "extractions_total",
			ConstLabels: labels, Help: "Telemetry records extracted from the screen",
		}, []string{"kind"}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "console", Name: "parse_errors_total",
			ConstLabels: labels, Help: "Joint readouts with a malformed numeric field",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "console", Name: "reconnects_total",
			ConstLabels: labels, Help: "Successful reconnects after a lost session",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "console", Name: "connected",
			ConstLabels: labels, Help: "1 while the SSH session is established",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "console", Name: "last_activity_timestamp",
			ConstLabels: labels, Help: "Unix timestamp of the last console read",
		}),
	}

	component := "console_" + name
	steps := []func() error{
		func() error { return registry.RegisterCounter(component, "bytes_received", m.bytesReceived) },
		func() error { return registry.RegisterCounter(component, "chunks_received", m.chunksReceived) },
		func() error { return registry.RegisterCounterVec(component, "extractions", m.extractions) },
		func() error { return registry.RegisterCounter(component, "parse_errors", m.parseErrors) },
		func() error { return registry.RegisterCounter(component, "reconnects", m.reconnects) },
		func() error { return registry.RegisterGauge(component, "connected", m.connected) },
		func() error { return registry.RegisterGauge(component, "last_activity", m.lastActivity) },
	}
	for _, register := range steps {
		if err := register(); err != nil {
			return nil, err
		}
	}
	return m, nil
}
