// Package metric exposes the monitor's Prometheus metrics.
//
// A single MetricsRegistry is created at startup and passed to components
// through their dependency structs. Components register their own collectors
// through the MetricsRegistrar interface; a nil registry means the component
// runs without metrics. Server exposes the registry on /metrics together
// with the aggregated health report on /health.
package metric
