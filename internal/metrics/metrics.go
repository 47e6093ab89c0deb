// Package metrics defines the flat observability event produced by the
// agent. Every externally visible piece of allocation state is encoded as a
// list of these before being handed to a storage backend.
package metrics

// MetricType mirrors the Prometheus notion of a metric kind.
type MetricType string

const (
	GaugeType   MetricType = "gauge"
	CounterType MetricType = "counter"
)

// Metric is a single observability event: a named value with labels.
type Metric struct {
	Name   string
	Value  float64
	Type   MetricType
	Labels map[string]string
}

// WithLabel returns the metric with an additional label set. The label map is
// created on demand so zero-value metrics stay usable.
func (m Metric) WithLabel(key, value string) Metric {
	labels := make(map[string]string, len(m.Labels)+1)
	for k, v := range m.Labels {
		labels[k] = v
	}
	labels[key] = value
	m.Labels = labels
	return m
}
