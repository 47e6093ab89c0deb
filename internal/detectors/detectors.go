// Package detectors holds the boundary types exchanged with anomaly
// detection and allocation policies. The agent threads these through the
// Allocator contract without interpreting them.
package detectors

import (
	"sort"
	"strings"

	"colloc-agent/internal/metrics"
	"colloc-agent/internal/workload"
)

// Measurements maps a metric name to its most recent value for one workload.
type Measurements map[string]float64

type TasksMeasurements map[workload.TaskID]Measurements

type TasksResources map[workload.TaskID]map[string]float64

type TasksLabels map[workload.TaskID]map[string]string

// Anomaly is produced by a policy/detector when it observes misbehavior
// affecting one or more workloads.
type Anomaly interface {
	// Type names the anomaly kind, e.g. "contention".
	Type() string

	// TaskIDs lists the workloads involved in the anomaly.
	TaskIDs() []workload.TaskID
}

// ConvertAnomaliesToMetrics encodes anomalies as observability events, one
// per affected workload. Each event is labeled with the full sorted set of
// involved workloads so the group can be correlated downstream.
func ConvertAnomaliesToMetrics(anomalies []Anomaly) []metrics.Metric {
	var result []metrics.Metric
	for _, anomaly := range anomalies {
		taskIDs := append([]workload.TaskID(nil), anomaly.TaskIDs()...)
		sort.Strings(taskIDs)
		involved := strings.Join(taskIDs, ",")
		for _, taskID := range taskIDs {
			result = append(result, metrics.Metric{
				Name:  "anomaly",
				Value: 1,
				Type:  metrics.CounterType,
				Labels: map[string]string{
					"type":     anomaly.Type(),
					"task_id":  taskID,
					"task_ids": involved,
				},
			})
		}
	}
	return result
}
