package allocation

import (
	"colloc-agent/internal/detectors"
	"colloc-agent/internal/metrics"
	"colloc-agent/internal/platform"
)

// Allocator is the seam between the reconciliation engine and whatever
// policy decides desired allocations. The control loop calls Allocate once
// per cycle; the returned allocations are reconciled against the current
// state with CalculateTasksAllocationsChangeset and only the resulting
// changeset is written out. Implementations are free to ignore any of the
// context arguments.
type Allocator interface {
	Allocate(
		platform *platform.Platform,
		tasksMeasurements detectors.TasksMeasurements,
		tasksResources detectors.TasksResources,
		tasksLabels detectors.TasksLabels,
		tasksAllocations TasksAllocations,
	) (TasksAllocations, []detectors.Anomaly, []metrics.Metric)
}

// NOPAllocator requests nothing, reports nothing.
type NOPAllocator struct{}

func (NOPAllocator) Allocate(
	_ *platform.Platform,
	_ detectors.TasksMeasurements,
	_ detectors.TasksResources,
	_ detectors.TasksLabels,
	_ TasksAllocations,
) (TasksAllocations, []detectors.Anomaly, []metrics.Metric) {
	return TasksAllocations{}, nil, nil
}
