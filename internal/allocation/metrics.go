package allocation

import (
	"fmt"
	"sort"

	"colloc-agent/internal/metrics"
)

// TasksAllocationsToMetrics flattens a full allocation map into the flat
// list of observability events that gets persisted. Serializable values
// encode themselves and are additionally labeled with the owning workload;
// scalars get the default encoding of one gauge labeled with the allocation
// type. Any other value is a programming error and aborts encoding rather
// than silently dropping data. Output order is deterministic.
func TasksAllocationsToMetrics(tasksAllocations TasksAllocations) ([]metrics.Metric, error) {
	taskIDs := make([]string, 0, len(tasksAllocations))
	for taskID := range tasksAllocations {
		taskIDs = append(taskIDs, taskID)
	}
	sort.Strings(taskIDs)

	var result []metrics.Metric
	for _, taskID := range taskIDs {
		taskAllocations := tasksAllocations[taskID]

		allocationTypes := make([]string, 0, len(taskAllocations))
		for allocationType := range taskAllocations {
			allocationTypes = append(allocationTypes, string(allocationType))
		}
		sort.Strings(allocationTypes)

		for _, allocationType := range allocationTypes {
			value := taskAllocations[AllocationType(allocationType)]
			switch value := value.(type) {
			case Serializable:
				valueMetrics, err := value.GenerateMetrics()
				if err != nil {
					return nil, fmt.Errorf("task %s: %w", taskID, err)
				}
				for _, m := range valueMetrics {
					result = append(result, m.WithLabel("task_id", taskID))
				}

			case Scalar:
				result = append(result, metrics.Metric{
					Name:  "allocation",
					Value: float64(value),
					Type:  metrics.GaugeType,
					Labels: map[string]string{
						"allocation_type": allocationType,
						"task_id":         taskID,
					},
				})

			default:
				return nil, &UnsupportedValueTypeError{
					AllocationType: AllocationType(allocationType),
					Value:          value,
				}
			}
		}
	}

	return result, nil
}
