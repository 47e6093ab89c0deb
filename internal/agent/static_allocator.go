package agent

import (
	"colloc-agent/internal/allocation"
	"colloc-agent/internal/config"
	"colloc-agent/internal/detectors"
	"colloc-agent/internal/metrics"
	"colloc-agent/internal/platform"
)

// StaticAllocator requests one configured allocation for every discovered
// workload. It ignores measurements entirely; the reconciliation engine
// turns the repeated requests into no-ops once they are in effect.
type StaticAllocator struct {
	Config config.StaticAllocatorConfig
}

func (s *StaticAllocator) Allocate(
	_ *platform.Platform,
	_ detectors.TasksMeasurements,
	_ detectors.TasksResources,
	tasksLabels detectors.TasksLabels,
	_ allocation.TasksAllocations,
) (allocation.TasksAllocations, []detectors.Anomaly, []metrics.Metric) {
	result := allocation.TasksAllocations{}
	for taskID := range tasksLabels {
		taskAllocations := allocation.TaskAllocations{}
		if s.Config.CPUQuota != nil {
			taskAllocations[allocation.QuotaAllocationType] = allocation.Scalar(*s.Config.CPUQuota)
		}
		if s.Config.CPUShares != nil {
			taskAllocations[allocation.SharesAllocationType] = allocation.Scalar(*s.Config.CPUShares)
		}
		if s.Config.RDT != nil {
			taskAllocations[allocation.RDTAllocationType] = &allocation.RDTAllocation{
				Name: s.Config.RDT.Name,
				L3:   s.Config.RDT.L3,
				MB:   s.Config.RDT.MB,
			}
		}
		if len(taskAllocations) > 0 {
			result[taskID] = taskAllocations
		}
	}
	return result, nil, nil
}
