package allocation

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"colloc-agent/internal/logging"
)

// FloatValuesChangeDetection is the relative tolerance used to decide
// whether a scalar allocation actually changed. Changes below it are treated
// as no-ops so the kernel interfaces are not rewritten for float noise.
const FloatValuesChangeDetection = 1e-2

func isRelativelyClose(a, b, relTol float64) bool {
	return math.Abs(a-b) <= relTol*math.Max(math.Abs(a), math.Abs(b))
}

// CalculateTaskAllocationsChangeset reconciles one workload's desired
// allocations against the ones currently in effect. It returns the full
// target state (current overlaid with the desired values that survived
// change detection) and the minimal changeset that has to be written.
// Axes present only in current are carried into target untouched and never
// appear in the changeset. Neither input is mutated.
func CalculateTaskAllocationsChangeset(currentTask, newTask TaskAllocations) (TaskAllocations, TaskAllocations, error) {
	target := make(TaskAllocations, len(currentTask)+len(newTask))
	for allocationType, value := range currentTask {
		target[allocationType] = value
	}
	changeset := TaskAllocations{}

	for allocationType, newValue := range newTask {
		switch newValue := newValue.(type) {
		case Mergeable:
			// The only mergeable axis today is rdt, so the merge partner is
			// looked up under the rdt key regardless of the key the new
			// value arrived under. A second mergeable axis would have to
			// make this association explicit.
			targetValue, changesetValue := newValue.MergeWithCurrent(currentTask[RDTAllocationType])
			target[RDTAllocationType] = targetValue
			if rdtChangeset, ok := changesetValue.(*RDTAllocation); ok && !rdtChangeset.IsEmpty() {
				changeset[RDTAllocationType] = rdtChangeset
			}

		case Scalar:
			changed := true
			if currentValue, ok := currentTask[allocationType].(Scalar); ok {
				changed = !isRelativelyClose(float64(currentValue), float64(newValue),
					FloatValuesChangeDetection)
			}
			if changed {
				target[allocationType] = newValue
				changeset[allocationType] = newValue
			}

		default:
			return nil, nil, &UnsupportedValueTypeError{AllocationType: allocationType, Value: newValue}
		}
	}

	if len(changeset) > 0 {
		logging.GetReconcilerLogger().WithFields(logrus.Fields{
			"current":   currentTask,
			"new":       newTask,
			"target":    target,
			"changeset": changeset,
		}).Trace("calculated task allocations changeset")
	}

	return target, changeset, nil
}

// CalculateTasksAllocationsChangeset reconciles desired allocations against
// current ones across all workloads.
//
// The target output is the union of both inputs with conflicts resolved in
// favor of newTasks (via the per-workload merge). The changeset output holds
// only what is not already in effect: workloads present in both inputs
// contribute their per-workload changeset when non-empty, workloads known
// only from currentTasks are carried forward without a changeset entry, and
// workloads appearing for the first time contribute their desired
// allocations verbatim as both target and changeset.
//
// The result does not depend on map iteration order.
func CalculateTasksAllocationsChangeset(currentTasks, newTasks TasksAllocations) (TasksAllocations, TasksAllocations, error) {
	target := make(TasksAllocations, len(currentTasks)+len(newTasks))
	changeset := TasksAllocations{}

	for taskID, currentTask := range currentTasks {
		newTask, requested := newTasks[taskID]
		if !requested {
			target[taskID] = currentTask
			continue
		}
		targetTask, taskChangeset, err := CalculateTaskAllocationsChangeset(currentTask, newTask)
		if err != nil {
			return nil, nil, fmt.Errorf("task %s: %w", taskID, err)
		}
		target[taskID] = targetTask
		if len(taskChangeset) > 0 {
			changeset[taskID] = taskChangeset
		}
	}

	// First-time allocations have nothing to merge against.
	for taskID, newTask := range newTasks {
		if _, exists := currentTasks[taskID]; exists {
			continue
		}
		target[taskID] = newTask
		changeset[taskID] = newTask
	}

	logging.GetReconcilerLogger().WithFields(logrus.Fields{
		"tasks":           len(target),
		"tasks_changeset": len(changeset),
	}).Trace("calculated tasks allocations changeset")

	return target, changeset, nil
}
