// Package agent runs the reconciliation control loop: once per fixed
// period it discovers workloads, collects measurements, asks the configured
// policy for desired allocations, reconciles them against the state in
// effect, applies the resulting changeset and exports the target state as
// metrics. Cycles are strictly sequential; the engine below never sees
// overlapping invocations.
package agent

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"colloc-agent/internal/allocation"
	"colloc-agent/internal/collectors"
	"colloc-agent/internal/config"
	"colloc-agent/internal/detectors"
	"colloc-agent/internal/logging"
	"colloc-agent/internal/metrics"
	"colloc-agent/internal/platform"
	"colloc-agent/internal/workload"
)

// ChangesetApplier writes a changeset to the kernel control interfaces.
// It receives only changesets, never target state.
type ChangesetApplier interface {
	Apply(changeset allocation.TasksAllocations, tasks map[workload.TaskID]workload.Task) error
}

// MetricsSink persists one cycle's metric stream.
type MetricsSink interface {
	WriteMetrics(ctx context.Context, ms []metrics.Metric) error
}

// MeasurementsSource produces per-workload runtime measurements.
type MeasurementsSource interface {
	Collect(tasks []workload.Task) detectors.TasksMeasurements
}

type Agent struct {
	cfg          *config.AgentConfig
	node         workload.TaskSource
	measurements MeasurementsSource
	allocator    allocation.Allocator
	applier      ChangesetApplier
	sink         MetricsSink
	logger       *logrus.Logger

	// Allocations currently in effect, handed to the engine each cycle and
	// replaced by the engine's target output.
	current allocation.TasksAllocations
}

// New wires an agent. sink may be nil (metrics export disabled).
func New(cfg *config.AgentConfig, node workload.TaskSource, measurements MeasurementsSource,
	allocator allocation.Allocator, applier ChangesetApplier, sink MetricsSink) *Agent {
	return &Agent{
		cfg:          cfg,
		node:         node,
		measurements: measurements,
		allocator:    allocator,
		applier:      applier,
		sink:         sink,
		logger:       logging.GetLogger(),
		current:      allocation.TasksAllocations{},
	}
}

// Run executes reconciliation cycles until the context is canceled. A
// failing cycle is logged and the loop continues with the next tick.
func (a *Agent) Run(ctx context.Context) error {
	interval := a.cfg.GetInterval()
	a.logger.WithField("interval", interval).Info("Starting reconciliation loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := a.runCycle(ctx); err != nil {
			a.logger.WithError(err).Error("Reconciliation cycle failed")
		}
		select {
		case <-ctx.Done():
			a.logger.Info("Reconciliation loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Agent) runCycle(ctx context.Context) error {
	start := time.Now()

	tasks, err := a.node.GetTasks(ctx)
	if err != nil {
		return err
	}

	tasksByID := make(map[workload.TaskID]workload.Task, len(tasks))
	tasksLabels := detectors.TasksLabels{}
	tasksResources := detectors.TasksResources{}
	for _, task := range tasks {
		tasksByID[task.ID] = task
		tasksLabels[task.ID] = task.Labels
		tasksResources[task.ID] = task.Resources
	}

	// Allocations of workloads that are gone must not be carried forward:
	// the engine would keep them alive forever.
	for taskID := range a.current {
		if _, alive := tasksByID[taskID]; !alive {
			delete(a.current, taskID)
		}
	}

	platformInfo, err := platform.Collect()
	if err != nil {
		return err
	}

	tasksMeasurements := a.measurements.Collect(tasks)

	newAllocations, anomalies, policyMetrics := a.allocator.Allocate(
		platformInfo, tasksMeasurements, tasksResources, tasksLabels, a.current)

	target, changeset, err := allocation.CalculateTasksAllocationsChangeset(a.current, newAllocations)
	if err != nil {
		return err
	}

	if len(changeset) > 0 {
		if a.cfg.Agent.DryRun {
			a.logger.WithField("tasks", len(changeset)).Info("Dry run, skipping changeset application")
		} else if err := a.applier.Apply(changeset, tasksByID); err != nil {
			// Keep the previous state so the failed entries are retried as
			// part of the next cycle's changeset.
			a.logger.WithError(err).Error("Failed to apply allocation changeset")
			return err
		}
	}
	a.current = target

	allocationMetrics, err := allocation.TasksAllocationsToMetrics(target)
	if err != nil {
		return err
	}
	cycleMetrics := append(allocationMetrics, policyMetrics...)
	cycleMetrics = append(cycleMetrics, detectors.ConvertAnomaliesToMetrics(anomalies)...)

	if a.sink != nil && len(cycleMetrics) > 0 {
		if err := a.sink.WriteMetrics(ctx, cycleMetrics); err != nil {
			a.logger.WithError(err).Warn("Failed to export metrics")
		}
	}

	a.logger.WithFields(logrus.Fields{
		"tasks":           len(tasks),
		"tasks_changeset": len(changeset),
		"anomalies":       len(anomalies),
		"metrics":         len(cycleMetrics),
		"duration":        time.Since(start),
	}).Debug("Reconciliation cycle finished")

	return nil
}

// CurrentAllocations returns a copy of the allocations in effect, mainly
// for inspection in tests.
func (a *Agent) CurrentAllocations() allocation.TasksAllocations {
	snapshot := make(allocation.TasksAllocations, len(a.current))
	for taskID, taskAllocations := range a.current {
		taskCopy := make(allocation.TaskAllocations, len(taskAllocations))
		for allocationType, value := range taskAllocations {
			taskCopy[allocationType] = value
		}
		snapshot[taskID] = taskCopy
	}
	return snapshot
}

// compile-time check that the perf manager satisfies the boundary.
var _ MeasurementsSource = (*collectors.Manager)(nil)
