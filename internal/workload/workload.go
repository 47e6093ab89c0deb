// Package workload defines the node-local view of a collocated workload and
// the discovery boundary that produces it.
package workload

import "context"

// TaskID is the orchestration-level identifier of a workload. It is opaque to
// the agent, unique among concurrently running workloads and stable for the
// lifetime of the agent process.
type TaskID = string

// Task describes one running workload on this node.
type Task struct {
	ID   TaskID
	Name string

	// PID of the workload's init process, used for resctrl group assignment.
	PID int

	// CgroupPath is the cpu-subsystem cgroup all of the workload's processes
	// reside in. Starts with a leading "/".
	CgroupPath string

	// Labels carries workload metadata from the orchestration layer.
	Labels map[string]string

	// Resources holds the resource limits from the workload definition,
	// e.g. "cpus" and "mem".
	Resources map[string]float64
}

// TaskSource discovers the workloads currently running on the node.
type TaskSource interface {
	GetTasks(ctx context.Context) ([]Task, error)
}
