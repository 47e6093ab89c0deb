// Package allocation implements the allocation-reconciliation engine: given
// the allocations currently in effect and the allocations a policy wants, it
// computes the full target state and the minimal changeset that actually has
// to be written to the kernel control interfaces. Everything in this package
// is a pure transformation of immutable input maps; applying a changeset is
// the job of internal/resctrl.
package allocation

import (
	"fmt"

	"colloc-agent/internal/metrics"
	"colloc-agent/internal/workload"
)

// AllocationType identifies the resource axis an allocation value applies
// to. The set is closed: new axes are added here, never by introducing new
// value subtypes elsewhere.
type AllocationType string

const (
	QuotaAllocationType  AllocationType = "cpu_quota"
	SharesAllocationType AllocationType = "cpu_shares"
	RDTAllocationType    AllocationType = "rdt"
)

// Value is the closed set of allocation value variants. The concrete types
// are Scalar and *RDTAllocation; the changeset calculator and the metric
// encoder switch over these exhaustively.
type Value interface {
	isAllocationValue()
}

// Scalar is a plain numeric allocation in a kind-defined range, e.g. a
// normalized share fraction.
type Scalar float64

func (Scalar) isAllocationValue() {}

// Mergeable is implemented by allocation values that accumulate state over
// time and therefore have to be combined with the value previously in effect
// for the same resource group. MergeWithCurrent returns the value that should
// be in effect going forward and, separately, a changeset value carrying only
// the fields that actually changed (empty when nothing did).
type Mergeable interface {
	Value
	MergeWithCurrent(current Value) (target Value, changeset Value)
}

// Serializable is implemented by allocation values that know how to encode
// themselves as observability events.
type Serializable interface {
	Value
	GenerateMetrics() ([]metrics.Metric, error)
}

// TaskAllocations maps each allocated resource axis of one workload to its
// value. Keys need not cover all axes.
type TaskAllocations map[AllocationType]Value

// TasksAllocations holds allocations for all workloads. The same type is
// used for the current, desired, target and changeset roles.
type TasksAllocations map[workload.TaskID]TaskAllocations

// AllocationConfiguration holds the translation constants between normalized
// allocation values and the kernel interfaces.
type AllocationConfiguration struct {
	// Denominator for cpu_quota values, in milliseconds (cpu.cfs_period).
	CPUQuotaPeriod int `yaml:"cpu_quota_period"`

	// Shares written when a cpu_shares allocation is 0.0 / 1.0.
	CPUSharesMin int `yaml:"cpu_shares_min"`
	CPUSharesMax int `yaml:"cpu_shares_max"`

	// Schemata rows applied to the root resctrl group during initialization.
	// Empty leaves the kernel defaults (maximum available) untouched.
	DefaultRDTL3 string `yaml:"default_rdt_l3"`
	DefaultRDTMB string `yaml:"default_rdt_mb"`
}

func DefaultAllocationConfiguration() AllocationConfiguration {
	return AllocationConfiguration{
		CPUQuotaPeriod: 1000,
		CPUSharesMin:   2,
		CPUSharesMax:   10000,
	}
}

// UnsupportedValueTypeError reports an allocation map entry that is neither a
// recognized scalar nor a value implementing the known contracts. This is a
// programming error: processing stops instead of guessing an encoding.
type UnsupportedValueTypeError struct {
	AllocationType AllocationType
	Value          Value
}

func (e *UnsupportedValueTypeError) Error() string {
	return fmt.Sprintf("handling allocation type %q for value of type %T is not supported",
		e.AllocationType, e.Value)
}
