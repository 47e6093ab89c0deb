// Package resctrl is the downstream sink of the reconciliation engine: it
// writes allocation changesets to the kernel control interfaces, cgroupfs
// for CPU quota/shares and the resctrl filesystem (through goresctrl) for
// cache and memory bandwidth partitioning. It must only ever receive
// changesets, never full target state, so unchanged control files are left
// alone.
package resctrl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/intel/goresctrl/pkg/rdt"
	"github.com/sirupsen/logrus"

	"colloc-agent/internal/allocation"
	"colloc-agent/internal/logging"
	"colloc-agent/internal/workload"
)

const defaultCPUCgroupRoot = "/sys/fs/cgroup/cpu"

// Applier applies changesets. It keeps the directives last applied per
// resctrl group so partial changesets (only L3, only MB) can be folded into
// a full goresctrl configuration update.
type Applier struct {
	logger *logrus.Logger
	config allocation.AllocationConfiguration

	mu            sync.Mutex
	managedGroups map[string]*allocation.RDTAllocation
	cgroupRoot    string
	initialized   bool
}

func NewApplier(config allocation.AllocationConfiguration) *Applier {
	return &Applier{
		logger:        logging.GetLogger(),
		config:        config,
		managedGroups: make(map[string]*allocation.RDTAllocation),
		cgroupRoot:    defaultCPUCgroupRoot,
	}
}

// Initialize discovers the resctrl filesystem and applies the configured
// root-group defaults.
func (a *Applier) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := rdt.Initialize(""); err != nil {
		return fmt.Errorf("failed to initialize resctrl: %w", err)
	}
	a.initialized = true

	if a.config.DefaultRDTL3 != "" || a.config.DefaultRDTMB != "" {
		if err := a.applyManagedGroupsLocked(true); err != nil {
			return fmt.Errorf("failed to apply root group defaults: %w", err)
		}
	}

	a.logger.Info("Resctrl applier initialized")
	return nil
}

// Apply writes one changeset. Failures are applied per workload: a broken
// entry is logged and reported but does not stop the remaining entries.
func (a *Applier) Apply(changeset allocation.TasksAllocations, tasks map[workload.TaskID]workload.Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return fmt.Errorf("resctrl applier not initialized")
	}

	type assignment struct {
		pid   int
		group string
	}
	var errs []error
	var assignments []assignment
	rdtDirty := false

	for taskID, taskChangeset := range changeset {
		task, known := tasks[taskID]
		if !known {
			a.logger.WithField("task_id", taskID).Warn("Changeset entry for unknown workload, skipping")
			continue
		}

		for allocationType, value := range taskChangeset {
			switch allocationType {
			case allocation.QuotaAllocationType:
				scalar, ok := value.(allocation.Scalar)
				if !ok {
					errs = append(errs, &allocation.UnsupportedValueTypeError{AllocationType: allocationType, Value: value})
					continue
				}
				quota := QuotaMicroseconds(a.config, float64(scalar))
				if err := a.writeCgroupValue(task.CgroupPath, "cpu.cfs_quota_us", strconv.Itoa(quota)); err != nil {
					errs = append(errs, fmt.Errorf("task %s: %w", taskID, err))
				}

			case allocation.SharesAllocationType:
				scalar, ok := value.(allocation.Scalar)
				if !ok {
					errs = append(errs, &allocation.UnsupportedValueTypeError{AllocationType: allocationType, Value: value})
					continue
				}
				shares := SharesValue(a.config, float64(scalar))
				if err := a.writeCgroupValue(task.CgroupPath, "cpu.shares", strconv.Itoa(shares)); err != nil {
					errs = append(errs, fmt.Errorf("task %s: %w", taskID, err))
				}

			case allocation.RDTAllocationType:
				rdtAlloc, ok := value.(*allocation.RDTAllocation)
				if !ok {
					errs = append(errs, &allocation.UnsupportedValueTypeError{AllocationType: allocationType, Value: value})
					continue
				}
				group := rdtAlloc.Name
				if group == "" {
					group = taskID
				}
				a.upsertGroupLocked(group, rdtAlloc)
				rdtDirty = true
				assignments = append(assignments, assignment{pid: task.PID, group: group})

			default:
				errs = append(errs, &allocation.UnsupportedValueTypeError{AllocationType: allocationType, Value: value})
			}
		}
	}

	if rdtDirty {
		if err := a.applyManagedGroupsLocked(false); err != nil {
			errs = append(errs, fmt.Errorf("failed to apply resctrl config: %w", err))
		} else {
			for _, as := range assignments {
				class, ok := rdt.GetClass(as.group)
				if !ok {
					errs = append(errs, fmt.Errorf("resctrl group %s was not created", as.group))
					continue
				}
				if err := class.AddPids(strconv.Itoa(as.pid)); err != nil {
					errs = append(errs, fmt.Errorf("failed to assign pid %d to group %s: %w", as.pid, as.group, err))
				}
			}
		}
	}

	return errors.Join(errs...)
}

// upsertGroupLocked folds a (possibly partial) changeset value into the
// group's accumulated directives.
func (a *Applier) upsertGroupLocked(group string, changeset *allocation.RDTAllocation) {
	merged := allocation.RDTAllocation{Name: group}
	if existing, ok := a.managedGroups[group]; ok {
		merged = *existing
	}
	if changeset.L3 != "" {
		merged.L3 = changeset.L3
	}
	if changeset.MB != "" {
		merged.MB = changeset.MB
	}
	a.managedGroups[group] = &merged
}

func (a *Applier) applyManagedGroupsLocked(force bool) error {
	classes := make(map[string]struct {
		L2Allocation rdt.CatConfig         `json:"l2Allocation"`
		L3Allocation rdt.CatConfig         `json:"l3Allocation"`
		MBAllocation rdt.MbaConfig         `json:"mbAllocation"`
		Kubernetes   rdt.KubernetesOptions `json:"kubernetes"`
	}, len(a.managedGroups))

	for group, alloc := range a.managedGroups {
		l3Config, err := CatConfigFromRow(alloc.L3)
		if err != nil {
			return fmt.Errorf("group %s: %w", group, err)
		}
		mbConfig, err := MbaConfigFromRow(alloc.MB)
		if err != nil {
			return fmt.Errorf("group %s: %w", group, err)
		}
		classes[group] = struct {
			L2Allocation rdt.CatConfig         `json:"l2Allocation"`
			L3Allocation rdt.CatConfig         `json:"l3Allocation"`
			MBAllocation rdt.MbaConfig         `json:"mbAllocation"`
			Kubernetes   rdt.KubernetesOptions `json:"kubernetes"`
		}{
			L3Allocation: l3Config,
			MBAllocation: mbConfig,
		}
	}

	rootL3 := rdt.CatConfig{
		rdt.CacheIdAll: rdt.CacheIdCatConfig{Unified: rdt.CacheProportion("100%")},
	}
	if a.config.DefaultRDTL3 != "" {
		c, err := CatConfigFromRow(a.config.DefaultRDTL3)
		if err != nil {
			return fmt.Errorf("default_rdt_l3: %w", err)
		}
		rootL3 = c
	}
	rootMB := rdt.MbaConfig{
		rdt.CacheIdAll: rdt.CacheIdMbaConfig{rdt.MbProportion("100%")},
	}
	if a.config.DefaultRDTMB != "" {
		c, err := MbaConfigFromRow(a.config.DefaultRDTMB)
		if err != nil {
			return fmt.Errorf("default_rdt_mb: %w", err)
		}
		rootMB = c
	}

	config := &rdt.Config{
		Partitions: map[string]struct {
			L2Allocation rdt.CatConfig `json:"l2Allocation"`
			L3Allocation rdt.CatConfig `json:"l3Allocation"`
			MBAllocation rdt.MbaConfig `json:"mbAllocation"`
			Classes      map[string]struct {
				L2Allocation rdt.CatConfig         `json:"l2Allocation"`
				L3Allocation rdt.CatConfig         `json:"l3Allocation"`
				MBAllocation rdt.MbaConfig         `json:"mbAllocation"`
				Kubernetes   rdt.KubernetesOptions `json:"kubernetes"`
			} `json:"classes"`
		}{
			"": {
				L3Allocation: rootL3,
				MBAllocation: rootMB,
				Classes:      classes,
			},
		},
	}

	if err := rdt.SetConfig(config, force); err != nil {
		return fmt.Errorf("failed to set resctrl config: %w", err)
	}

	a.logger.WithField("groups", len(a.managedGroups)).Debug("Applied resctrl configuration")
	return nil
}

func (a *Applier) writeCgroupValue(cgroupPath, file, value string) error {
	path := filepath.Join(a.cgroupRoot, cgroupPath, file)
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	a.logger.WithFields(logrus.Fields{
		"path":  path,
		"value": value,
	}).Debug("Wrote cgroup control file")
	return nil
}
