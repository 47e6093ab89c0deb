package collectors

import (
	"path/filepath"

	"github.com/sirupsen/logrus"

	"colloc-agent/internal/detectors"
	"colloc-agent/internal/logging"
	"colloc-agent/internal/workload"
)

const defaultCgroupFsRoot = "/sys/fs/cgroup/perf_event"

// Manager owns one PerfCollector per live workload, creating collectors for
// newly discovered workloads and closing the ones whose workload is gone.
type Manager struct {
	cgroupFsRoot string
	collectors   map[workload.TaskID]*PerfCollector
	logger       *logrus.Logger
}

func NewManager() *Manager {
	return &Manager{
		cgroupFsRoot: defaultCgroupFsRoot,
		collectors:   make(map[workload.TaskID]*PerfCollector),
		logger:       logging.GetLogger(),
	}
}

// Collect returns measurements for every workload it can observe. A workload
// whose collector cannot be created (e.g. perf unavailable in the
// environment) is reported without measurements rather than failing the
// cycle.
func (m *Manager) Collect(tasks []workload.Task) detectors.TasksMeasurements {
	live := make(map[workload.TaskID]bool, len(tasks))
	measurements := detectors.TasksMeasurements{}

	for _, task := range tasks {
		live[task.ID] = true

		collector, ok := m.collectors[task.ID]
		if !ok {
			var err error
			collector, err = NewPerfCollector(filepath.Join(m.cgroupFsRoot, task.CgroupPath))
			if err != nil {
				m.logger.WithField("task_id", task.ID).WithError(err).Debug("Perf collector unavailable for workload")
				measurements[task.ID] = detectors.Measurements{}
				continue
			}
			m.collectors[task.ID] = collector
		}
		measurements[task.ID] = collector.Collect()
	}

	for taskID, collector := range m.collectors {
		if !live[taskID] {
			collector.Close()
			delete(m.collectors, taskID)
		}
	}

	return measurements
}

func (m *Manager) Close() {
	for taskID, collector := range m.collectors {
		collector.Close()
		delete(m.collectors, taskID)
	}
}
