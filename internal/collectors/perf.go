// Package collectors produces per-workload runtime measurements for the
// allocation policy. Counters are read per cgroup through the perf
// subsystem.
package collectors

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/elastic/go-perf"

	"colloc-agent/internal/detectors"
	"colloc-agent/internal/logging"
)

type eventState struct {
	value   uint64
	enabled time.Duration
	running time.Duration
}

// PerfCollector reads a small set of cgroup-scoped hardware counters for one
// workload. Collect returns the delta since the previous call, scaled for
// counter multiplexing.
type PerfCollector struct {
	events     []*perf.Event
	cgroupFile *os.File

	lastState map[int]*eventState
	mutex     sync.Mutex
}

var hardwareCounters = []perf.HardwareCounter{
	perf.CPUCycles,
	perf.Instructions,
	perf.CacheMisses,
	perf.CacheReferences,
}

// measurement names as exposed to allocation policies, indexed by the
// go-perf event label.
var counterNames = map[string]string{
	"cpu-cycles":       "cycles",
	"instructions":     "instructions",
	"cache-misses":     "cache_misses",
	"cache-references": "cache_references",
}

func NewPerfCollector(cgroupFsPath string) (*PerfCollector, error) {
	logger := logging.GetLogger()

	cgroupFile, err := os.Open(cgroupFsPath)
	if err != nil {
		logger.WithField("cgroup_path", cgroupFsPath).WithError(err).Error("Failed to open cgroup path")
		return nil, err
	}

	collector := &PerfCollector{
		cgroupFile: cgroupFile,
		lastState:  make(map[int]*eventState),
	}

	// Cgroup events have to be opened per CPU.
	for cpu := 0; cpu < runtime.NumCPU(); cpu++ {
		for _, counter := range hardwareCounters {
			attr := &perf.Attr{}
			counter.Configure(attr)
			attr.CountFormat.Enabled = true
			attr.CountFormat.Running = true
			event, err := perf.OpenCGroup(attr, int(cgroupFile.Fd()), cpu, nil)
			if err != nil {
				collector.Close()
				return nil, fmt.Errorf("failed to open perf event %v on cpu %d: %w", counter, cpu, err)
			}
			collector.events = append(collector.events, event)
		}
	}

	for _, event := range collector.events {
		if err := event.Enable(); err != nil {
			collector.Close()
			return nil, fmt.Errorf("failed to enable perf event: %w", err)
		}
	}

	return collector, nil
}

// Collect aggregates counter deltas across CPUs since the last call.
func (pc *PerfCollector) Collect() detectors.Measurements {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	sums := make(map[string]uint64)
	for i, event := range pc.events {
		count, err := event.ReadCount()
		if err != nil {
			continue
		}

		currentValue := uint64(count.Value)
		if last, exists := pc.lastState[i]; exists {
			deltaValue := currentValue - last.value
			deltaEnabled := count.Enabled - last.enabled
			deltaRunning := count.Running - last.running

			// Multiplexing correction: scale by enabled/running time.
			scaledDelta := deltaValue
			if deltaRunning > 0 && deltaEnabled > 0 && deltaRunning != deltaEnabled {
				scaledDelta = uint64(float64(deltaValue) * float64(deltaEnabled) / float64(deltaRunning))
			}
			sums[count.Label] += scaledDelta
		}

		pc.lastState[i] = &eventState{
			value:   currentValue,
			enabled: count.Enabled,
			running: count.Running,
		}
	}

	measurements := detectors.Measurements{}
	for label, name := range counterNames {
		if value, ok := sums[label]; ok {
			measurements[name] = float64(value)
		}
	}
	return measurements
}

func (pc *PerfCollector) Close() {
	for _, event := range pc.events {
		if event != nil {
			event.Close()
		}
	}
	pc.events = nil

	if pc.cgroupFile != nil {
		pc.cgroupFile.Close()
		pc.cgroupFile = nil
	}
}
