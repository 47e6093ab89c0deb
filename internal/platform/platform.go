// Package platform collects a read-only snapshot of node topology and
// resctrl capability. The snapshot is handed to allocation policies through
// the Allocator contract; the reconciliation engine itself never interprets
// it.
package platform

import (
	"bufio"
	"fmt"
	"math/bits"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/intel/goresctrl/pkg/rdt"
	"github.com/sirupsen/logrus"

	"colloc-agent/internal/logging"
)

const resctrlInfoDir = "/sys/fs/resctrl/info"

// Platform describes the node at the start of one reconciliation cycle.
type Platform struct {
	Hostname string
	Sockets  int
	Cores    int
	CPUs     int

	RDT RDTInfo

	Timestamp time.Time
}

// RDTInfo describes resctrl capabilities.
type RDTInfo struct {
	Supported           bool
	MonitoringSupported bool

	// L3 cache allocation.
	CacheWays  int
	CBMMask    uint64
	MinCBMBits int
	NumClosids int

	// Memory bandwidth allocation.
	MBASupported  bool
	MinBandwidth  int
	BandwidthGran int
}

// Collect builds a fresh snapshot. Missing capability files degrade to zero
// values with a warning; discovery must not fail just because a node has no
// resctrl support.
func Collect() (*Platform, error) {
	logger := logging.GetLogger()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	p := &Platform{
		Hostname:  hostname,
		CPUs:      runtime.NumCPU(),
		Timestamp: time.Now(),
	}

	sockets, cores, err := readCPUTopology("/proc/cpuinfo")
	if err != nil {
		logger.WithError(err).Warn("Failed to read CPU topology, assuming single socket")
		sockets, cores = 1, p.CPUs
	}
	p.Sockets = sockets
	p.Cores = cores

	p.RDT = readRDTInfo(logger)

	return p, nil
}

func readCPUTopology(cpuinfoPath string) (sockets, cores int, err error) {
	f, err := os.Open(cpuinfoPath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open %s: %w", cpuinfoPath, err)
	}
	defer f.Close()

	physicalIDs := map[string]bool{}
	coreIDs := map[string]bool{}
	var physicalID string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "physical id":
			physicalID = value
			physicalIDs[value] = true
		case "core id":
			coreIDs[physicalID+"/"+value] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	if len(physicalIDs) == 0 {
		return 0, 0, fmt.Errorf("no physical id entries in %s", cpuinfoPath)
	}
	return len(physicalIDs), len(coreIDs), nil
}

func readRDTInfo(logger *logrus.Logger) RDTInfo {
	info := RDTInfo{
		MonitoringSupported: rdt.MonSupported(),
	}

	if _, err := os.Stat(resctrlInfoDir); err != nil {
		return info
	}
	info.Supported = true

	if mask, err := readHexFile(resctrlInfoDir + "/L3/cbm_mask"); err == nil {
		info.CBMMask = mask
		info.CacheWays = bits.OnesCount64(mask)
	} else {
		logger.WithError(err).Warn("Failed to read L3 cbm_mask")
	}
	if v, err := readIntFile(resctrlInfoDir + "/L3/min_cbm_bits"); err == nil {
		info.MinCBMBits = v
	}
	if v, err := readIntFile(resctrlInfoDir + "/L3/num_closids"); err == nil {
		info.NumClosids = v
	}

	if _, err := os.Stat(resctrlInfoDir + "/MB"); err == nil {
		info.MBASupported = true
		if v, err := readIntFile(resctrlInfoDir + "/MB/min_bandwidth"); err == nil {
			info.MinBandwidth = v
		}
		if v, err := readIntFile(resctrlInfoDir + "/MB/bandwidth_gran"); err == nil {
			info.BandwidthGran = v
		}
	}

	return info
}

func readHexFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 16, 64)
}

func readIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
