package resctrl

import (
	"strings"

	"github.com/intel/goresctrl/pkg/rdt"

	"colloc-agent/internal/allocation"
)

// QuotaMicroseconds translates a normalized cpu_quota allocation into the
// cpu.cfs_quota_us value for the configured period. Values of 1.0 and above
// mean unthrottled (-1).
func QuotaMicroseconds(config allocation.AllocationConfiguration, value float64) int {
	if value >= 1.0 {
		return -1
	}
	if value < 0 {
		value = 0
	}
	return int(value * float64(config.CPUQuotaPeriod) * 1000)
}

// SharesValue translates a normalized cpu_shares allocation into a
// cpu.shares value: 1.0 maps to cpu_shares_max, the result never drops
// below cpu_shares_min.
func SharesValue(config allocation.AllocationConfiguration, value float64) int {
	shares := int(value * float64(config.CPUSharesMax))
	if shares < config.CPUSharesMin {
		shares = config.CPUSharesMin
	}
	return shares
}

// CatConfigFromRow converts an L3 schemata row into a goresctrl cache
// allocation, one entry per domain. An empty row converts to nil.
func CatConfigFromRow(row string) (rdt.CatConfig, error) {
	if row == "" {
		return nil, nil
	}
	domains, err := allocation.ParseSchemataRow(row)
	if err != nil {
		return nil, err
	}
	config := make(rdt.CatConfig, len(domains))
	for domainID, mask := range domains {
		config[domainID] = rdt.CacheIdCatConfig{
			Unified: rdt.CacheProportion(normalizeMask(mask)),
		}
	}
	return config, nil
}

// MbaConfigFromRow converts an MB schemata row into a goresctrl bandwidth
// allocation. An empty row converts to nil.
func MbaConfigFromRow(row string) (rdt.MbaConfig, error) {
	if row == "" {
		return nil, nil
	}
	domains, err := allocation.ParseSchemataRow(row)
	if err != nil {
		return nil, err
	}
	config := make(rdt.MbaConfig, len(domains))
	for domainID, value := range domains {
		config[domainID] = rdt.CacheIdMbaConfig{
			rdt.MbProportion(normalizeBandwidth(value)),
		}
	}
	return config, nil
}

func normalizeMask(mask string) string {
	if strings.HasPrefix(mask, "0x") {
		return mask
	}
	return "0x" + mask
}

// normalizeBandwidth forwards bare integers as percentages (the agent's
// convention) and passes through values that already carry a unit suffix
// like "2048MBps".
func normalizeBandwidth(value string) string {
	for _, r := range value {
		if r < '0' || r > '9' {
			return value
		}
	}
	return value + "%"
}
