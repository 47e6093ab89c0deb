package allocation

import (
	"fmt"
	"sort"
	"strconv"

	"colloc-agent/internal/logging"
	"colloc-agent/internal/metrics"
)

// RDTAllocation carries the cache-way and memory-bandwidth partition
// directives for a single resctrl control group. It is a value object:
// equality is structural and merging produces new instances.
type RDTAllocation struct {
	// Name of the control group. Empty means the workload's own default
	// group (the task id).
	Name string

	// L3 is a schemata row for cache-way allocation, e.g. "L3:0=ff;1=ff".
	// Empty means "do not change cache partitioning".
	L3 string

	// MB is a schemata row for memory bandwidth, e.g. "MB:0=20;1=50".
	// Empty means "do not change bandwidth partitioning". The values are
	// MB/s or percent depending on how resctrl is mounted.
	MB string
}

func (*RDTAllocation) isAllocationValue() {}

// IsEmpty reports whether the allocation carries no partition directives.
// An empty allocation encodes to zero metrics and never enters a changeset.
func (a *RDTAllocation) IsEmpty() bool {
	return a.L3 == "" && a.MB == ""
}

// MergeWithCurrent combines this allocation with the one previously in
// effect and returns the sum of both (target) plus the directives that need
// to be written (changeset). A different group name, or no previous
// allocation, overwrites wholesale: switching group identity discards the
// group's history. For the same group the target is built field by field and
// the changeset carries only fields that differ textually from the current
// value, so downstream writers can skip unchanged schemata rows.
func (a *RDTAllocation) MergeWithCurrent(current Value) (Value, Value) {
	log := logging.GetReconcilerLogger()

	currentRDT, _ := current.(*RDTAllocation)
	if currentRDT == nil || currentRDT.Name != a.Name {
		log.Debug("new group name or no previous rdt allocation exists")
		return a, a
	}

	log.Debug("merging existing rdt allocation")
	target := &RDTAllocation{
		Name: currentRDT.Name,
		L3:   a.L3,
		MB:   a.MB,
	}
	if target.L3 == "" {
		target.L3 = currentRDT.L3
	}
	if target.MB == "" {
		target.MB = currentRDT.MB
	}

	changeset := &RDTAllocation{Name: a.Name}
	if currentRDT.L3 != a.L3 {
		changeset.L3 = a.L3
	}
	if currentRDT.MB != a.MB {
		changeset.MB = a.MB
	}
	return target, changeset
}

// GenerateMetrics encodes the allocation as observability events:
//   - cache allocation: two gauges per domain, the number of granted cache
//     ways and the raw bitmask as an integer
//   - memory bandwidth: one gauge per domain with the raw value as an
//     integer; whether it means MB/s or percent is inherited from the input
//     format and deliberately not resolved here
func (a *RDTAllocation) GenerateMetrics() ([]metrics.Metric, error) {
	if a.IsEmpty() {
		return nil, nil
	}

	var result []metrics.Metric

	if a.L3 != "" {
		domains, err := ParseSchemataRow(a.L3)
		if err != nil {
			return nil, err
		}
		for _, domainID := range sortedDomains(domains) {
			rawValue := domains[domainID]
			ways, err := CountEnabledBits(rawValue)
			if err != nil {
				return nil, err
			}
			mask, err := strconv.ParseUint(rawValue, 16, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid cache mask %q: %w", rawValue, err)
			}
			result = append(result,
				metrics.Metric{
					Name: "allocation", Value: float64(ways), Type: metrics.GaugeType,
					Labels: map[string]string{
						"allocation_type": "rdt_l3_cache_ways",
						"group_name":      a.Name,
						"domain_id":       domainID,
					},
				},
				metrics.Metric{
					Name: "allocation", Value: float64(mask), Type: metrics.GaugeType,
					Labels: map[string]string{
						"allocation_type": "rdt_l3_mask",
						"group_name":      a.Name,
						"domain_id":       domainID,
					},
				})
		}
	}

	if a.MB != "" {
		domains, err := ParseSchemataRow(a.MB)
		if err != nil {
			return nil, err
		}
		for _, domainID := range sortedDomains(domains) {
			rawValue := domains[domainID]
			value, err := strconv.Atoi(rawValue)
			if err != nil {
				return nil, fmt.Errorf("invalid bandwidth value %q: %w", rawValue, err)
			}
			result = append(result, metrics.Metric{
				Name: "allocation", Value: float64(value), Type: metrics.GaugeType,
				Labels: map[string]string{
					"allocation_type": "rdt_mb",
					"group_name":      a.Name,
					"domain_id":       domainID,
				},
			})
		}
	}

	return result, nil
}

func sortedDomains(domains map[string]string) []string {
	ids := make([]string, 0, len(domains))
	for id := range domains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
