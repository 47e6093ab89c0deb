package allocation

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// ParseError reports a malformed schemata row. A malformed row indicates a
// policy bug or corrupted input and must never be forwarded to hardware, so
// it is always surfaced to the caller.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid schemata row %q: %s", e.Line, e.Reason)
}

// ParseSchemataRow parses one row of the resctrl schemata text format into a
// map of domain id to raw value, e.g. "mb:1=20;2=50" to {"1":"20","2":"50"}.
// The resource id prefix ("mb:") is dropped and never reconstructed. An
// empty row decodes to an empty map; that is the "no change requested"
// sentinel, not an error.
//
// Format reference:
// https://elixir.bootlin.com/linux/latest/source/arch/x86/kernel/cpu/resctrl/ctrlmondata.c
func ParseSchemataRow(line string) (map[string]string, error) {
	domains := map[string]string{}
	if line == "" {
		return domains, nil
	}

	row := line
	if i := strings.Index(row, ":"); i >= 0 {
		row = row[i+1:]
	}

	for _, entry := range strings.Split(row, ";") {
		if entry == "" {
			return nil, &ParseError{Line: line, Reason: "domain cannot be empty"}
		}
		separator := strings.Index(entry, "=")
		if separator < 0 {
			return nil, &ParseError{Line: line, Reason: "value separator \"=\" is missing"}
		}
		domainID := entry[:separator]
		if domainID == "" {
			return nil, &ParseError{Line: line, Reason: "domain id cannot be empty"}
		}
		value := entry[separator+1:]
		if value == "" {
			return nil, &ParseError{Line: line, Reason: "value cannot be empty"}
		}
		if _, exists := domains[domainID]; exists {
			return nil, &ParseError{Line: line, Reason: fmt.Sprintf("conflicting domain id %q", domainID)}
		}
		domains[domainID] = value
	}

	return domains, nil
}

// CountEnabledBits returns the population count of a hexadecimal cache mask
// like "f202". The empty string counts as 0. Used to turn a cache-way
// bitmask into a human-meaningful "ways granted" value.
func CountEnabledBits(hexstr string) (int, error) {
	if hexstr == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(strings.TrimPrefix(hexstr, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cache mask %q: %w", hexstr, err)
	}
	return bits.OnesCount64(value), nil
}
