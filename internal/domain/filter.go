package domain

import (
	"fmt"
	"strings"
)

// Filter selects the resampling kernel used when a resize is requested.
type Filter int

const (
	FilterBilinear Filter = iota
	FilterNearest
	FilterCatmullRom
	FilterLanczos
)

var filterNames = map[Filter]string{
	FilterBilinear:   "bilinear",
	FilterNearest:    "nearest",
	FilterCatmullRom: "catmullrom",
	FilterLanczos:    "lanczos",
}

// ParseFilter maps a filter name to a Filter. An empty name selects bilinear.
func ParseFilter(s string) (Filter, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return FilterBilinear, nil
	}
	for f, n := range filterNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unsupported resample filter: %q", s)
}

func (f Filter) String() string {
	if name, ok := filterNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Filter(%d)", int(f))
}
