package pricing

import (
	"fmt"
	"sort"
)

// Threshold maps a maximum job age in hours to the credit cost of a first
// contact within that age.
type Threshold struct {
	MaxAgeHours int `json:"max_age_hours"`
	Credits     int `json:"credits"`
}

// ThresholdTable is an ordered list of thresholds, ascending by MaxAgeHours.
type ThresholdTable []Threshold

// DefaultThresholds is the fallback used when no table is configured.
func DefaultThresholds() ThresholdTable {
	return ThresholdTable{
		{MaxAgeHours: 12, Credits: 3},
		{MaxAgeHours: 36, Credits: 2},
		{MaxAgeHours: 44, Credits: 1},
	}
}

// Normalize returns a sorted copy of the table after validating it: at least
// one entry, positive strictly-increasing bounds, non-negative costs.
func (t ThresholdTable) Normalize() (ThresholdTable, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("threshold table is empty")
	}
	out := make(ThresholdTable, len(t))
	copy(out, t)
	sort.Slice(out, func(i, j int) bool { return out[i].MaxAgeHours < out[j].MaxAgeHours })
	for i, th := range out {
		if th.MaxAgeHours <= 0 {
			return nil, fmt.Errorf("threshold %d: max_age_hours must be positive, got %d", i, th.MaxAgeHours)
		}
		if th.Credits < 0 {
			return nil, fmt.Errorf("threshold %d: credits must not be negative, got %d", i, th.Credits)
		}
		if i > 0 && th.MaxAgeHours == out[i-1].MaxAgeHours {
			return nil, fmt.Errorf("duplicate max_age_hours %d", th.MaxAgeHours)
		}
	}
	return out, nil
}
