package config

import "fmt"

// Binning maps a continuous value to an ordered tier label. Intervals are
// half-open [lo, hi): a value sitting exactly on a boundary belongs to the
// interval that starts there. Boundaries[i] is the lower edge of Labels[i];
// the last interval is unbounded above. Values below the first edge clamp
// to the first label, which keeps the mapping total.
type Binning struct {
	Boundaries []float64 `yaml:"boundaries"`
	Labels     []string  `yaml:"labels"`
}

// Validate checks that edges and labels line up and edges strictly increase.
func (b Binning) Validate() error {
	if len(b.Boundaries) == 0 {
		return fmt.Errorf("binning has no boundaries")
	}
	if len(b.Boundaries) != len(b.Labels) {
		return fmt.Errorf("binning has %d boundaries but %d labels", len(b.Boundaries), len(b.Labels))
	}
	for i := 1; i < len(b.Boundaries); i++ {
		if b.Boundaries[i] <= b.Boundaries[i-1] {
			return fmt.Errorf("binning boundaries must strictly increase, got %v", b.Boundaries)
		}
	}
	return nil
}

// Label returns the tier label for v.
func (b Binning) Label(v float64) string {
	for i := len(b.Boundaries) - 1; i >= 0; i-- {
		if v >= b.Boundaries[i] {
			return b.Labels[i]
		}
	}
	return b.Labels[0]
}
