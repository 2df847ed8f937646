package cleaning

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"churnpipe/internal/config"
	"churnpipe/internal/table"
)

// OutlierFlagSuffix marks the transient detection columns.
const OutlierFlagSuffix = "_is_outlier"

// OutlierStats reports detection and correction counts per column.
type OutlierStats struct {
	Detected  map[string]int `json:"detected"`
	Corrected map[string]int `json:"corrected"`
}

// OutlierEngine detects out-of-range numeric values and corrects them by
// capping. The threshold method applies business bounds (a negative spend
// is an error regardless of the distribution); iqr and zscore are the
// statistical alternatives.
type OutlierEngine struct {
	logger *slog.Logger
	cfg    config.OutlierConfig
}

// NewOutlierEngine creates an engine from the outlier configuration.
func NewOutlierEngine(logger *slog.Logger, cfg config.OutlierConfig) *OutlierEngine {
	return &OutlierEngine{logger: logger, cfg: cfg}
}

// Detect returns a new table with a boolean flag column per inspected
// column marking the outlier rows.
func (e *OutlierEngine) Detect(tbl *table.Table) (*table.Table, OutlierStats, error) {
	out := tbl.Clone()
	stats := OutlierStats{
		Detected:  make(map[string]int),
		Corrected: make(map[string]int),
	}

	for _, col := range []string{e.cfg.SpendColumn, e.cfg.ShipmentsColumn} {
		if !out.HasColumn(col) {
			continue
		}

		flagged, err := e.flagColumn(out, col)
		if err != nil {
			return nil, stats, err
		}

		flags := make([]table.Value, out.NumRows())
		for r := range flags {
			if flagged[r] {
				flags[r] = table.Number(1)
				stats.Detected[col]++
			} else {
				flags[r] = table.Number(0)
			}
		}
		if err := out.AddColumn(col+OutlierFlagSuffix, flags); err != nil {
			return nil, stats, fmt.Errorf("failed to add outlier flag for %s: %w", col, err)
		}

		if stats.Detected[col] > 0 {
			e.logger.Warn("outliers detected",
				slog.String("column", col),
				slog.String("method", e.cfg.Method),
				slog.Int("count", stats.Detected[col]))
		}
	}

	return out, stats, nil
}

func (e *OutlierEngine) flagColumn(tbl *table.Table, col string) ([]bool, error) {
	flagged := make([]bool, tbl.NumRows())
	values := tbl.Column(col)

	switch e.cfg.Method {
	case "threshold":
		var min, max float64
		hasMin := false
		if col == e.cfg.SpendColumn {
			min, max, hasMin = e.cfg.SpendMin, e.cfg.SpendMax, true
		} else {
			max = e.cfg.ShipmentsMax
		}
		for r, v := range values {
			if v.Kind != table.KindNumber {
				continue
			}
			flagged[r] = (hasMin && v.Num < min) || v.Num > max
		}

	case "iqr":
		q1, ok1 := table.Percentile(values, 0.25)
		q3, ok3 := table.Percentile(values, 0.75)
		if !ok1 || !ok3 {
			return flagged, nil
		}
		iqr := q3 - q1
		lo := q1 - e.cfg.IQRFactor*iqr
		hi := q3 + e.cfg.IQRFactor*iqr
		for r, v := range values {
			if v.Kind != table.KindNumber {
				continue
			}
			flagged[r] = v.Num < lo || v.Num > hi
		}

	case "zscore":
		mean, okM := table.Mean(values)
		sd, okS := table.StdDev(values)
		if !okM || !okS || sd == 0 {
			return flagged, nil
		}
		for r, v := range values {
			if v.Kind != table.KindNumber {
				continue
			}
			flagged[r] = math.Abs((v.Num-mean)/sd) > e.cfg.ZScoreLimit
		}

	default:
		return nil, fmt.Errorf("unknown outlier method %q", e.cfg.Method)
	}

	return flagged, nil
}

// Correct caps out-of-range values to the business bounds: negative spend
// becomes zero, excessive spend and shipments cap at their maxima. Capping
// preserves the customer where deletion would lose a legitimate VIP.
func (e *OutlierEngine) Correct(tbl *table.Table, stats *OutlierStats) *table.Table {
	out := tbl.Clone()

	if out.HasColumn(e.cfg.SpendColumn) {
		for r := 0; r < out.NumRows(); r++ {
			v := out.Value(r, e.cfg.SpendColumn)
			if v.Kind != table.KindNumber {
				continue
			}
			switch {
			case v.Num < e.cfg.SpendMin:
				out.SetValue(r, e.cfg.SpendColumn, table.Number(e.cfg.SpendMin))
				stats.Corrected[e.cfg.SpendColumn]++
			case v.Num > e.cfg.SpendMax:
				out.SetValue(r, e.cfg.SpendColumn, table.Number(e.cfg.SpendMax))
				stats.Corrected[e.cfg.SpendColumn]++
			}
		}
	}

	if out.HasColumn(e.cfg.ShipmentsColumn) {
		for r := 0; r < out.NumRows(); r++ {
			v := out.Value(r, e.cfg.ShipmentsColumn)
			if v.Kind == table.KindNumber && v.Num > e.cfg.ShipmentsMax {
				out.SetValue(r, e.cfg.ShipmentsColumn, table.Number(e.cfg.ShipmentsMax))
				stats.Corrected[e.cfg.ShipmentsColumn]++
			}
		}
	}

	for col, n := range stats.Corrected {
		if n > 0 {
			e.logger.Info("outliers corrected by capping",
				slog.String("column", col),
				slog.Int("count", n))
		}
	}

	return out
}

// DropOutlierFlags removes the transient detection columns.
func DropOutlierFlags(tbl *table.Table) *table.Table {
	var flags []string
	for _, col := range tbl.Columns() {
		if strings.HasSuffix(col, OutlierFlagSuffix) {
			flags = append(flags, col)
		}
	}
	if len(flags) == 0 {
		return tbl
	}
	return tbl.DropColumns(flags...)
}
