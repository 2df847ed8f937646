package cleaning

import (
	"fmt"
	"log/slog"
	"sort"

	"churnpipe/internal/config"
	"churnpipe/internal/table"
)

// NullStats reports the outcome of the missing-value policy.
type NullStats struct {
	FilledByColumn map[string]int `json:"filled_by_column"`
	RowsDropped    int            `json:"rows_dropped"`
	RemainingNulls int            `json:"remaining_nulls"`
}

// NullPolicyEngine applies a declarative per-column treatment to missing
// values. The strategy dispatch is exhaustive; a rule naming an unknown
// strategy fails the stage instead of passing nulls through silently.
type NullPolicyEngine struct {
	logger *slog.Logger
	rules  map[string]config.NullRule
}

// NewNullPolicyEngine creates an engine with the configured rules.
func NewNullPolicyEngine(logger *slog.Logger, rules map[string]config.NullRule) *NullPolicyEngine {
	return &NullPolicyEngine{logger: logger, rules: rules}
}

// Apply returns a new table with missing values treated per the rules.
// Rules for columns absent from the table are skipped. Columns are
// processed in name order so runs are deterministic.
func (e *NullPolicyEngine) Apply(tbl *table.Table) (*table.Table, NullStats, error) {
	out := tbl.Clone()
	stats := NullStats{FilledByColumn: make(map[string]int)}

	columns := make([]string, 0, len(e.rules))
	for col := range e.rules {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	for _, col := range columns {
		if !out.HasColumn(col) {
			continue
		}
		missing := countMissing(out, col)
		if missing == 0 {
			continue
		}

		rule := e.rules[col]
		switch rule.Strategy {
		case config.NullConstant:
			fillConstant(out, col, table.String(rule.Constant))
			stats.FilledByColumn[col] = missing
			e.logger.Info("nulls filled with constant",
				slog.String("column", col),
				slog.String("constant", rule.Constant),
				slog.Int("count", missing))

		case config.NullMedian:
			median, ok := table.Median(out.Column(col))
			if !ok {
				e.logger.Warn("median fill skipped, column has no numeric data",
					slog.String("column", col))
				continue
			}
			fillConstant(out, col, table.Number(median))
			stats.FilledByColumn[col] = missing
			e.logger.Info("nulls filled with median",
				slog.String("column", col),
				slog.Float64("median", median),
				slog.Int("count", missing))

		case config.NullMean:
			mean, ok := table.Mean(out.Column(col))
			if !ok {
				e.logger.Warn("mean fill skipped, column has no numeric data",
					slog.String("column", col))
				continue
			}
			fillConstant(out, col, table.Number(mean))
			stats.FilledByColumn[col] = missing
			e.logger.Info("nulls filled with mean",
				slog.String("column", col),
				slog.Float64("mean", mean),
				slog.Int("count", missing))

		case config.NullForwardFill:
			filled := forwardFill(out, col)
			stats.FilledByColumn[col] = filled
			e.logger.Info("nulls forward-filled",
				slog.String("column", col),
				slog.Int("count", filled))

		case config.NullDropRow:
			before := out.NumRows()
			out = out.FilterRows(func(row int) bool {
				return !out.Value(row, col).IsMissing()
			})
			dropped := before - out.NumRows()
			stats.RowsDropped += dropped
			e.logger.Warn("rows without value dropped",
				slog.String("column", col),
				slog.Int("count", dropped))

		default:
			return nil, stats, fmt.Errorf("null rule for %s has unknown strategy %q", col, rule.Strategy)
		}
	}

	for _, col := range out.Columns() {
		stats.RemainingNulls += countMissing(out, col)
	}
	e.logger.Info("null policy complete",
		slog.Int("rows_dropped", stats.RowsDropped),
		slog.Int("remaining_nulls", stats.RemainingNulls))

	return out, stats, nil
}

func countMissing(tbl *table.Table, col string) int {
	n := 0
	for r := 0; r < tbl.NumRows(); r++ {
		if tbl.Value(r, col).IsMissing() {
			n++
		}
	}
	return n
}

func fillConstant(tbl *table.Table, col string, v table.Value) {
	for r := 0; r < tbl.NumRows(); r++ {
		if tbl.Value(r, col).IsMissing() {
			tbl.SetValue(r, col, v)
		}
	}
}

// forwardFill carries the last non-missing value down the column in row
// order. Leading missing cells have no predecessor and stay missing.
func forwardFill(tbl *table.Table, col string) int {
	filled := 0
	var last table.Value
	haveLast := false
	for r := 0; r < tbl.NumRows(); r++ {
		v := tbl.Value(r, col)
		if v.IsMissing() {
			if haveLast {
				tbl.SetValue(r, col, last)
				filled++
			}
			continue
		}
		last, haveLast = v, true
	}
	return filled
}
