// Package quality produces a read-only validation report over a table.
// Validation never mutates data; anomalies surface as report fields and
// warnings for the run report.
package quality

import (
	"log/slog"

	"churnpipe/internal/table"
)

// NumericSummary holds descriptive statistics for one numeric column.
type NumericSummary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	Max   float64 `json:"max"`
}

// Report is the data quality snapshot of a table.
type Report struct {
	Rows                   int                       `json:"rows"`
	Columns                int                       `json:"columns"`
	NullCounts             map[string]int            `json:"null_counts"`
	TotalNulls             int                       `json:"total_nulls"`
	DuplicateRows          int                       `json:"duplicate_rows"`
	ColumnKinds            map[string]string         `json:"column_kinds"`
	MemoryMB               float64                   `json:"memory_mb"`
	NumericSummaries       map[string]NumericSummary `json:"numeric_summaries"`
	CategoricalCardinality map[string]int            `json:"categorical_cardinality"`
}

// Validator builds quality reports.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a validator.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// Validate builds the quality report and logs its headline numbers.
func (v *Validator) Validate(tbl *table.Table) *Report {
	report := &Report{
		Rows:                   tbl.NumRows(),
		Columns:                tbl.NumColumns(),
		NullCounts:             make(map[string]int),
		ColumnKinds:            make(map[string]string),
		NumericSummaries:       make(map[string]NumericSummary),
		CategoricalCardinality: make(map[string]int),
	}

	var bytes int
	for _, col := range tbl.Columns() {
		values := tbl.Column(col)

		nulls := 0
		counts := map[table.Kind]int{}
		for _, val := range values {
			bytes += cellBytes(val)
			if val.IsMissing() {
				nulls++
				continue
			}
			counts[val.Kind]++
		}
		report.NullCounts[col] = nulls
		report.TotalNulls += nulls

		kind := dominantKind(counts)
		report.ColumnKinds[col] = kind.String()

		switch kind {
		case table.KindNumber:
			report.NumericSummaries[col] = summarize(values)
		case table.KindString:
			unique := make(map[string]bool)
			for _, val := range values {
				if !val.IsMissing() {
					unique[val.Str] = true
				}
			}
			report.CategoricalCardinality[col] = len(unique)
		}
	}

	seen := make(map[string]bool, tbl.NumRows())
	for r := 0; r < tbl.NumRows(); r++ {
		key := tbl.RowKey(r)
		if seen[key] {
			report.DuplicateRows++
		}
		seen[key] = true
	}

	report.MemoryMB = float64(bytes) / (1024 * 1024)

	v.logger.Info("quality report",
		slog.Int("rows", report.Rows),
		slog.Int("columns", report.Columns),
		slog.Int("total_nulls", report.TotalNulls),
		slog.Int("duplicate_rows", report.DuplicateRows),
		slog.Float64("memory_mb", report.MemoryMB))
	if report.DuplicateRows > 0 {
		v.logger.Warn("duplicate rows present after cleaning",
			slog.Int("count", report.DuplicateRows))
	}

	return report
}

// cellBytes approximates the in-memory footprint of a cell.
func cellBytes(v table.Value) int {
	const header = 48 // Value struct without string payload
	if v.Kind == table.KindString {
		return header + len(v.Str)
	}
	return header
}

// dominantKind picks the most frequent non-missing kind. Mixed columns
// count as string, matching how raw extracts degrade.
func dominantKind(counts map[table.Kind]int) table.Kind {
	if len(counts) == 0 {
		return table.KindMissing
	}
	if len(counts) > 1 {
		return table.KindString
	}
	for k := range counts {
		return k
	}
	return table.KindMissing
}

func summarize(values []table.Value) NumericSummary {
	nums := table.Numbers(values)
	s := NumericSummary{Count: len(nums)}
	if len(nums) == 0 {
		return s
	}
	s.Mean, _ = table.Mean(values)
	s.Std, _ = table.StdDev(values)
	s.Min, _ = table.Percentile(values, 0)
	s.P25, _ = table.Percentile(values, 0.25)
	s.P50, _ = table.Percentile(values, 0.5)
	s.P75, _ = table.Percentile(values, 0.75)
	s.Max, _ = table.Percentile(values, 1)
	return s
}
