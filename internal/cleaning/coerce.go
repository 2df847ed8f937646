package cleaning

import (
	"log/slog"
	"strconv"
	"strings"

	"churnpipe/internal/anonymize"
	"churnpipe/internal/table"
)

// CoerceStats reports the outcome of type coercion.
type CoerceStats struct {
	SentinelsCleared int            `json:"sentinels_cleared"`
	NumbersCoerced   map[string]int `json:"numbers_coerced"`
	CoerceFailures   map[string]int `json:"coerce_failures"`
}

// Coercer replaces sentinel texts with missing cells across the whole
// table, then converts the configured numeric columns. Values that fail
// numeric conversion degrade to missing. Hashed PII columns are exempt
// from sentinel clearing: their missing marker is data, not a sentinel,
// and must survive when a silver table is cleaned again.
type Coercer struct {
	logger         *slog.Logger
	sentinels      map[string]bool
	numericColumns []string
}

// NewCoercer creates a coercer.
func NewCoercer(logger *slog.Logger, sentinels, numericColumns []string) *Coercer {
	set := make(map[string]bool, len(sentinels))
	for _, s := range sentinels {
		set[s] = true
	}
	return &Coercer{logger: logger, sentinels: set, numericColumns: numericColumns}
}

// Coerce returns a new table with sentinels cleared and numeric columns
// converted.
func (c *Coercer) Coerce(tbl *table.Table) (*table.Table, CoerceStats) {
	out := tbl.Clone()
	stats := CoerceStats{
		NumbersCoerced: make(map[string]int),
		CoerceFailures: make(map[string]int),
	}

	for _, col := range out.Columns() {
		if strings.HasSuffix(col, anonymize.HashSuffix) {
			continue
		}
		for r := 0; r < out.NumRows(); r++ {
			v := out.Value(r, col)
			if v.Kind == table.KindString && c.sentinels[strings.TrimSpace(v.Str)] {
				out.SetValue(r, col, table.Missing())
				stats.SentinelsCleared++
			}
		}
	}

	for _, col := range c.numericColumns {
		if !out.HasColumn(col) {
			continue
		}
		for r := 0; r < out.NumRows(); r++ {
			v := out.Value(r, col)
			if v.Kind != table.KindString {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
			if err != nil {
				out.SetValue(r, col, table.Missing())
				stats.CoerceFailures[col]++
				continue
			}
			out.SetValue(r, col, table.Number(f))
			stats.NumbersCoerced[col]++
		}
		if failures := stats.CoerceFailures[col]; failures > 0 {
			c.logger.Warn("values failed numeric coercion",
				slog.String("column", col),
				slog.Int("count", failures))
		}
	}

	c.logger.Info("type coercion complete",
		slog.Int("sentinels_cleared", stats.SentinelsCleared))

	return out, stats
}
