package cleaning

import (
	"log/slog"
	"strings"

	"churnpipe/internal/table"
)

// DateStats reports the outcome of date normalization per column.
type DateStats struct {
	Parsed        map[string]int `json:"parsed"`
	ParseFailures map[string]int `json:"parse_failures"`
}

// DateNormalizer converts inconsistent textual dates to date cells. The
// source mixes layouts like DD/MM/YYYY, YYYY-MM-DD and MM/DD/YYYY; each
// configured layout is tried in order and unparseable values degrade to
// missing rather than aborting the run.
type DateNormalizer struct {
	logger    *slog.Logger
	columns   []string
	formats   []string
	sentinels map[string]bool
}

// NewDateNormalizer creates a normalizer for the given date columns.
// Sentinel values become missing without counting as parse failures.
func NewDateNormalizer(logger *slog.Logger, columns, formats, sentinels []string) *DateNormalizer {
	set := make(map[string]bool, len(sentinels))
	for _, s := range sentinels {
		set[s] = true
	}
	return &DateNormalizer{logger: logger, columns: columns, formats: formats, sentinels: set}
}

// Normalize returns a new table with the configured columns holding date
// cells. Columns absent from the table are skipped with a warning.
func (n *DateNormalizer) Normalize(tbl *table.Table) (*table.Table, DateStats) {
	out := tbl.Clone()
	stats := DateStats{
		Parsed:        make(map[string]int),
		ParseFailures: make(map[string]int),
	}

	for _, col := range n.columns {
		if !out.HasColumn(col) {
			n.logger.Warn("date column not found, skipping", slog.String("column", col))
			continue
		}

		for r := 0; r < out.NumRows(); r++ {
			v := out.Value(r, col)
			switch v.Kind {
			case table.KindDate:
				stats.Parsed[col]++
			case table.KindString:
				text := strings.TrimSpace(v.Str)
				if n.sentinels[text] {
					out.SetValue(r, col, table.Missing())
					continue
				}
				if t, ok := parseDate(text, n.formats); ok {
					out.SetValue(r, col, table.Date(t))
					stats.Parsed[col]++
				} else {
					out.SetValue(r, col, table.Missing())
					stats.ParseFailures[col]++
				}
			}
		}

		if failures := stats.ParseFailures[col]; failures > 0 {
			n.logger.Warn("dates could not be parsed",
				slog.String("column", col),
				slog.Int("count", failures))
		}
		n.logger.Info("date column normalized",
			slog.String("column", col),
			slog.Int("parsed", stats.Parsed[col]))
	}

	return out, stats
}
