package ingest

import (
	"log/slog"

	"churnpipe/internal/table"
)

// ColumnProfile summarizes one raw column.
type ColumnProfile struct {
	Name      string `json:"name"`
	Unique    int    `json:"unique"`
	NullCount int    `json:"null_count"`
}

// Preview is the initial quality snapshot of a raw load, taken before any
// cleaning so load-time anomalies stay auditable.
type Preview struct {
	Rows          int             `json:"rows"`
	Columns       int             `json:"columns"`
	Profiles      []ColumnProfile `json:"profiles"`
	DuplicateRows int             `json:"duplicate_rows"`
	DuplicateKeys int             `json:"duplicate_keys"`
}

// Previewer builds raw-load previews.
type Previewer struct {
	logger    *slog.Logger
	keyColumn string
	sentinels map[string]bool
}

// NewPreviewer creates a previewer. Sentinel values count as nulls in the
// per-column profile.
func NewPreviewer(logger *slog.Logger, keyColumn string, sentinels []string) *Previewer {
	set := make(map[string]bool, len(sentinels))
	for _, s := range sentinels {
		set[s] = true
	}
	return &Previewer{logger: logger, keyColumn: keyColumn, sentinels: set}
}

// Preview profiles the raw table and logs the findings.
func (p *Previewer) Preview(tbl *table.Table) *Preview {
	pv := &Preview{
		Rows:    tbl.NumRows(),
		Columns: tbl.NumColumns(),
	}

	for _, col := range tbl.Columns() {
		profile := ColumnProfile{Name: col}
		seen := make(map[string]bool)
		for r := 0; r < tbl.NumRows(); r++ {
			v := tbl.Value(r, col)
			text := v.Format()
			if v.IsMissing() || p.sentinels[text] {
				profile.NullCount++
				continue
			}
			if !seen[text] {
				seen[text] = true
				profile.Unique++
			}
		}
		pv.Profiles = append(pv.Profiles, profile)
		p.logger.Info("column profile",
			slog.String("column", col),
			slog.Int("unique", profile.Unique),
			slog.Int("nulls", profile.NullCount))
	}

	rowKeys := make(map[string]bool, tbl.NumRows())
	for r := 0; r < tbl.NumRows(); r++ {
		key := tbl.RowKey(r)
		if rowKeys[key] {
			pv.DuplicateRows++
		}
		rowKeys[key] = true
	}

	if tbl.HasColumn(p.keyColumn) {
		ids := make(map[string]bool, tbl.NumRows())
		for r := 0; r < tbl.NumRows(); r++ {
			id := tbl.Value(r, p.keyColumn).Format()
			if ids[id] {
				pv.DuplicateKeys++
			}
			ids[id] = true
		}
	}

	if pv.DuplicateRows > 0 {
		p.logger.Warn("duplicate rows in raw load", slog.Int("count", pv.DuplicateRows))
	}
	if pv.DuplicateKeys > 0 {
		p.logger.Warn("duplicate keys in raw load",
			slog.String("key", p.keyColumn),
			slog.Int("count", pv.DuplicateKeys))
	}

	return pv
}
