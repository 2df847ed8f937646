// Package cleaning transforms the raw customer table into the silver
// dataset: duplicate removal, date normalization, type coercion, outlier
// correction and missing-value policy.
package cleaning

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"churnpipe/internal/table"
)

// parseDate tries each configured layout in order.
func parseDate(s string, formats []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range formats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DedupStats reports what the deduplicator removed.
type DedupStats struct {
	RowsIn          int `json:"rows_in"`
	RowsOut         int `json:"rows_out"`
	ExactDuplicates int `json:"exact_duplicates"`
	KeyDuplicates   int `json:"key_duplicates"`
}

// Deduplicator removes redundant rows. Exact duplicates carry no
// information and are dropped outright. Rows sharing a key with different
// payloads are resolved by keeping the one with the most recent purchase
// date; rows whose date is missing or unparseable lose to any dated row.
type Deduplicator struct {
	logger      *slog.Logger
	keyColumn   string
	dateColumn  string
	dateFormats []string
}

// NewDeduplicator creates a deduplicator. dateColumn names the recency
// tie-break column, read with best effort since dedup runs before date
// normalization.
func NewDeduplicator(logger *slog.Logger, keyColumn, dateColumn string, dateFormats []string) *Deduplicator {
	return &Deduplicator{
		logger:      logger,
		keyColumn:   keyColumn,
		dateColumn:  dateColumn,
		dateFormats: dateFormats,
	}
}

// Deduplicate returns a new table without duplicate rows. The result is
// ordered by key; ties on identical purchase dates keep the earlier
// original row, so the outcome is deterministic.
func (d *Deduplicator) Deduplicate(tbl *table.Table) (*table.Table, DedupStats) {
	stats := DedupStats{RowsIn: tbl.NumRows()}

	seen := make(map[string]bool, tbl.NumRows())
	unique := tbl.FilterRows(func(row int) bool {
		key := tbl.RowKey(row)
		if seen[key] {
			stats.ExactDuplicates++
			return false
		}
		seen[key] = true
		return true
	})

	if stats.ExactDuplicates > 0 {
		d.logger.Warn("exact duplicate rows removed",
			slog.Int("count", stats.ExactDuplicates))
	}

	if !unique.HasColumn(d.keyColumn) {
		stats.RowsOut = unique.NumRows()
		return unique, stats
	}

	resolved := d.resolveKeyDuplicates(unique, &stats)
	stats.RowsOut = resolved.NumRows()

	d.logger.Info("deduplication complete",
		slog.Int("rows_in", stats.RowsIn),
		slog.Int("rows_out", stats.RowsOut),
		slog.Int("exact_duplicates", stats.ExactDuplicates),
		slog.Int("key_duplicates", stats.KeyDuplicates))

	return resolved, stats
}

func (d *Deduplicator) resolveKeyDuplicates(tbl *table.Table, stats *DedupStats) *table.Table {
	dates := make([]time.Time, tbl.NumRows())
	dated := make([]bool, tbl.NumRows())
	if tbl.HasColumn(d.dateColumn) {
		for r := 0; r < tbl.NumRows(); r++ {
			v := tbl.Value(r, d.dateColumn)
			switch v.Kind {
			case table.KindDate:
				dates[r], dated[r] = v.Time, true
			case table.KindString:
				dates[r], dated[r] = parseDate(v.Str, d.dateFormats)
			}
		}
	}

	// pick the winning row per key: latest purchase date wins, a dated row
	// beats an undated one, remaining ties keep the earlier original row
	winner := make(map[string]int)
	var keys []string
	for r := 0; r < tbl.NumRows(); r++ {
		key := tbl.Value(r, d.keyColumn).Format()
		prev, ok := winner[key]
		if !ok {
			winner[key] = r
			keys = append(keys, key)
			continue
		}
		stats.KeyDuplicates++
		if (dated[r] && !dated[prev]) || (dated[r] && dated[prev] && dates[r].After(dates[prev])) {
			winner[key] = r
		}
	}

	if stats.KeyDuplicates == 0 {
		return tbl
	}
	d.logger.Warn("duplicate keys resolved, keeping most recent purchase",
		slog.String("key", d.keyColumn),
		slog.Int("count", stats.KeyDuplicates))

	sort.Strings(keys)
	out := table.New(tbl.Columns())
	for _, key := range keys {
		// AppendRow cannot fail here, the row comes from the same table
		_ = out.AppendRow(tbl.Row(winner[key]))
	}
	return out
}
