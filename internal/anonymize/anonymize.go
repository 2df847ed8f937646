// Package anonymize replaces PII columns with salted SHA-256 digests. The
// digests are irreversible but reproducible with the same salt, so hashed
// columns stay joinable across runs.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"churnpipe/internal/config"
	"churnpipe/internal/table"
)

// HashSuffix is appended to each anonymized column name.
const HashSuffix = "_hash"

// Stats reports the outcome of anonymization per column.
type Stats struct {
	HashedColumns  []string       `json:"hashed_columns"`
	SkippedColumns []string       `json:"skipped_columns"`
	Collisions     map[string]int `json:"collisions"`
}

// Anonymizer hashes the configured PII columns.
type Anonymizer struct {
	logger *slog.Logger
	cfg    config.AnonymizeConfig
}

// New creates an anonymizer from the anonymization configuration.
func New(logger *slog.Logger, cfg config.AnonymizeConfig) *Anonymizer {
	return &Anonymizer{logger: logger, cfg: cfg}
}

// HashValue digests a single value with the configured salt. Missing and
// blank values map to the missing marker so absence stays distinguishable
// in the hashed column.
func (a *Anonymizer) HashValue(v table.Value) string {
	if v.IsMissing() {
		return a.cfg.MissingMarker
	}
	text := v.Format()
	if strings.TrimSpace(text) == "" {
		return a.cfg.MissingMarker
	}
	sum := sha256.Sum256([]byte(a.cfg.Salt + text))
	return hex.EncodeToString(sum[:])
}

// Apply returns a new table where each configured column is replaced by a
// <column>_hash column. Configured columns absent from the table are
// skipped with a warning. A hashed column whose distinct-count drops below
// the original's indicates a collision and is reported, not fatal.
func (a *Anonymizer) Apply(tbl *table.Table) (*table.Table, Stats, error) {
	out := tbl.Clone()
	stats := Stats{Collisions: make(map[string]int)}

	for _, col := range a.cfg.Columns {
		if !out.HasColumn(col) {
			stats.SkippedColumns = append(stats.SkippedColumns, col)
			a.logger.Warn("column to anonymize not found, skipping",
				slog.String("column", col))
			continue
		}

		originals := out.Column(col)
		hashes := make([]table.Value, len(originals))
		uniqueOriginal := make(map[string]bool)
		uniqueHashed := make(map[string]bool)
		for r, v := range originals {
			h := a.HashValue(v)
			hashes[r] = table.String(h)
			if h == a.cfg.MissingMarker {
				uniqueOriginal[a.cfg.MissingMarker] = true
			} else {
				uniqueOriginal[v.Format()] = true
			}
			uniqueHashed[h] = true
		}

		if err := out.AddColumn(col+HashSuffix, hashes); err != nil {
			return nil, stats, fmt.Errorf("failed to add hash column for %s: %w", col, err)
		}
		out = out.DropColumns(col)
		stats.HashedColumns = append(stats.HashedColumns, col)

		if len(uniqueHashed) < len(uniqueOriginal) {
			stats.Collisions[col] = len(uniqueOriginal) - len(uniqueHashed)
			a.logger.Warn("hash collision suspected",
				slog.String("column", col),
				slog.Int("unique_original", len(uniqueOriginal)),
				slog.Int("unique_hashed", len(uniqueHashed)))
		} else {
			a.logger.Info("column anonymized",
				slog.String("column", col),
				slog.Int("unique_values", len(uniqueHashed)))
		}
	}

	a.logger.Info("anonymization complete",
		slog.Int("columns_hashed", len(stats.HashedColumns)))

	return out, stats, nil
}
