// Package ingest loads raw customer extracts into the working table. The
// bronze layer preserves data exactly as received: every cell is loaded as
// text, with no type inference.
package ingest

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	pipeerrors "churnpipe/internal/errors"
	"churnpipe/internal/table"
)

// Loader reads raw source files into tables.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader with the given logger.
func NewLoader(logger *slog.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load reads the source file at path, dispatching on extension. CSV is the
// default; .xlsx files are read through the Excel reader.
func (l *Loader) Load(path string) (*table.Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, pipeerrors.SourceNotFound(path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return l.loadExcel(path)
	default:
		return l.loadCSV(path)
	}
}

// loadCSV reads the file as text cells. A parse that yields a single column
// signals a quote-malformed export, which is repaired before loading.
func (l *Loader) loadCSV(path string) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pipeerrors.SourceNotFound(path, err)
	}

	records, err := parseCSV(string(data))
	if err != nil {
		return nil, pipeerrors.Wrap(pipeerrors.CodeParseFailure, err, "failed to parse CSV %s", path)
	}
	if len(records) == 0 {
		return nil, pipeerrors.SchemaMismatch("CSV %s has no header row", path)
	}

	if len(records[0]) == 1 {
		repaired := repairQuotedRecords(string(data))
		if len(repaired) > 0 && len(repaired[0]) > 1 {
			l.logger.Warn("detected quote-malformed CSV, repaired",
				slog.String("file", path),
				slog.Int("recovered_columns", len(repaired[0])))
			records = repaired
		}
	}

	tbl := table.New(records[0])
	for i, rec := range records[1:] {
		if len(rec) != len(records[0]) {
			return nil, pipeerrors.SchemaMismatch(
				"CSV %s row %d has %d fields, header has %d", path, i+2, len(rec), len(records[0]))
		}
		row := make([]table.Value, len(rec))
		for c, cell := range rec {
			row[c] = table.String(cell)
		}
		if err := tbl.AppendRow(row); err != nil {
			return nil, fmt.Errorf("failed to append row %d: %w", i+2, err)
		}
	}

	l.logger.Info("source loaded",
		slog.String("file", path),
		slog.Int("rows", tbl.NumRows()),
		slog.Int("columns", tbl.NumColumns()))

	return tbl, nil
}

func parseCSV(data string) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(data))
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

// repairQuotedRecords re-splits the raw lines treating quotes as literal
// characters, then strips residual quotes from every field. This recovers
// exports where each whole line was wrapped in doubled quotes.
func repairQuotedRecords(data string) [][]string {
	lines := strings.Split(strings.TrimRight(data, "\r\n"), "\n")
	records := make([][]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		for i, f := range fields {
			fields[i] = strings.ReplaceAll(f, `"`, "")
		}
		records = append(records, fields)
	}
	return records
}
