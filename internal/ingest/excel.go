package ingest

import (
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	pipeerrors "churnpipe/internal/errors"
	"churnpipe/internal/table"
)

// loadExcel reads the first sheet of an .xlsx extract. Cells are taken as
// their displayed text so the bronze contract (no inference) holds for
// spreadsheet sources too.
func (l *Loader) loadExcel(path string) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, pipeerrors.Wrap(pipeerrors.CodeParseFailure, err, "failed to open workbook %s", path)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, pipeerrors.SchemaMismatch("workbook %s has no sheets", path)
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, pipeerrors.Wrap(pipeerrors.CodeParseFailure, err, "failed to read sheet %s", sheet)
	}
	if len(rows) == 0 {
		return nil, pipeerrors.SchemaMismatch("sheet %s in %s has no header row", sheet, path)
	}

	header := rows[0]
	tbl := table.New(header)
	for i, rec := range rows[1:] {
		row := make([]table.Value, len(header))
		for c := range header {
			// trailing empty cells are omitted by excelize
			if c < len(rec) {
				row[c] = table.String(rec[c])
			} else {
				row[c] = table.String("")
			}
		}
		if err := tbl.AppendRow(row); err != nil {
			return nil, fmt.Errorf("failed to append row %d: %w", i+2, err)
		}
	}

	l.logger.Info("source loaded",
		slog.String("file", path),
		slog.String("sheet", sheet),
		slog.Int("rows", tbl.NumRows()),
		slog.Int("columns", tbl.NumColumns()))

	return tbl, nil
}
