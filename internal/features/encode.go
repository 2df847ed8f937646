package features

import (
	"log/slog"
	"sort"
	"strings"

	"churnpipe/internal/config"
	pipeerrors "churnpipe/internal/errors"
	"churnpipe/internal/table"
)

// AssembleStats reports what the assembler did to the feature matrix.
type AssembleStats struct {
	EncodedColumns   map[string][]string `json:"encoded_columns"`
	DroppedColumns   []string            `json:"dropped_columns"`
	ChurnRatePct     float64             `json:"churn_rate_pct"`
	ImbalanceWarning bool                `json:"imbalance_warning"`
	MedianImputed    map[string]int      `json:"median_imputed"`
}

// Assembler turns the derived table into the model-ready gold matrix:
// categorical features become one-hot columns with a dropped reference
// category, identifier/hash/date columns are removed, and residual numeric
// nulls fall back to the column median.
type Assembler struct {
	logger      *slog.Logger
	cfg         config.AssemblyConfig
	keyColumn   string
	dateColumns []string
}

// NewAssembler creates an assembler. keyColumn and dateColumns extend the
// exclusion set alongside the *_hash columns.
func NewAssembler(logger *slog.Logger, cfg config.AssemblyConfig, keyColumn string, dateColumns []string) *Assembler {
	return &Assembler{logger: logger, cfg: cfg, keyColumn: keyColumn, dateColumns: dateColumns}
}

// Assemble returns the gold matrix. An absent target column is fatal; an
// imbalanced target is reported but tolerated.
func (a *Assembler) Assemble(tbl *table.Table) (*table.Table, AssembleStats, error) {
	stats := AssembleStats{
		EncodedColumns: make(map[string][]string),
		MedianImputed:  make(map[string]int),
	}

	if !tbl.HasColumn(a.cfg.TargetColumn) {
		return nil, stats, pipeerrors.SchemaMismatch("target column %s missing", a.cfg.TargetColumn)
	}

	out := tbl.Clone()

	excluded := map[string]bool{
		a.keyColumn:        true,
		a.cfg.TargetColumn: true,
	}
	for _, col := range a.dateColumns {
		excluded[col] = true
	}

	for _, col := range out.Columns() {
		if excluded[col] || strings.HasSuffix(col, "_hash") {
			continue
		}
		if isCategorical(out, col) {
			dummies := a.encodeColumn(out, col, &stats)
			out = dummies
		}
	}

	var drop []string
	for _, col := range out.Columns() {
		if col == a.keyColumn || strings.HasSuffix(col, "_hash") {
			drop = append(drop, col)
			continue
		}
		for _, dc := range a.dateColumns {
			if col == dc {
				drop = append(drop, col)
				break
			}
		}
	}
	out = out.DropColumns(drop...)
	stats.DroppedColumns = drop

	a.checkClassBalance(out, &stats)
	a.imputeResidualNulls(out, &stats)

	a.logger.Info("gold matrix assembled",
		slog.Int("rows", out.NumRows()),
		slog.Int("features", out.NumColumns()-1),
		slog.Float64("churn_rate_pct", stats.ChurnRatePct))

	return out, stats, nil
}

// isCategorical reports whether every non-missing cell in the column is
// text. Numeric and date columns are left alone.
func isCategorical(tbl *table.Table, col string) bool {
	hasText := false
	for r := 0; r < tbl.NumRows(); r++ {
		switch tbl.Value(r, col).Kind {
		case table.KindString:
			hasText = true
		case table.KindNumber, table.KindDate:
			return false
		}
	}
	return hasText
}

// encodeColumn replaces a categorical column with one-hot dummies. The
// alphabetically first category is the dropped reference: its rows are all
// zeros, which keeps the matrix free of redundant columns. Missing cells
// encode as all zeros too.
func (a *Assembler) encodeColumn(tbl *table.Table, col string, stats *AssembleStats) *table.Table {
	unique := make(map[string]bool)
	for r := 0; r < tbl.NumRows(); r++ {
		v := tbl.Value(r, col)
		if !v.IsMissing() {
			unique[v.Str] = true
		}
	}
	categories := make([]string, 0, len(unique))
	for c := range unique {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	if len(categories) < 2 {
		// a constant column carries no signal, drop it outright
		stats.EncodedColumns[col] = nil
		return tbl.DropColumns(col)
	}

	var created []string
	for _, category := range categories[1:] {
		name := col + "_" + category
		cells := make([]table.Value, tbl.NumRows())
		for r := 0; r < tbl.NumRows(); r++ {
			v := tbl.Value(r, col)
			if !v.IsMissing() && v.Str == category {
				cells[r] = table.Number(1)
			} else {
				cells[r] = table.Number(0)
			}
		}
		_ = tbl.AddColumn(name, cells)
		created = append(created, name)
	}
	stats.EncodedColumns[col] = created

	a.logger.Info("categorical column encoded",
		slog.String("column", col),
		slog.Int("dummies", len(created)),
		slog.String("reference_category", categories[0]))

	return tbl.DropColumns(col)
}

func (a *Assembler) checkClassBalance(tbl *table.Table, stats *AssembleStats) {
	total := tbl.NumRows()
	if total == 0 {
		return
	}
	positives := 0
	for r := 0; r < total; r++ {
		v := tbl.Value(r, a.cfg.TargetColumn)
		if v.Kind == table.KindNumber && v.Num == 1 {
			positives++
		}
	}
	stats.ChurnRatePct = float64(positives) / float64(total) * 100

	if stats.ChurnRatePct < a.cfg.MinClassRatePct || stats.ChurnRatePct > a.cfg.MaxClassRatePct {
		stats.ImbalanceWarning = true
		a.logger.Warn("imbalanced target distribution",
			slog.Float64("churn_rate_pct", stats.ChurnRatePct),
			slog.Float64("min_pct", a.cfg.MinClassRatePct),
			slog.Float64("max_pct", a.cfg.MaxClassRatePct))
	}
}

// imputeResidualNulls backfills numeric nulls that slipped past the null
// policy, using the column median. The target column is never imputed.
func (a *Assembler) imputeResidualNulls(tbl *table.Table, stats *AssembleStats) {
	for _, col := range tbl.Columns() {
		if col == a.cfg.TargetColumn {
			continue
		}
		values := tbl.Column(col)
		median, ok := table.Median(values)
		if !ok {
			continue
		}
		filled := 0
		for r, v := range values {
			if v.IsMissing() {
				tbl.SetValue(r, col, table.Number(median))
				filled++
			}
		}
		if filled > 0 {
			stats.MedianImputed[col] = filled
			a.logger.Info("residual nulls imputed with median",
				slog.String("column", col),
				slog.Float64("median", median),
				slog.Int("count", filled))
		}
	}
}
