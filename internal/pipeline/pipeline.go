package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"churnpipe/internal/anonymize"
	"churnpipe/internal/cleaning"
	"churnpipe/internal/config"
	"churnpipe/internal/exporter"
	"churnpipe/internal/features"
	"churnpipe/internal/infrastructure"
	"churnpipe/internal/ingest"
	"churnpipe/internal/quality"
	"churnpipe/internal/table"
)

// Mode selects which layers a run produces.
type Mode string

const (
	// ModeFull runs bronze through gold.
	ModeFull Mode = "full"
	// ModeCleanOnly stops after writing the silver dataset.
	ModeCleanOnly Mode = "clean_only"
	// ModeFeaturesOnly starts from an existing silver dataset.
	ModeFeaturesOnly Mode = "features_only"
)

// Runner executes the pipeline stages in sequence and stops on the first
// error. Tolerated anomalies accumulate as report warnings instead.
type Runner struct {
	logger  *slog.Logger
	cfg     *config.Config
	metrics *infrastructure.PipelineMetrics

	loader     *ingest.Loader
	previewer  *ingest.Previewer
	dedup      *cleaning.Deduplicator
	dates      *cleaning.DateNormalizer
	coercer    *cleaning.Coercer
	outliers   *cleaning.OutlierEngine
	nulls      *cleaning.NullPolicyEngine
	anonymizer *anonymize.Anonymizer
	validator  *quality.Validator
	deriver    *features.Deriver
	assembler  *features.Assembler
	csv        *exporter.CSVWriter
	json       *exporter.JSONWriter
}

// NewRunner wires the pipeline components from configuration. metrics may
// be nil when telemetry is disabled.
func NewRunner(logger *slog.Logger, cfg *config.Config, metrics *infrastructure.PipelineMetrics) *Runner {
	cl := cfg.Cleaning
	return &Runner{
		logger:  logger,
		cfg:     cfg,
		metrics: metrics,

		loader:     ingest.NewLoader(logger),
		previewer:  ingest.NewPreviewer(logger, cl.KeyColumn, cl.Sentinels),
		dedup:      cleaning.NewDeduplicator(logger, cl.KeyColumn, features.ColLastPurchaseDate, cl.DateFormats),
		dates:      cleaning.NewDateNormalizer(logger, cl.DateColumns, cl.DateFormats, cl.Sentinels),
		coercer:    cleaning.NewCoercer(logger, cl.Sentinels, cl.NumericColumns),
		outliers:   cleaning.NewOutlierEngine(logger, cl.Outliers),
		nulls:      cleaning.NewNullPolicyEngine(logger, cl.NullRules),
		anonymizer: anonymize.New(logger, cfg.Anonymize),
		validator:  quality.NewValidator(logger),
		deriver:    features.NewDeriver(logger, cfg.Features),
		assembler:  features.NewAssembler(logger, cfg.Assembly, cl.KeyColumn, cl.DateColumns),
		csv:        exporter.NewCSVWriter(logger),
		json:       exporter.NewJSONWriter(logger),
	}
}

// Run executes the selected mode and always persists the run report, even
// when a stage fails partway.
func (r *Runner) Run(ctx context.Context, mode Mode) (*RunReport, error) {
	report := NewRunReport(string(mode))
	r.logger.InfoContext(ctx, "pipeline run started",
		slog.String("run_id", report.RunID),
		slog.String("mode", string(mode)))

	err := r.run(ctx, mode, report)
	report.Finish(err == nil)

	if writeErr := r.json.Write(r.cfg.Paths.ReportFile, report); writeErr != nil {
		r.logger.ErrorContext(ctx, "failed to persist run report",
			slog.String("error", writeErr.Error()))
		if err == nil {
			err = writeErr
		}
	}

	if err != nil {
		r.logger.ErrorContext(ctx, "pipeline run failed",
			slog.String("run_id", report.RunID),
			slog.String("error", err.Error()))
		return report, err
	}
	r.logger.InfoContext(ctx, "pipeline run completed",
		slog.String("run_id", report.RunID),
		slog.Int("warnings", len(report.Warnings)))
	return report, nil
}

func (r *Runner) run(ctx context.Context, mode Mode, report *RunReport) error {
	switch mode {
	case ModeFull:
		silver, err := r.runSilver(ctx, report)
		if err != nil {
			return err
		}
		return r.runGold(ctx, report, silver)
	case ModeCleanOnly:
		_, err := r.runSilver(ctx, report)
		return err
	case ModeFeaturesOnly:
		silver, err := r.loadSilver(ctx, report)
		if err != nil {
			return err
		}
		return r.runGold(ctx, report, silver)
	default:
		return fmt.Errorf("unknown pipeline mode %q", mode)
	}
}

// runSilver transforms the raw extract into the cleaned silver dataset.
// Outlier correction runs before null imputation so medians are computed
// on capped values.
func (r *Runner) runSilver(ctx context.Context, report *RunReport) (*table.Table, error) {
	tbl, err := r.runStage(ctx, report, StageIDLoad, "Load raw data", nil, func() (*table.Table, error) {
		return r.loader.Load(r.cfg.Paths.BronzeFile)
	})
	if err != nil {
		return nil, err
	}

	_, err = r.runStage(ctx, report, StageIDPreview, "Profile raw data", tbl, func() (*table.Table, error) {
		report.Preview = r.previewer.Preview(tbl)
		return tbl, nil
	})
	if err != nil {
		return nil, err
	}

	tbl, err = r.runStage(ctx, report, StageIDDedup, "Remove duplicates", tbl, func() (*table.Table, error) {
		out, stats := r.dedup.Deduplicate(tbl)
		report.Dedup = &stats
		r.count(ctx, r.metricOrNil().DuplicatesRemoved, int64(stats.ExactDuplicates+stats.KeyDuplicates), StageIDDedup)
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	tbl, err = r.runStage(ctx, report, StageIDDates, "Normalize dates", tbl, func() (*table.Table, error) {
		out, stats := r.dates.Normalize(tbl)
		report.Dates = &stats
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	tbl, err = r.runStage(ctx, report, StageIDCoerce, "Coerce types", tbl, func() (*table.Table, error) {
		out, stats := r.coercer.Coerce(tbl)
		report.Coerce = &stats
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	tbl, err = r.runStage(ctx, report, StageIDOutliers, "Correct outliers", tbl, func() (*table.Table, error) {
		flagged, stats, err := r.outliers.Detect(tbl)
		if err != nil {
			return nil, err
		}
		corrected := r.outliers.Correct(flagged, &stats)
		report.Outliers = &stats
		var total int64
		for _, n := range stats.Corrected {
			total += int64(n)
		}
		r.count(ctx, r.metricOrNil().OutliersCorrected, total, StageIDOutliers)
		return cleaning.DropOutlierFlags(corrected), nil
	})
	if err != nil {
		return nil, err
	}

	tbl, err = r.runStage(ctx, report, StageIDNulls, "Apply null policy", tbl, func() (*table.Table, error) {
		out, stats, err := r.nulls.Apply(tbl)
		if err != nil {
			return nil, err
		}
		report.Nulls = &stats
		var total int64
		for _, n := range stats.FilledByColumn {
			total += int64(n)
		}
		r.count(ctx, r.metricOrNil().NullsFilled, total, StageIDNulls)
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	tbl, err = r.runStage(ctx, report, StageIDAnonymize, "Anonymize PII", tbl, func() (*table.Table, error) {
		out, stats, err := r.anonymizer.Apply(tbl)
		if err != nil {
			return nil, err
		}
		report.Anonymize = &stats
		for col := range stats.Collisions {
			report.AddWarning(fmt.Sprintf("hash collision suspected in column %s", col))
		}
		for _, col := range stats.SkippedColumns {
			report.AddWarning(fmt.Sprintf("column to anonymize not found: %s", col))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	_, err = r.runStage(ctx, report, StageIDQuality, "Validate quality", tbl, func() (*table.Table, error) {
		report.Quality = r.validator.Validate(tbl)
		if report.Quality.DuplicateRows > 0 {
			report.AddWarning(fmt.Sprintf("%d duplicate rows remain after cleaning", report.Quality.DuplicateRows))
		}
		return tbl, nil
	})
	if err != nil {
		return nil, err
	}

	_, err = r.runStage(ctx, report, StageIDExport, "Write silver dataset", tbl, func() (*table.Table, error) {
		return tbl, r.csv.WriteTable(r.cfg.Paths.SilverFile, tbl)
	})
	if err != nil {
		return nil, err
	}

	return tbl, nil
}

// loadSilver reloads a persisted silver dataset and restores its cell
// types, since CSV round-trips flatten everything to text.
func (r *Runner) loadSilver(ctx context.Context, report *RunReport) (*table.Table, error) {
	tbl, err := r.runStage(ctx, report, StageIDLoad, "Load silver dataset", nil, func() (*table.Table, error) {
		return r.loader.Load(r.cfg.Paths.SilverFile)
	})
	if err != nil {
		return nil, err
	}

	tbl, err = r.runStage(ctx, report, StageIDDates, "Restore date types", tbl, func() (*table.Table, error) {
		out, stats := r.dates.Normalize(tbl)
		report.Dates = &stats
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return r.runStage(ctx, report, StageIDCoerce, "Restore numeric types", tbl, func() (*table.Table, error) {
		out, stats := r.coercer.Coerce(tbl)
		report.Coerce = &stats
		return out, nil
	})
}

// runGold derives features and writes the model-ready matrix.
func (r *Runner) runGold(ctx context.Context, report *RunReport, silver *table.Table) error {
	tbl, err := r.runStage(ctx, report, StageIDDerive, "Derive features", silver, func() (*table.Table, error) {
		out, stats, err := r.deriver.Derive(silver)
		if err != nil {
			return nil, err
		}
		report.Features = &stats
		return out, nil
	})
	if err != nil {
		return err
	}

	tbl, err = r.runStage(ctx, report, StageIDAssemble, "Assemble model matrix", tbl, func() (*table.Table, error) {
		out, stats, err := r.assembler.Assemble(tbl)
		if err != nil {
			return nil, err
		}
		report.Assembly = &stats
		if stats.ImbalanceWarning {
			report.AddWarning(fmt.Sprintf("imbalanced target distribution: %.1f%% positive", stats.ChurnRatePct))
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	_, err = r.runStage(ctx, report, StageIDExport, "Write gold dataset", tbl, func() (*table.Table, error) {
		return tbl, r.csv.WriteTable(r.cfg.Paths.GoldFile, tbl)
	})
	return err
}

func (r *Runner) runStage(ctx context.Context, report *RunReport, id, name string, in *table.Table, fn func() (*table.Table, error)) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state := NewStageState(id, name)
	report.Stages = append(report.Stages, state)
	if in != nil {
		state.RowsIn = in.NumRows()
	}
	state.Start()
	r.logger.InfoContext(ctx, "stage started", slog.String("stage", id))

	out, err := fn()
	if err != nil {
		state.Fail(err)
		if r.metrics != nil {
			r.metrics.StageErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", id)))
		}
		r.logger.ErrorContext(ctx, "stage failed",
			slog.String("stage", id),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("stage %s: %w", id, err)
	}

	if out != nil {
		state.RowsOut = out.NumRows()
	}
	state.Complete()

	if r.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("stage", id))
		r.metrics.StageExecutionsTotal.Add(ctx, 1, attrs)
		r.metrics.StageDuration.Record(ctx, state.Duration, attrs)
		r.metrics.RowsProcessed.Add(ctx, int64(state.RowsOut), attrs)
	}

	r.logger.InfoContext(ctx, "stage completed",
		slog.String("stage", id),
		slog.Int("rows_in", state.RowsIn),
		slog.Int("rows_out", state.RowsOut),
		slog.Float64("duration_seconds", state.Duration))

	return out, nil
}

func (r *Runner) count(ctx context.Context, counter metric.Int64Counter, n int64, stage string) {
	if r.metrics == nil || counter == nil || n == 0 {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(attribute.String("stage", stage)))
}

// metricOrNil lets stage closures reference counters without nil checks.
func (r *Runner) metricOrNil() *infrastructure.PipelineMetrics {
	if r.metrics == nil {
		return &infrastructure.PipelineMetrics{}
	}
	return r.metrics
}
