package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// ServiceName identifies the pipeline in telemetry output.
	ServiceName = "churn-pipeline"
	// ServiceVersion is stamped on the telemetry resource.
	ServiceVersion = "1.0.0"
	// MeterName scopes the pipeline instruments.
	MeterName = "churnpipe"
)

// OTelProviders holds the OpenTelemetry providers and instruments.
type OTelProviders struct {
	MeterProvider *sdkmetric.MeterProvider
	Meter         metric.Meter
	Metrics       *PipelineMetrics
	Logger        *slog.Logger
}

// PipelineMetrics are the business instruments recorded during a run.
type PipelineMetrics struct {
	StageExecutionsTotal metric.Int64Counter
	StageDuration        metric.Float64Histogram
	RowsProcessed        metric.Int64Counter
	DuplicatesRemoved    metric.Int64Counter
	OutliersCorrected    metric.Int64Counter
	NullsFilled          metric.Int64Counter
	StageErrors          metric.Int64Counter
}

// InitializeOTel sets up a meter provider with a stdout metric exporter and
// registers the pipeline instruments.
func InitializeOTel(ctx context.Context, logger *slog.Logger) (*OTelProviders, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)

	meter := mp.Meter(MeterName, metric.WithInstrumentationVersion(ServiceVersion))

	metrics, err := newPipelineMetrics(meter)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	logger.InfoContext(ctx, "OpenTelemetry initialized",
		slog.String("service", ServiceName),
		slog.String("version", ServiceVersion))

	return &OTelProviders{
		MeterProvider: mp,
		Meter:         meter,
		Metrics:       metrics,
		Logger:        logger,
	}, nil
}

func newPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	stageExecutions, err := meter.Int64Counter(
		"pipeline_stage_executions_total",
		metric.WithDescription("Total number of stage executions"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"pipeline_stage_duration_seconds",
		metric.WithDescription("Stage execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	rowsProcessed, err := meter.Int64Counter(
		"pipeline_rows_processed_total",
		metric.WithDescription("Rows emitted by each stage"),
	)
	if err != nil {
		return nil, err
	}

	duplicatesRemoved, err := meter.Int64Counter(
		"pipeline_duplicates_removed_total",
		metric.WithDescription("Duplicate rows removed during cleaning"),
	)
	if err != nil {
		return nil, err
	}

	outliersCorrected, err := meter.Int64Counter(
		"pipeline_outliers_corrected_total",
		metric.WithDescription("Outlier values corrected during cleaning"),
	)
	if err != nil {
		return nil, err
	}

	nullsFilled, err := meter.Int64Counter(
		"pipeline_nulls_filled_total",
		metric.WithDescription("Missing values imputed during cleaning"),
	)
	if err != nil {
		return nil, err
	}

	stageErrors, err := meter.Int64Counter(
		"pipeline_stage_errors_total",
		metric.WithDescription("Stage failures"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		StageExecutionsTotal: stageExecutions,
		StageDuration:        stageDuration,
		RowsProcessed:        rowsProcessed,
		DuplicatesRemoved:    duplicatesRemoved,
		OutliersCorrected:    outliersCorrected,
		NullsFilled:          nullsFilled,
		StageErrors:          stageErrors,
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	if p.MeterProvider == nil {
		return nil
	}
	if err := p.MeterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}
	p.Logger.InfoContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}
