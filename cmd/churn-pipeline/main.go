// Command churn-pipeline runs the medallion feature pipeline: it loads the
// raw customer extract, produces the cleaned silver dataset and assembles
// the model-ready gold matrix, writing a JSON run report alongside.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"churnpipe/internal/config"
	"churnpipe/internal/infrastructure"
	"churnpipe/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional, CHURN_* env vars override)")
	input := flag.String("input", "", "override the raw input file path")
	output := flag.String("output", "", "override the gold output file path")
	cleanOnly := flag.Bool("clean-only", false, "stop after writing the silver dataset")
	featuresOnly := flag.Bool("features-only", false, "derive features from an existing silver dataset")
	noTelemetry := flag.Bool("no-telemetry", false, "disable metric export")
	flag.Parse()

	if *cleanOnly && *featuresOnly {
		fmt.Fprintln(os.Stderr, "-clean-only and -features-only are mutually exclusive")
		os.Exit(2)
	}

	mode := pipeline.ModeFull
	switch {
	case *cleanOnly:
		mode = pipeline.ModeCleanOnly
	case *featuresOnly:
		mode = pipeline.ModeFeaturesOnly
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyPathOverrides(cfg, *input, *output, mode)

	logger, closeLog, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *infrastructure.PipelineMetrics
	if !*noTelemetry {
		providers, err := infrastructure.InitializeOTel(ctx, logger)
		if err != nil {
			logger.Warn("telemetry initialization failed, continuing without metrics",
				slog.String("error", err.Error()))
		} else {
			metrics = providers.Metrics
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := providers.Shutdown(shutdownCtx); err != nil {
					logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
				}
			}()
		}
	}

	runner := pipeline.NewRunner(logger, cfg, metrics)
	report, err := runner.Run(ctx, mode)
	if err != nil {
		logger.Error("pipeline run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	for _, w := range report.Warnings {
		logger.Warn("run warning", slog.String("warning", w))
	}
	logger.Info("pipeline finished",
		slog.String("run_id", report.RunID),
		slog.String("report", cfg.Paths.ReportFile))
}

// applyPathOverrides points the run's artifacts at the flag overrides. In
// clean-only mode the final artifact is the silver dataset, so -output
// targets it there instead of the gold path.
func applyPathOverrides(cfg *config.Config, input, output string, mode pipeline.Mode) {
	if input != "" {
		cfg.Paths.BronzeFile = input
	}
	if output == "" {
		return
	}
	if mode == pipeline.ModeCleanOnly {
		cfg.Paths.SilverFile = output
	} else {
		cfg.Paths.GoldFile = output
	}
}
