package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/gauge-forecast-etl/internal/adapter/archive"
	"github.com/couchcryptid/gauge-forecast-etl/internal/adapter/csvfile"
	httpadapter "github.com/couchcryptid/gauge-forecast-etl/internal/adapter/http"
	"github.com/couchcryptid/gauge-forecast-etl/internal/adapter/jsonl"
	kafkaadapter "github.com/couchcryptid/gauge-forecast-etl/internal/adapter/kafka"
	parquetadapter "github.com/couchcryptid/gauge-forecast-etl/internal/adapter/parquet"
	"github.com/couchcryptid/gauge-forecast-etl/internal/config"
	"github.com/couchcryptid/gauge-forecast-etl/internal/observability"
	"github.com/couchcryptid/gauge-forecast-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	metrics := observability.NewMetrics()

	outputs := []string{cfg.OutputPath, cfg.TestOutputPath, cfg.ParquetPath}
	if err := resetOutputs(outputs...); err != nil {
		logger.Error("failed to reset outputs", "error", err)
		os.Exit(1)
	}

	sinks, closers, err := buildSinks(cfg, logger)
	if err != nil {
		logger.Error("failed to build sinks", "error", err)
		os.Exit(1)
	}

	reader := csvfile.NewReader(csvfile.Options{
		SkipRows:        cfg.SkipRows,
		SkipFooter:      cfg.SkipFooter,
		TimeColumn:      cfg.TimeColumn,
		ValueColumns:    cfg.ValueColumns,
		TimeLayouts:     cfg.TimeLayouts,
		QualityColumn:   cfg.QualityColumn,
		AcceptedQuality: cfg.AcceptedQuality,
	})
	segOpts := cfg.SegmentOptions()
	if segOpts.MinLength != cfg.MinLength {
		logger.Info("min segment length raised to the prediction length", "min_length", segOpts.MinLength)
	}
	segmenter := pipeline.NewSegmenter(segOpts)

	p := pipeline.New(archive.NewExtractor(logger), reader, segmenter, sinks, logger, metrics,
		pipeline.Options{DataDir: cfg.DataDir, PrefixFor: cfg.PrefixFor})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Build the dataset once; the metrics and status endpoints stay up until a signal arrives.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
		for _, c := range closers {
			if err := c.close(); err != nil {
				logger.Error("sink close error", "sink", c.name, "error", err)
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}

	logger.Info("shutdown complete")
}

type sinkCloser struct {
	name  string
	close func() error
}

// buildSinks assembles the loaders enabled by cfg. The training file is always
// written; the test file, Kafka topic and Parquet export are optional.
func buildSinks(cfg *config.Config, logger *slog.Logger) ([]pipeline.Sink, []sinkCloser, error) {
	var trainOpts, testOpts []jsonl.Option
	if cfg.CategoryFromStation {
		trainOpts = append(trainOpts, jsonl.WithStationCategory())
		testOpts = append(testOpts, jsonl.WithStationCategory())
	}
	if cfg.TestOutputPath != "" {
		trainOpts = append(trainOpts, jsonl.WithPredictionLength(cfg.PredictionLength))
	}

	sinks := []pipeline.Sink{
		{Name: observability.SinkDataset, Loader: jsonl.NewWriter(cfg.OutputPath, cfg.TargetColumn, trainOpts...)},
	}
	if cfg.TestOutputPath != "" {
		sinks = append(sinks, pipeline.Sink{
			Name:   observability.SinkTest,
			Loader: jsonl.NewWriter(cfg.TestOutputPath, cfg.TargetColumn, testOpts...),
		})
	}

	var closers []sinkCloser
	if cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, pipeline.Sink{Name: observability.SinkKafka, Loader: w})
		closers = append(closers, sinkCloser{name: observability.SinkKafka, close: w.Close})
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	if cfg.ParquetPath != "" {
		w, err := parquetadapter.NewWriter(cfg.ParquetPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open parquet export: %w", err)
		}
		sinks = append(sinks, pipeline.Sink{Name: observability.SinkParquet, Loader: w})
		closers = append(closers, sinkCloser{name: observability.SinkParquet, close: w.Close})
		logger.Info("parquet export enabled", "path", cfg.ParquetPath)
	}
	return sinks, closers, nil
}

// resetOutputs removes dataset files left by a previous run, since the JSON
// Lines writers append.
func resetOutputs(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}
