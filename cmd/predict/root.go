package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/gauge-forecast-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/gauge-forecast-etl/internal/adapter/endpoint"
	"github.com/couchcryptid/gauge-forecast-etl/internal/config"
	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
	"github.com/couchcryptid/gauge-forecast-etl/internal/forecast"
	"github.com/couchcryptid/gauge-forecast-etl/internal/observability"
	"github.com/spf13/cobra"
)

// predictFlags holds the command line overrides for a prediction run.
type predictFlags struct {
	endpoint         string
	freq             string
	predictionLength int
	target           string
	category         string
	numSamples       int
	quantiles        []string
	context          int
}

func newRootCmd(metrics *observability.Metrics) *cobra.Command {
	flags := &predictFlags{}

	cmd := &cobra.Command{
		Use:   "predict [flags] CSV...",
		Short: "Forecast a gauge series with a deployed model endpoint.",
		Long: `Read one or more gauge CSV exports, join them on timestamp and request a
forecast continuing the joined series.

The CSV layout, column prefixes and defaults for the flags below come from the
same environment variables as the ETL (SKIP_ROWS, SOURCE_PREFIXES, FREQ,
PREDICTION_LENGTH, TARGET_COLUMN, ENDPOINT_URL, ...). Flags take precedence.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyConfigDefaults(cmd, flags, cfg)
			return runPredict(cmd, flags, cfg, metrics, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.endpoint, "endpoint", "", "prediction endpoint URL (default $ENDPOINT_URL)")
	f.StringVar(&flags.freq, "freq", "", "series frequency such as H, 15min or 90m (default $FREQ)")
	f.IntVar(&flags.predictionLength, "prediction-length", 0, "points to forecast (default $PREDICTION_LENGTH)")
	f.StringVar(&flags.target, "target", "", "target column (default $TARGET_COLUMN)")
	f.StringVar(&flags.category, "cat", "", "category sent with the series")
	f.IntVar(&flags.numSamples, "num-samples", forecast.DefaultNumSamples, "sample paths drawn by the model")
	f.StringSliceVar(&flags.quantiles, "quantiles", forecast.DefaultQuantiles, "quantile levels to request")
	f.IntVar(&flags.context, "context", 0, "send only the last N rows of the series (0 sends all)")

	return cmd
}

// applyConfigDefaults fills flags the user did not set from the environment config.
func applyConfigDefaults(cmd *cobra.Command, flags *predictFlags, cfg *config.Config) {
	f := cmd.Flags()
	if !f.Changed("endpoint") {
		flags.endpoint = cfg.EndpointURL
	}
	if !f.Changed("prediction-length") {
		flags.predictionLength = cfg.PredictionLength
	}
	if !f.Changed("target") {
		flags.target = cfg.TargetColumn
	}
}

func runPredict(cmd *cobra.Command, flags *predictFlags, cfg *config.Config, metrics *observability.Metrics, paths []string) error {
	if flags.endpoint == "" {
		return errors.New("no endpoint: set --endpoint or ENDPOINT_URL")
	}
	if flags.context < 0 {
		return fmt.Errorf("invalid --context %d", flags.context)
	}

	freq := cfg.Freq
	if flags.freq != "" {
		d, err := domain.ParseFreq(flags.freq)
		if err != nil {
			return fmt.Errorf("invalid --freq: %w", err)
		}
		freq = d
	}

	series, err := readSeries(cfg, paths)
	if err != nil {
		return err
	}
	if flags.context > 0 && series.Len() > flags.context {
		series = series.Slice(series.Len()-flags.context, series.Len())
	}

	logger := observability.NewLogger(observability.LoggerConfig{Level: cfg.LogLevel, Format: "text"})
	client := endpoint.NewClient(flags.endpoint, cfg.EndpointTimeout, logger)
	predictor, err := forecast.NewPredictor(client, logger, metrics).Configure(forecast.Settings{
		Freq:             freq,
		PredictionLength: flags.predictionLength,
		TargetColumn:     flags.target,
	})
	if err != nil {
		return err
	}

	opts := forecast.PredictOptions{NumSamples: flags.numSamples, Quantiles: flags.quantiles}
	if flags.category != "" {
		opts.Cats = []string{flags.category}
	}
	tables, err := predictor.Predict(cmd.Context(), []domain.Series{series}, opts)
	if err != nil {
		return err
	}
	return printTable(cmd.OutOrStdout(), tables[0])
}

// readSeries reads every path with the prefix chosen by SOURCE_PREFIXES and
// joins the results, dropping rows that are missing a value.
func readSeries(cfg *config.Config, paths []string) (domain.Series, error) {
	parts := make([]domain.Series, 0, len(paths))
	for _, path := range paths {
		s, _, err := csvfile.ReadFile(path, csvfile.Options{
			SkipRows:        cfg.SkipRows,
			SkipFooter:      cfg.SkipFooter,
			TimeColumn:      cfg.TimeColumn,
			ValueColumns:    cfg.ValueColumns,
			TimeLayouts:     cfg.TimeLayouts,
			QualityColumn:   cfg.QualityColumn,
			AcceptedQuality: cfg.AcceptedQuality,
			Prefix:          cfg.PrefixFor(filepath.Base(path)),
		})
		if err != nil {
			return domain.Series{}, err
		}
		parts = append(parts, s)
	}
	joined, err := domain.JoinSeries(parts...)
	if err != nil {
		return domain.Series{}, fmt.Errorf("join series: %w", err)
	}
	joined = joined.DropMissing()
	if joined.Len() == 0 {
		return domain.Series{}, errors.New("no complete rows to send")
	}
	return joined, nil
}

func printTable(w io.Writer, t forecast.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "timestamp")
	for _, c := range t.Columns {
		fmt.Fprintf(tw, "\t%s", c)
	}
	fmt.Fprintln(tw)
	for r, ts := range t.Index {
		fmt.Fprint(tw, ts.Format(time.DateTime))
		for c := range t.Columns {
			fmt.Fprintf(tw, "\t%s", strconv.FormatFloat(t.Values[c][r], 'f', 4, 64))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
