// Package forecast requests probabilistic forecasts for gauge series from a
// hosted DeepAR model and turns the quantile responses into tables.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
	"github.com/couchcryptid/gauge-forecast-etl/internal/observability"
)

// Defaults applied by Predict when PredictOptions leaves them empty.
const DefaultNumSamples = 100

// DefaultQuantiles are requested when PredictOptions.Quantiles is empty.
var DefaultQuantiles = []string{"0.1", "0.5", "0.9"}

// Transport carries an encoded request to the model and returns the raw response.
type Transport interface {
	Send(ctx context.Context, body []byte) ([]byte, error)
}

// Settings describe the model a Predictor talks to.
type Settings struct {
	Freq             time.Duration // sampling step of the series
	PredictionLength int           // points forecast per series
	TargetColumn     string        // column sent as the record target
}

func (s Settings) validate() error {
	if s.Freq <= 0 {
		return fmt.Errorf("%w: frequency must be positive, got %s", domain.ErrValidation, s.Freq)
	}
	if s.PredictionLength <= 0 {
		return fmt.Errorf("%w: prediction length must be positive, got %d", domain.ErrValidation, s.PredictionLength)
	}
	if s.TargetColumn == "" {
		return fmt.Errorf("%w: target column is required", domain.ErrValidation)
	}
	return nil
}

// PredictOptions tunes one prediction request.
type PredictOptions struct {
	Cats       []string // one category per series, or empty
	NumSamples int      // sample paths drawn by the model
	Quantiles  []string // quantile levels as the model expects them, e.g. "0.5"
}

// Table is the forecast for one series: one column per requested quantile,
// indexed by the forecast timestamps.
type Table struct {
	Index   []time.Time
	Columns []string
	Values  [][]float64
}

// Column returns the values of the named quantile.
func (t Table) Column(name string) ([]float64, bool) {
	for i, c := range t.Columns {
		if c == name {
			return t.Values[i], true
		}
	}
	return nil, false
}

// Predictor encodes prediction requests and decodes the model's quantile
// responses. A Predictor is immutable; Configure returns a configured copy.
type Predictor struct {
	transport Transport
	logger    *slog.Logger
	metrics   *observability.Metrics
	settings  *Settings
}

// NewPredictor creates an unconfigured Predictor sending over transport.
func NewPredictor(transport Transport, logger *slog.Logger, metrics *observability.Metrics) *Predictor {
	return &Predictor{transport: transport, logger: logger, metrics: metrics}
}

// Configure returns a copy of p that predicts with s.
func (p *Predictor) Configure(s Settings) (*Predictor, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	cp := *p
	cp.settings = &s
	return &cp, nil
}

// Settings returns the configuration, if any.
func (p *Predictor) Settings() (Settings, bool) {
	if p.settings == nil {
		return Settings{}, false
	}
	return *p.settings, true
}

// Predict requests a forecast continuing each series and returns one Table per
// series in input order. Any failure fails the whole batch.
func (p *Predictor) Predict(ctx context.Context, series []domain.Series, opts PredictOptions) ([]Table, error) {
	tables, err := p.predict(ctx, series, opts)
	p.metrics.PredictionRequests.WithLabelValues(outcome(err)).Inc()
	return tables, err
}

func (p *Predictor) predict(ctx context.Context, series []domain.Series, opts PredictOptions) ([]Table, error) {
	if p.settings == nil {
		return nil, domain.ErrNotConfigured
	}
	s := *p.settings

	if opts.NumSamples == 0 {
		opts.NumSamples = DefaultNumSamples
	}
	if len(opts.Quantiles) == 0 {
		opts.Quantiles = DefaultQuantiles
	}

	continuations, err := continuationTimes(series, s.Freq)
	if err != nil {
		return nil, err
	}
	body, err := encodeRequest(series, s.TargetColumn, opts)
	if err != nil {
		return nil, err
	}

	start := domain.Clock().Now()
	raw, err := p.transport.Send(ctx, body)
	p.metrics.PredictionDuration.Observe(domain.Clock().Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}

	tables, err := decodeResponse(raw, continuations, s, opts.Quantiles)
	if err != nil {
		return nil, err
	}
	p.logger.Info("forecast received",
		"series", len(series),
		"prediction_length", s.PredictionLength,
		"quantiles", opts.Quantiles,
	)
	return tables, nil
}

// continuationTimes returns, per series, the first timestamp after its end.
func continuationTimes(series []domain.Series, freq time.Duration) ([]time.Time, error) {
	out := make([]time.Time, len(series))
	for i, s := range series {
		if s.Len() == 0 {
			return nil, fmt.Errorf("%w: series %d is empty", domain.ErrValidation, i)
		}
		out[i] = s.Last().Add(freq)
	}
	return out, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, domain.ErrTransport):
		return observability.OutcomeTransport
	case errors.Is(err, domain.ErrDecode):
		return observability.OutcomeDecode
	default:
		return observability.OutcomeInvalid
	}
}
