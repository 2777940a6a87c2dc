package forecast

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
	"gonum.org/v1/gonum/floats"
)

type request struct {
	Instances     []domain.Record `json:"instances"`
	Configuration requestConfig   `json:"configuration"`
}

type requestConfig struct {
	NumSamples  int      `json:"num_samples"`
	OutputTypes []string `json:"output_types"`
	Quantiles   []string `json:"quantiles"`
}

type response struct {
	Predictions []prediction `json:"predictions"`
}

type prediction struct {
	Quantiles map[string][]float64 `json:"quantiles"`
}

// encodeRequest builds the request body: every series as a full-length record
// plus the sampling configuration.
func encodeRequest(series []domain.Series, targetCol string, opts PredictOptions) ([]byte, error) {
	if len(opts.Cats) > 0 && len(opts.Cats) != len(series) {
		return nil, fmt.Errorf("%w: %d categories for %d series", domain.ErrValidation, len(opts.Cats), len(series))
	}
	if opts.NumSamples <= 0 {
		return nil, fmt.Errorf("%w: num samples must be positive, got %d", domain.ErrValidation, opts.NumSamples)
	}

	req := request{
		Instances: make([]domain.Record, len(series)),
		Configuration: requestConfig{
			NumSamples:  opts.NumSamples,
			OutputTypes: []string{"quantiles"},
			Quantiles:   opts.Quantiles,
		},
	}
	for i, s := range series {
		enc := domain.EncodeOptions{}
		if len(opts.Cats) > 0 {
			enc.Cat = &opts.Cats[i]
		}
		rec, err := domain.Encode(s, targetCol, enc)
		if err != nil {
			return nil, fmt.Errorf("encode series %d: %w", i, err)
		}
		if hasMissing(rec) {
			return nil, fmt.Errorf("%w: series %d has missing values", domain.ErrValidation, i)
		}
		req.Instances[i] = rec
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", domain.ErrValidation, err)
	}
	return body, nil
}

func hasMissing(rec domain.Record) bool {
	if floats.HasNaN(rec.Target) {
		return true
	}
	for _, row := range rec.DynamicFeat {
		if floats.HasNaN(row) {
			return true
		}
	}
	return false
}

// decodeResponse turns the model response into one Table per continuation time.
func decodeResponse(raw []byte, continuations []time.Time, s Settings, quantiles []string) ([]Table, error) {
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if len(resp.Predictions) != len(continuations) {
		return nil, fmt.Errorf("%w: %d predictions for %d series", domain.ErrDecode, len(resp.Predictions), len(continuations))
	}

	tables := make([]Table, len(continuations))
	for i, pred := range resp.Predictions {
		t := Table{
			Index:   domain.Steps(continuations[i], s.Freq, s.PredictionLength),
			Columns: slices.Clone(quantiles),
			Values:  make([][]float64, len(quantiles)),
		}
		for c, q := range quantiles {
			values, ok := pred.Quantiles[q]
			if !ok {
				return nil, fmt.Errorf("%w: prediction %d has no quantile %q", domain.ErrDecode, i, q)
			}
			if len(values) != s.PredictionLength {
				return nil, fmt.Errorf("%w: prediction %d quantile %q has %d values, want %d",
					domain.ErrDecode, i, q, len(values), s.PredictionLength)
			}
			t.Values[c] = values
		}
		tables[i] = t
	}
	return tables, nil
}
