package domain

import (
	"fmt"
	"slices"
	"time"
)

// StartLayout is the timestamp layout of a record's start field.
const StartLayout = "2006-01-02 15:04:05"

// Record is the JSON shape the forecasting service trains and predicts on.
type Record struct {
	Start       string      `json:"start"`
	Target      []float64   `json:"target"`
	DynamicFeat [][]float64 `json:"dynamic_feat"`
	Cat         *string     `json:"cat,omitempty"`
}

// EncodeOptions tunes Encode. The zero value keeps the whole target and omits the category.
type EncodeOptions struct {
	// PredictionLength trailing target values are held back from the record.
	PredictionLength int
	// Cat is written as the record category when set.
	Cat *string
}

// Encode converts a segment into a Record. targetCol becomes the target; every
// other column becomes a dynamic feature row in segment column order.
func Encode(seg Series, targetCol string, opts EncodeOptions) (Record, error) {
	target, ok := seg.ColumnIndex(targetCol)
	if !ok {
		return Record{}, fmt.Errorf("%w: target column %q not in %v", ErrSchema, targetCol, seg.Columns)
	}
	n := seg.Len()
	if n == 0 {
		return Record{}, fmt.Errorf("%w: cannot encode an empty segment", ErrValidation)
	}
	if opts.PredictionLength < 0 || opts.PredictionLength > n {
		return Record{}, fmt.Errorf("%w: prediction length %d outside segment of length %d",
			ErrValidation, opts.PredictionLength, n)
	}

	dynamic := make([][]float64, 0, len(seg.Columns)-1)
	for c := range seg.Columns {
		if c == target {
			continue
		}
		dynamic = append(dynamic, slices.Clone(seg.Values[c]))
	}

	rec := Record{
		Start:       seg.First().Format(StartLayout),
		Target:      slices.Clone(seg.Values[target][:n-opts.PredictionLength]),
		DynamicFeat: dynamic,
	}
	if opts.Cat != nil {
		cat := *opts.Cat
		rec.Cat = &cat
	}
	return rec, nil
}

// EncodeAll encodes every series with the same target and options.
func EncodeAll(series []Series, targetCol string, opts EncodeOptions) ([]Record, error) {
	out := make([]Record, 0, len(series))
	for i, s := range series {
		rec, err := Encode(s, targetCol, opts)
		if err != nil {
			return nil, fmt.Errorf("encode series %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeRecord rebuilds a series from a record that kept its whole target.
// The target becomes column targetCol followed by one column per dynamic
// feature named by dynamicCols, spaced by freq from the start timestamp.
func DecodeRecord(rec Record, targetCol string, dynamicCols []string, freq time.Duration) (Series, error) {
	if len(dynamicCols) != len(rec.DynamicFeat) {
		return Series{}, fmt.Errorf("%w: %d dynamic feature rows but %d names", ErrValidation, len(rec.DynamicFeat), len(dynamicCols))
	}
	start, err := time.Parse(StartLayout, rec.Start)
	if err != nil {
		return Series{}, fmt.Errorf("%w: record start %q: %v", ErrParse, rec.Start, err)
	}

	index := Steps(start, freq, len(rec.Target))
	columns := append([]string{targetCol}, dynamicCols...)
	values := make([][]float64, 0, len(columns))
	values = append(values, slices.Clone(rec.Target))
	for _, row := range rec.DynamicFeat {
		values = append(values, slices.Clone(row))
	}
	return NewSeries(index, columns, values)
}
