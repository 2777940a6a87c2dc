package domain

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
)

// SegmentOptions controls how a series is split and which pieces survive.
type SegmentOptions struct {
	// TimeDelta is the largest gap allowed between consecutive rows of one segment.
	TimeDelta time.Duration
	// MinLength is exclusive: a segment needs more than MinLength rows.
	MinLength int
	// MinRain is inclusive: the peak of SecondaryColumn must reach it.
	MinRain float64
	// SecondaryColumn is the column whose peak gates a segment, usually rainfall.
	SecondaryColumn string
}

// SegmentStats counts what segmentation did to one series.
type SegmentStats struct {
	MissingRows int // rows dropped for having a NaN
	Kept        int
	Dropped     int // segments rejected by the length or peak filter
}

// Segment splits ts wherever consecutive timestamps are more than TimeDelta
// apart and returns the segments that pass the length and peak filters, in
// time order. Rows with a missing value in any column are dropped first.
func Segment(ts Series, opts SegmentOptions) ([]Series, error) {
	segs, _, err := SegmentWithStats(ts, opts)
	return segs, err
}

// SegmentWithStats is Segment that also reports counts for metrics.
func SegmentWithStats(ts Series, opts SegmentOptions) ([]Series, SegmentStats, error) {
	var stats SegmentStats
	if opts.TimeDelta < 0 {
		return nil, stats, fmt.Errorf("%w: negative time delta %s", ErrValidation, opts.TimeDelta)
	}
	if opts.MinLength < 0 {
		return nil, stats, fmt.Errorf("%w: negative min length %d", ErrValidation, opts.MinLength)
	}
	secondary, ok := ts.ColumnIndex(opts.SecondaryColumn)
	if !ok {
		return nil, stats, fmt.Errorf("%w: secondary column %q not in %v", ErrSchema, opts.SecondaryColumn, ts.Columns)
	}

	clean := ts.DropMissing()
	stats.MissingRows = ts.Len() - clean.Len()
	ids := segmentIDs(clean.Index, opts.TimeDelta)

	var out []Series
	start := 0
	for r := 1; r <= len(ids); r++ {
		if r < len(ids) && ids[r] == ids[start] {
			continue
		}
		if keepSegment(clean.Values[secondary][start:r], opts) {
			out = append(out, clean.Slice(start, r))
			stats.Kept++
		} else {
			stats.Dropped++
		}
		start = r
	}
	return out, stats, nil
}

// segmentIDs assigns every row the running count of gaps larger than delta
// seen so far, so ids start at 0 and never decrease.
func segmentIDs(index []time.Time, delta time.Duration) []int {
	ids := make([]int, len(index))
	for i := 1; i < len(index); i++ {
		ids[i] = ids[i-1]
		if index[i].Sub(index[i-1]) > delta {
			ids[i]++
		}
	}
	return ids
}

func keepSegment(secondary []float64, opts SegmentOptions) bool {
	if len(secondary) <= opts.MinLength || len(secondary) == 0 {
		return false
	}
	return floats.Max(secondary) >= opts.MinRain
}
