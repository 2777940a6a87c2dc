package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Series is a chronologically indexed table of named numeric columns.
// Values is column-major: Values[c][r] is column c at Index[r]. Missing
// readings are NaN.
type Series struct {
	Index   []time.Time
	Columns []string
	Values  [][]float64
}

// NewSeries validates the shape of a series: one value per index entry in
// every column, unique column names, and a strictly increasing index.
func NewSeries(index []time.Time, columns []string, values [][]float64) (Series, error) {
	if len(columns) != len(values) {
		return Series{}, fmt.Errorf("%w: %d columns but %d value slices", ErrValidation, len(columns), len(values))
	}
	seen := make(map[string]struct{}, len(columns))
	for c, name := range columns {
		if _, dup := seen[name]; dup {
			return Series{}, fmt.Errorf("%w: duplicate column %q", ErrSchema, name)
		}
		seen[name] = struct{}{}
		if len(values[c]) != len(index) {
			return Series{}, fmt.Errorf("%w: column %q has %d values for %d timestamps", ErrValidation, name, len(values[c]), len(index))
		}
	}
	for i := 1; i < len(index); i++ {
		if !index[i].After(index[i-1]) {
			return Series{}, fmt.Errorf("%w: index not strictly increasing at row %d (%s after %s)",
				ErrValidation, i, index[i].Format(time.RFC3339), index[i-1].Format(time.RFC3339))
		}
	}
	return Series{Index: index, Columns: columns, Values: values}, nil
}

// Len returns the number of rows.
func (s Series) Len() int {
	return len(s.Index)
}

// ColumnIndex returns the position of the named column.
func (s Series) ColumnIndex(name string) (int, bool) {
	i := slices.Index(s.Columns, name)
	return i, i >= 0
}

// Column returns the values of the named column. The slice is shared with the series.
func (s Series) Column(name string) ([]float64, bool) {
	i, ok := s.ColumnIndex(name)
	if !ok {
		return nil, false
	}
	return s.Values[i], true
}

// First returns the first timestamp. It panics on an empty series.
func (s Series) First() time.Time {
	return s.Index[0]
}

// Last returns the last timestamp. It panics on an empty series.
func (s Series) Last() time.Time {
	return s.Index[len(s.Index)-1]
}

// Slice copies rows [from, to) into a new series.
func (s Series) Slice(from, to int) Series {
	out := Series{
		Index:   slices.Clone(s.Index[from:to]),
		Columns: slices.Clone(s.Columns),
		Values:  make([][]float64, len(s.Values)),
	}
	for c := range s.Values {
		out.Values[c] = slices.Clone(s.Values[c][from:to])
	}
	return out
}

// DropMissing returns a copy without the rows that have a NaN in any column.
func (s Series) DropMissing() Series {
	keep := make([]int, 0, s.Len())
	for r := range s.Index {
		if !s.rowHasNaN(r) {
			keep = append(keep, r)
		}
	}

	out := Series{
		Index:   make([]time.Time, len(keep)),
		Columns: slices.Clone(s.Columns),
		Values:  make([][]float64, len(s.Values)),
	}
	for c := range s.Values {
		out.Values[c] = make([]float64, len(keep))
	}
	for i, r := range keep {
		out.Index[i] = s.Index[r]
		for c := range s.Values {
			out.Values[c][i] = s.Values[c][r]
		}
	}
	return out
}

func (s Series) rowHasNaN(r int) bool {
	for c := range s.Values {
		if math.IsNaN(s.Values[c][r]) {
			return true
		}
	}
	return false
}

// JoinSeries outer-joins series on their timestamps. The result is indexed by
// the sorted union of all timestamps; a column has NaN where its source series
// had no row. Column names must be unique across inputs.
func JoinSeries(series ...Series) (Series, error) {
	switch len(series) {
	case 0:
		return Series{}, nil
	case 1:
		return series[0].Slice(0, series[0].Len()), nil
	}

	var columns []string
	seen := make(map[string]struct{})
	stamps := make(map[int64]time.Time)
	for _, s := range series {
		for _, name := range s.Columns {
			if _, dup := seen[name]; dup {
				return Series{}, fmt.Errorf("%w: column %q appears in more than one series", ErrSchema, name)
			}
			seen[name] = struct{}{}
			columns = append(columns, name)
		}
		for _, ts := range s.Index {
			stamps[ts.UnixNano()] = ts
		}
	}

	index := make([]time.Time, 0, len(stamps))
	for _, ts := range stamps {
		index = append(index, ts)
	}
	slices.SortFunc(index, func(a, b time.Time) int { return a.Compare(b) })

	pos := make(map[int64]int, len(index))
	for i, ts := range index {
		pos[ts.UnixNano()] = i
	}

	values := make([][]float64, 0, len(columns))
	for _, s := range series {
		for c := range s.Columns {
			col := make([]float64, len(index))
			for i := range col {
				col[i] = math.NaN()
			}
			for r, ts := range s.Index {
				col[pos[ts.UnixNano()]] = s.Values[c][r]
			}
			values = append(values, col)
		}
	}

	return Series{Index: index, Columns: columns, Values: values}, nil
}
