package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// hourly builds a flow/rain series with one row per offset (in hours from testBase).
func hourly(t *testing.T, offsets []int, flow, rain []float64) Series {
	t.Helper()
	index := make([]time.Time, len(offsets))
	for i, h := range offsets {
		index[i] = testBase.Add(time.Duration(h) * time.Hour)
	}
	s, err := NewSeries(index, []string{"flow", "rain"}, [][]float64{flow, rain})
	require.NoError(t, err)
	return s
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func ramp(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}
