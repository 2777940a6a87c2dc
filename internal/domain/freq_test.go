package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFreq(t *testing.T) {
	tests := []struct {
		freq     string
		expected time.Duration
	}{
		{"H", time.Hour},
		{"h", time.Hour},
		{"D", 24 * time.Hour},
		{"T", time.Minute},
		{"min", time.Minute},
		{"15min", 15 * time.Minute},
		{"6H", 6 * time.Hour},
		{"S", time.Second},
		{"W", 7 * 24 * time.Hour},
		{"90m", 90 * time.Minute},
		{"1h30m", 90 * time.Minute},
		{" 2D ", 48 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.freq, func(t *testing.T) {
			d, err := ParseFreq(tt.freq)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestParseFreq_Invalid(t *testing.T) {
	for _, freq := range []string{"", "M", "Y", "0H", "-1h", "fortnight"} {
		t.Run(freq, func(t *testing.T) {
			_, err := ParseFreq(freq)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSteps(t *testing.T) {
	got := Steps(testBase, time.Hour, 3)
	assert.Equal(t, []time.Time{testBase, testBase.Add(time.Hour), testBase.Add(2 * time.Hour)}, got)
	assert.Empty(t, Steps(testBase, time.Hour, 0))
}
