package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// freqUnits maps pandas-style offset aliases to fixed durations. Calendar
// offsets (month, quarter, year) have no fixed length and are not listed.
var freqUnits = map[string]time.Duration{
	"S":   time.Second,
	"s":   time.Second,
	"T":   time.Minute,
	"min": time.Minute,
	"H":   time.Hour,
	"h":   time.Hour,
	"D":   24 * time.Hour,
	"W":   7 * 24 * time.Hour,
}

// ParseFreq converts a sampling frequency such as "H", "15min", "2D" or a Go
// duration such as "90m" into a fixed step.
func ParseFreq(freq string) (time.Duration, error) {
	freq = strings.TrimSpace(freq)
	if freq == "" {
		return 0, fmt.Errorf("%w: empty frequency", ErrValidation)
	}

	split := strings.IndexFunc(freq, func(r rune) bool { return !unicode.IsDigit(r) })
	if split >= 0 {
		if unit, ok := freqUnits[freq[split:]]; ok {
			mult := 1
			if split > 0 {
				n, err := strconv.Atoi(freq[:split])
				if err != nil || n <= 0 {
					return 0, fmt.Errorf("%w: invalid frequency multiple in %q", ErrValidation, freq)
				}
				mult = n
			}
			return time.Duration(mult) * unit, nil
		}
	}

	d, err := time.ParseDuration(freq)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: unsupported frequency %q", ErrValidation, freq)
	}
	return d, nil
}

// Steps returns n timestamps starting at start, spaced by step.
func Steps(start time.Time, step time.Duration, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}
