// Package csvfile reads gauge CSV exports into domain series.
package csvfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
)

// DefaultTimeLayouts are tried in order when Options.TimeLayouts is empty.
var DefaultTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	time.RFC3339,
}

// Options describes the layout of one CSV export.
type Options struct {
	SkipRows     int      // metadata lines before the header row
	SkipFooter   int      // summary lines after the last reading
	TimeColumn   string   // header of the timestamp column
	ValueColumns []string // headers of the numeric columns to keep
	Prefix       string   // prepended to every kept column name
	TimeLayouts  []string // Go time layouts tried in order

	// QualityColumn and AcceptedQuality enable quality filtering when both are set.
	QualityColumn   string
	AcceptedQuality []int

	// Location applies to timestamps without a zone. Defaults to UTC.
	Location *time.Location
}

// ReadStats describes what happened to the rows of one file.
type ReadStats = domain.ReadStats

// Read parses the CSV at path into a series.
func Read(path string, opts Options) (domain.Series, error) {
	s, _, err := ReadFile(path, opts)
	return s, err
}

// ReadFile parses the CSV at path and reports row statistics.
func ReadFile(path string, opts Options) (domain.Series, ReadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Series{}, ReadStats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	s, stats, err := Parse(f, opts)
	if err != nil {
		return domain.Series{}, stats, fmt.Errorf("read %s: %w", path, err)
	}
	return s, stats, nil
}

// Reader reads every file with the same layout, varying only the column prefix.
// It implements pipeline.SeriesReader.
type Reader struct {
	opts Options
}

// NewReader creates a Reader for files laid out as opts describes.
func NewReader(opts Options) *Reader {
	return &Reader{opts: opts}
}

// ReadSeries parses the CSV at path, prefixing its value columns with prefix.
func (r *Reader) ReadSeries(ctx context.Context, path, prefix string) (domain.Series, ReadStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.Series{}, ReadStats{}, err
	}
	opts := r.opts
	opts.Prefix = prefix
	return ReadFile(path, opts)
}

// Parse reads a CSV export from r.
func Parse(r io.Reader, opts Options) (domain.Series, ReadStats, error) {
	var stats ReadStats
	if opts.SkipRows < 0 || opts.SkipFooter < 0 {
		return domain.Series{}, stats, fmt.Errorf("%w: negative skip rows/footer", domain.ErrValidation)
	}

	body, err := trimLines(r, opts.SkipRows, opts.SkipFooter)
	if err != nil {
		return domain.Series{}, stats, err
	}

	cr := csv.NewReader(bytes.NewReader(body))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.Series{}, stats, fmt.Errorf("%w: no header row after skipping %d lines", domain.ErrSchema, opts.SkipRows)
	}
	if err != nil {
		return domain.Series{}, stats, fmt.Errorf("%w: header: %v", domain.ErrParse, err)
	}

	cols, err := resolveColumns(header, opts)
	if err != nil {
		return domain.Series{}, stats, err
	}

	layouts := opts.TimeLayouts
	if len(layouts) == 0 {
		layouts = DefaultTimeLayouts
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	var rows []row
	line := opts.SkipRows + 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return domain.Series{}, stats, fmt.Errorf("%w: line %d: %v", domain.ErrParse, line, err)
		}
		stats.Rows++

		ts, err := parseTime(field(rec, cols.time), layouts, loc)
		if err != nil {
			return domain.Series{}, stats, fmt.Errorf("%w: line %d: %v", domain.ErrParse, line, err)
		}

		if cols.quality >= 0 {
			ok, err := acceptQuality(field(rec, cols.quality), cols.accepted)
			if err != nil {
				return domain.Series{}, stats, fmt.Errorf("%w: line %d: %v", domain.ErrParse, line, err)
			}
			if !ok {
				stats.Filtered++
				continue
			}
		}

		values := make([]float64, len(cols.values))
		for i, c := range cols.values {
			v, err := parseValue(field(rec, c))
			if err != nil {
				return domain.Series{}, stats, fmt.Errorf("%w: line %d column %q: %v", domain.ErrParse, line, header[c], err)
			}
			values[i] = v
		}
		rows = append(rows, row{ts: ts, values: values})
	}

	// Stable sort keeps the first occurrence of a duplicated timestamp first.
	slices.SortStableFunc(rows, func(a, b row) int { return a.ts.Compare(b.ts) })
	unique := rows[:0]
	for _, rw := range rows {
		if len(unique) > 0 && unique[len(unique)-1].ts.Equal(rw.ts) {
			stats.Duplicates++
			continue
		}
		unique = append(unique, rw)
	}
	rows = unique

	names := make([]string, len(opts.ValueColumns))
	for i, name := range opts.ValueColumns {
		names[i] = opts.Prefix + name
	}
	index := make([]time.Time, len(rows))
	values := make([][]float64, len(names))
	for c := range values {
		values[c] = make([]float64, len(rows))
	}
	for r, rw := range rows {
		index[r] = rw.ts
		for c := range values {
			values[c][r] = rw.values[c]
		}
	}

	s, err := domain.NewSeries(index, names, values)
	return s, stats, err
}

type row struct {
	ts     time.Time
	values []float64
}

type columns struct {
	time     int
	values   []int
	quality  int
	accepted map[int]struct{}
}

func resolveColumns(header []string, opts Options) (columns, error) {
	lookup := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := lookup[h]; !dup {
			lookup[h] = i
		}
	}
	find := func(name string) (int, error) {
		i, ok := lookup[name]
		if !ok {
			return -1, fmt.Errorf("%w: column %q not in header %v", domain.ErrSchema, name, header)
		}
		return i, nil
	}

	var cols columns
	var err error
	if cols.time, err = find(opts.TimeColumn); err != nil {
		return cols, err
	}
	if len(opts.ValueColumns) == 0 {
		return cols, fmt.Errorf("%w: no value columns requested", domain.ErrValidation)
	}
	for _, name := range opts.ValueColumns {
		i, err := find(name)
		if err != nil {
			return cols, err
		}
		cols.values = append(cols.values, i)
	}

	cols.quality = -1
	if opts.QualityColumn != "" && len(opts.AcceptedQuality) > 0 {
		if cols.quality, err = find(opts.QualityColumn); err != nil {
			return cols, err
		}
		cols.accepted = make(map[int]struct{}, len(opts.AcceptedQuality))
		for _, q := range opts.AcceptedQuality {
			cols.accepted[q] = struct{}{}
		}
	}
	return cols, nil
}

// trimLines drops the first skip lines and the last footer non-blank lines.
func trimLines(r io.Reader, skip, footer int) ([]byte, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for n := 0; sc.Scan(); n++ {
		if n < skip {
			continue
		}
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}

	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if footer > len(lines) {
		footer = len(lines)
	}
	lines = lines[:len(lines)-footer]

	return []byte(strings.Join(lines, "\n")), nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseTime(value string, layouts []string, loc *time.Location) (time.Time, error) {
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q matches none of %v", value, layouts)
}

func parseValue(value string) (float64, error) {
	if value == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(value, 64)
}

func acceptQuality(value string, accepted map[int]struct{}) (bool, error) {
	if value == "" {
		return false, nil
	}
	q, err := strconv.Atoi(value)
	if err != nil {
		return false, fmt.Errorf("quality code %q: %w", value, err)
	}
	_, ok := accepted[q]
	return ok, nil
}
