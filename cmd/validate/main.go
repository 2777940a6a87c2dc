// Command validate checks a built training dataset before it is uploaded:
// every JSON line must be a well-formed record, the held-back train split must
// line up with the full-length test split, and the segments of one station
// must not overlap in time.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -train data/train.jsonl \
//	  -test data/test.jsonl \
//	  -prediction-length 24 \
//	  -dynamic rain_Mean
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	trainPath        string
	testPath         string
	predictionLength int
	target           string
	dynamic          []string
	freq             time.Duration
}

func main() {
	trainPath := flag.String("train", "", "path to the training JSON Lines dataset")
	testPath := flag.String("test", "", "path to the full-length test dataset (optional)")
	predictionLength := flag.Int("prediction-length", 0, "target points held back from each training record")
	target := flag.String("target", "flow_Mean", "name of the target column")
	dynamic := flag.String("dynamic", "rain_Mean", "comma-separated names of the dynamic feature columns")
	freq := flag.String("freq", "H", "sampling frequency of the series")
	flag.Parse()

	step, err := domain.ParseFreq(*freq)
	if *trainPath == "" || *predictionLength < 0 || err != nil {
		flag.Usage()
		os.Exit(1)
	}

	opts := options{
		trainPath:        *trainPath,
		testPath:         *testPath,
		predictionLength: *predictionLength,
		target:           *target,
		dynamic:          splitNames(*dynamic),
		freq:             step,
	}
	if code := run(opts); code != 0 {
		os.Exit(code)
	}
}

func run(opts options) int {
	fmt.Println("=== Gauge Dataset Validation ===")
	fmt.Println()

	train, err := loadRecords(opts.trainPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load train dataset: %v\n", err)
		return 1
	}
	var test []domain.Record
	if opts.testPath != "" {
		if test, err = loadRecords(opts.testPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load test dataset: %v\n", err)
			return 1
		}
	}

	phases := validate(train, test, opts)

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d train, %d test\n", len(train), len(test))
	fmt.Println(describe(train))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-i)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	fmt.Println("\nAll checks passed.")
	return 0
}

// validate runs every phase that applies to the loaded datasets.
func validate(train, test []domain.Record, opts options) []*phase {
	phases := []*phase{
		validateShape("Train record shape", train, opts.predictionLength, len(opts.dynamic)),
	}
	var full []domain.Record
	switch {
	case opts.testPath != "":
		phases = append(phases,
			validateShape("Test record shape", test, 0, len(opts.dynamic)),
			validateSplit(train, test, opts.predictionLength),
		)
		full = test
	case opts.predictionLength == 0:
		full = train
	}
	if full != nil {
		phases = append(phases, validateTimeline(full, opts))
	}
	return phases
}

// validateShape checks the per-record invariants: a parseable start, a
// non-empty finite target and dynamic rows covering the target plus the
// held-back horizon.
func validateShape(name string, recs []domain.Record, predictionLength, dynamicRows int) *phase {
	p := &phase{name: name}
	if len(recs) == 0 {
		p.errorf("dataset has no records")
		return p
	}
	for i, rec := range recs {
		if _, err := time.Parse(domain.StartLayout, rec.Start); err != nil {
			p.errorf("record %d: start %q does not match %s", i, rec.Start, domain.StartLayout)
		}
		if len(rec.Target) == 0 {
			p.errorf("record %d: empty target", i)
		}
		if !finite(rec.Target) {
			p.errorf("record %d: target has a missing or infinite value", i)
		}
		if len(rec.DynamicFeat) != dynamicRows {
			p.errorf("record %d: %d dynamic feature rows, want %d", i, len(rec.DynamicFeat), dynamicRows)
		}
		want := len(rec.Target) + predictionLength
		for j, row := range rec.DynamicFeat {
			if len(row) != want {
				p.errorf("record %d: dynamic row %d has %d values, want %d", i, j, len(row), want)
			}
			if !finite(row) {
				p.errorf("record %d: dynamic row %d has a missing or infinite value", i, j)
			}
		}
	}
	return p
}

// validateSplit checks that each training record is its test record with the
// last predictionLength target points removed.
func validateSplit(train, test []domain.Record, predictionLength int) *phase {
	p := &phase{name: "Train/test alignment"}
	if len(train) != len(test) {
		p.errorf("%d train records but %d test records", len(train), len(test))
		return p
	}
	for i := range train {
		tr, te := train[i], test[i]
		if tr.Start != te.Start {
			p.errorf("record %d: train start %s, test start %s", i, tr.Start, te.Start)
		}
		if catString(tr.Cat) != catString(te.Cat) {
			p.errorf("record %d: train cat %q, test cat %q", i, catString(tr.Cat), catString(te.Cat))
		}
		if len(te.Target)-predictionLength != len(tr.Target) {
			p.errorf("record %d: train target has %d values, want %d", i, len(tr.Target), len(te.Target)-predictionLength)
			continue
		}
		if !floats.Equal(tr.Target, te.Target[:len(tr.Target)]) {
			p.errorf("record %d: train target is not a prefix of the test target", i)
		}
		if len(tr.DynamicFeat) != len(te.DynamicFeat) {
			continue
		}
		for j := range tr.DynamicFeat {
			if !floats.Equal(tr.DynamicFeat[j], te.DynamicFeat[j]) {
				p.errorf("record %d: dynamic row %d differs between train and test", i, j)
			}
		}
	}
	return p
}

// validateTimeline decodes full-length records back into series and checks
// that the segments of each station follow one another without overlapping.
// Records without a category cannot be attributed to a station and are only
// decoded.
func validateTimeline(recs []domain.Record, opts options) *phase {
	p := &phase{name: "Segment timeline"}
	lastEnd := make(map[string]time.Time)
	for i, rec := range recs {
		s, err := domain.DecodeRecord(rec, opts.target, opts.dynamic, opts.freq)
		if err != nil {
			p.errorf("record %d: %v", i, err)
			continue
		}
		if rec.Cat == nil {
			continue
		}
		station := *rec.Cat
		if end, ok := lastEnd[station]; ok && !s.First().After(end) {
			p.errorf("record %d: station %q segment starts at %s, not after previous end %s",
				i, station, s.First().Format(domain.StartLayout), end.Format(domain.StartLayout))
		}
		lastEnd[station] = s.Last()
	}
	return p
}

func describe(recs []domain.Record) string {
	if len(recs) == 0 {
		return "Target: no values"
	}
	lengths := make([]float64, len(recs))
	peak := math.Inf(-1)
	total, points := 0.0, 0
	for i, rec := range recs {
		lengths[i] = float64(len(rec.Target))
		if len(rec.Target) == 0 || !finite(rec.Target) {
			continue
		}
		total += floats.Sum(rec.Target)
		points += len(rec.Target)
		peak = math.Max(peak, floats.Max(rec.Target))
	}
	mean := 0.0
	if points > 0 {
		mean = total / float64(points)
	}
	return fmt.Sprintf("Target: %d points, mean %.3f, peak %.3f; segment length min %.0f max %.0f",
		points, mean, peak, floats.Min(lengths), floats.Max(lengths))
}

func loadRecords(path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []domain.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(strings.TrimSpace(sc.Text())) == 0 {
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func catString(cat *string) string {
	if cat == nil {
		return ""
	}
	return *cat
}

func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
