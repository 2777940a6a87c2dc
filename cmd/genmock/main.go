// Command genmock writes synthetic gauge archives in the agency export layout,
// one zip per station holding a stream flow and a rainfall CSV. Every file is
// parsed back with the real CSV reader before it is archived, so the output
// is guaranteed to load in the ETL.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -stations 3 -hours 720 -seed 42
package main

import (
	"archive/zip"
	"bytes"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/gauge-forecast-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
	"gonum.org/v1/gonum/floats"
)

const (
	timeLayout  = "02/01/2006 15:04:05"
	goodQuality = 10
	badQuality  = 255
)

var baseDate = time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)

type genOptions struct {
	hours      int
	outageProb float64 // chance an hour starts a sensor outage
	badProb    float64 // chance a reading is flagged with a bad quality code
	rainProb   float64 // chance an hour starts a storm
}

// reading is one generated row; missing readings have NaN values.
type reading struct {
	ts      time.Time
	value   float64
	quality int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "", "directory to write station archives into")
	stations := flag.Int("stations", 3, "number of stations to generate")
	hours := flag.Int("hours", 24*30, "hours of readings per station")
	seed := flag.Uint64("seed", 42, "random seed for reproducible output")
	outage := flag.Float64("outage", 0.01, "probability an hour starts a sensor outage")
	bad := flag.Float64("bad-quality", 0.02, "probability a reading carries a bad quality code")
	storm := flag.Float64("storm", 0.03, "probability an hour starts a storm")
	flag.Parse()

	if *outDir == "" || *stations <= 0 || *hours <= 0 {
		flag.Usage()
		return fmt.Errorf("missing or invalid flags: -out, -stations, -hours")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	opts := genOptions{hours: *hours, outageProb: *outage, badProb: *bad, rainProb: *storm}

	for i := 1; i <= *stations; i++ {
		name := fmt.Sprintf("station_%03d", i)
		rain, flow := generateStation(rng, opts)

		files := map[string][]byte{
			"rain_" + name + ".csv": renderCSV(name, "Rainfall (mm)", rain),
			"flow_" + name + ".csv": renderCSV(name, "Stream flow (m3/s)", flow),
		}
		for file, content := range files {
			if err := checkParses(content); err != nil {
				return fmt.Errorf("%s/%s: %w", name, file, err)
			}
		}

		path := filepath.Join(*outDir, name+".zip")
		if err := writeZip(path, files); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		log.Printf("%s: %s", path, describe(rain, flow))
	}
	return nil
}

// generateStation simulates hourly rainfall as random storms and stream flow
// as a base flow plus a decaying response to recent rain.
func generateStation(rng *rand.Rand, opts genOptions) (rain, flow []reading) {
	index := domain.Steps(baseDate, time.Hour, opts.hours)
	rain = make([]reading, len(index))
	flow = make([]reading, len(index))

	baseFlow := 0.5 + rng.Float64()
	storm := 0
	runoff := 0.0
	outage := 0
	for i, ts := range index {
		if storm == 0 && rng.Float64() < opts.rainProb {
			storm = 2 + rng.IntN(10)
		}
		r := 0.0
		if storm > 0 {
			r = math.Round(rng.ExpFloat64()*20) / 10
			storm--
		}
		runoff = runoff*0.85 + r*0.3
		f := math.Round((baseFlow+runoff+rng.NormFloat64()*0.02)*1000) / 1000

		rain[i] = reading{ts: ts, value: r, quality: goodQuality}
		flow[i] = reading{ts: ts, value: math.Max(f, 0), quality: goodQuality}

		if outage == 0 && rng.Float64() < opts.outageProb {
			outage = 2 + rng.IntN(24)
		}
		if outage > 0 {
			flow[i] = reading{ts: ts, value: math.NaN(), quality: badQuality}
			outage--
			continue
		}
		if rng.Float64() < opts.badProb {
			flow[i].quality = badQuality
		}
	}
	return rain, flow
}

func renderCSV(station, variable string, rows []reading) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Station,%s\n", station)
	fmt.Fprintf(&b, "Variable,%s\n", variable)
	b.WriteString("Interval,1 hour\n")
	b.WriteString(`"Date and time","Mean","Quality"` + "\n")
	for _, r := range rows {
		value := ""
		if !math.IsNaN(r.value) {
			value = strconv.FormatFloat(r.value, 'f', -1, 64)
		}
		fmt.Fprintf(&b, "\"%s\",\"%s\",%d\n", r.ts.Format(timeLayout), value, r.quality)
	}
	fmt.Fprintf(&b, "Total rows,%d\n", len(rows))
	b.WriteString("Generated by genmock\n")
	return b.Bytes()
}

func checkParses(content []byte) error {
	_, _, err := csvfile.Parse(bytes.NewReader(content), csvfile.Options{
		SkipRows:        3,
		SkipFooter:      2,
		TimeColumn:      "Date and time",
		ValueColumns:    []string{"Mean"},
		QualityColumn:   "Quality",
		AcceptedQuality: []int{goodQuality},
	})
	return err
}

func writeZip(path string, files map[string][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			_ = f.Close()
			return err
		}
		if _, err := w.Write(content); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func describe(rain, flow []reading) string {
	rainValues := make([]float64, 0, len(rain))
	for _, r := range rain {
		rainValues = append(rainValues, r.value)
	}
	flowValues := make([]float64, 0, len(flow))
	flagged := 0
	for _, r := range flow {
		if r.quality != goodQuality {
			flagged++
			continue
		}
		flowValues = append(flowValues, r.value)
	}

	peakFlow := 0.0
	if len(flowValues) > 0 {
		peakFlow = floats.Max(flowValues)
	}
	return fmt.Sprintf("%d hours, total rain %.1f mm, peak rain %.1f mm, peak flow %.3f, %d flagged flow readings",
		len(rain), floats.Sum(rainValues), floats.Max(rainValues), peakFlow, flagged)
}
