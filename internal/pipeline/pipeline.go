package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
	"github.com/couchcryptid/gauge-forecast-etl/internal/observability"
)

// FileSource discovers the CSV files to read.
type FileSource interface {
	ListDataFiles(ctx context.Context, dir string) ([]domain.DataFile, error)
}

// SeriesReader parses one CSV file into a series whose columns carry prefix.
type SeriesReader interface {
	ReadSeries(ctx context.Context, path, prefix string) (domain.Series, domain.ReadStats, error)
}

// Segmenter splits a station series into the segments worth training on.
type Segmenter interface {
	Segment(ts domain.Series) ([]domain.Series, domain.SegmentStats, error)
}

// BatchLoader writes the kept segments of one station to a destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, batch domain.Batch) error
}

// Sink names a loader for logs and the records_written_total metric.
type Sink struct {
	Name   string
	Loader BatchLoader
}

// Options configures a run.
type Options struct {
	DataDir string
	// PrefixFor picks the column prefix for a file from its base name.
	PrefixFor func(name string) string
}

// Summary describes a completed run.
type Summary struct {
	Files      int
	Stations   int // stations loaded
	Failed     int // stations skipped after a read or segment error
	Segments   int // segments kept and loaded
	Dropped    int // segments rejected by the filters
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the run took.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Pipeline builds a training dataset from a directory of gauge archives:
// discover, read, join per station, segment, load.
type Pipeline struct {
	source    FileSource
	reader    SeriesReader
	segmenter Segmenter
	sinks     []Sink
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
	ready     atomic.Bool

	mu      sync.Mutex
	state   string
	last    Summary
	lastErr error
}

// Run states reported by Status.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// RunStatus is the JSON view of the latest run.
type RunStatus struct {
	State      string    `json:"state"`
	Files      int       `json:"files"`
	Stations   int       `json:"stations"`
	Failed     int       `json:"failed"`
	Segments   int       `json:"segments"`
	Dropped    int       `json:"dropped"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// New creates a Pipeline with the given stages and observability.
func New(source FileSource, reader SeriesReader, segmenter Segmenter, sinks []Sink, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	return &Pipeline{
		source:    source,
		reader:    reader,
		segmenter: segmenter,
		sinks:     sinks,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
		state:     StateIdle,
	}
}

// Status reports the state and counters of the latest run.
func (p *Pipeline) Status() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := RunStatus{
		State:      p.state,
		Files:      p.last.Files,
		Stations:   p.last.Stations,
		Failed:     p.last.Failed,
		Segments:   p.last.Segments,
		Dropped:    p.last.Dropped,
		StartedAt:  p.last.StartedAt,
		FinishedAt: p.last.FinishedAt,
	}
	if p.lastErr != nil {
		st.Error = p.lastErr.Error()
	}
	return st
}

func (p *Pipeline) setState(state string, summary Summary, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	p.last = summary
	p.lastErr = err
}

// CheckReadiness returns nil once a run has completed, or an error naming the
// state of the dataset build.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.ready.Load() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateRunning:
		return errors.New("dataset build in progress")
	case StateFailed:
		return fmt.Errorf("dataset build failed: %w", p.lastErr)
	default:
		return errors.New("dataset build has not started")
	}
}

// Run processes every station in the data directory once. A station whose
// files cannot be read or segmented is skipped; a loader failure stops the run.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	summary := Summary{StartedAt: domain.Clock().Now()}
	p.setState(StateRunning, summary, nil)
	summary, err := p.run(ctx, summary)
	if err != nil {
		summary.FinishedAt = domain.Clock().Now()
		p.setState(StateFailed, summary, err)
		return summary, err
	}
	p.setState(StateDone, summary, nil)
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, summary Summary) (Summary, error) {
	clock := domain.Clock()
	p.logger.Info("pipeline started", "data_dir", p.opts.DataDir, "sinks", len(p.sinks))
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	files, err := p.source.ListDataFiles(ctx, p.opts.DataDir)
	if err != nil {
		return summary, fmt.Errorf("discover data files: %w", err)
	}
	summary.Files = len(files)

	for _, station := range groupFiles(files) {
		if err := ctx.Err(); err != nil {
			p.logger.Info("pipeline stopping", "reason", err)
			return summary, err
		}

		batch, stats, err := p.buildBatch(ctx, station)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			p.logger.Warn("station failed, skipping",
				"error", err,
				"station", station.name,
				"files", len(station.paths),
			)
			p.metrics.StationsFailed.Inc()
			summary.Failed++
			continue
		}

		p.metrics.SegmentsKept.Add(float64(stats.Kept))
		p.metrics.SegmentsDropped.Add(float64(stats.Dropped))
		summary.Dropped += stats.Dropped

		if err := p.load(ctx, batch); err != nil {
			return summary, err
		}
		summary.Stations++
		summary.Segments += len(batch.Segments)
		p.logger.Info("station loaded",
			"station", station.name,
			"segments", len(batch.Segments),
			"dropped", stats.Dropped,
			"missing_rows", stats.MissingRows,
		)
	}

	summary.FinishedAt = clock.Now()
	p.metrics.RunDuration.Observe(summary.Duration().Seconds())
	p.ready.Store(true)
	p.logger.Info("pipeline finished",
		"files", summary.Files,
		"stations", summary.Stations,
		"failed", summary.Failed,
		"segments", summary.Segments,
		"dropped", summary.Dropped,
		"duration", summary.Duration(),
	)
	return summary, nil
}

// buildBatch reads every file of a station, joins them on timestamp and segments the result.
func (p *Pipeline) buildBatch(ctx context.Context, station stationFiles) (domain.Batch, domain.SegmentStats, error) {
	series := make([]domain.Series, 0, len(station.paths))
	for _, path := range station.paths {
		prefix := ""
		if p.opts.PrefixFor != nil {
			prefix = p.opts.PrefixFor(filepath.Base(path))
		}
		s, stats, err := p.reader.ReadSeries(ctx, path, prefix)
		if err != nil {
			return domain.Batch{}, domain.SegmentStats{}, err
		}
		p.metrics.FilesRead.Inc()
		p.metrics.RowsRead.Add(float64(stats.Rows))
		p.metrics.RowsFiltered.Add(float64(stats.Filtered))
		if stats.Duplicates > 0 {
			p.logger.Debug("duplicate timestamps dropped", "path", path, "count", stats.Duplicates)
		}
		series = append(series, s)
	}

	joined, err := domain.JoinSeries(series...)
	if err != nil {
		return domain.Batch{}, domain.SegmentStats{}, fmt.Errorf("join %s: %w", station.name, err)
	}
	segments, stats, err := p.segmenter.Segment(joined)
	if err != nil {
		return domain.Batch{}, domain.SegmentStats{}, fmt.Errorf("segment %s: %w", station.name, err)
	}
	return domain.Batch{Group: station.name, Segments: segments}, stats, nil
}

func (p *Pipeline) load(ctx context.Context, batch domain.Batch) error {
	if len(batch.Segments) == 0 {
		return nil
	}
	for _, sink := range p.sinks {
		if err := sink.Loader.LoadBatch(ctx, batch); err != nil {
			p.logger.Error("load batch failed", "error", err, "sink", sink.Name, "station", batch.Group)
			return fmt.Errorf("load %s into %s: %w", batch.Group, sink.Name, err)
		}
		p.metrics.RecordsWritten.WithLabelValues(sink.Name).Add(float64(len(batch.Segments)))
	}
	return nil
}

type stationFiles struct {
	name  string
	paths []string
}

// groupFiles collects files by group, keeping first-seen group order.
func groupFiles(files []domain.DataFile) []stationFiles {
	var out []stationFiles
	pos := make(map[string]int)
	for _, f := range files {
		i, ok := pos[f.Group]
		if !ok {
			i = len(out)
			pos[f.Group] = i
			out = append(out, stationFiles{name: f.Group})
		}
		out[i].paths = append(out[i].paths, f.Path)
	}
	return out
}
